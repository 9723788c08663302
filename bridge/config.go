package bridge

import (
	"github.com/BurntSushi/toml"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/native"
)

// Config mirrors the builder knobs in a TOML-decodable form, so an
// embedding VMM can ship bridge settings in its own config file.
type Config struct {
	// Components lists the variants to enable by name: "software2d",
	// "accel", "stream", "passthrough". Empty means software2d only.
	Components []string `toml:"components"`

	// DefaultComponent routes requests without routing information.
	DefaultComponent string `toml:"default_component"`

	DisplayWidth  uint32 `toml:"display_width"`
	DisplayHeight uint32 `toml:"display_height"`

	// Features is forwarded verbatim to the streaming renderer.
	Features string `toml:"features"`

	SnapshotDir string `toml:"snapshot_dir"`

	// FenceChannel switches completion delivery to a bounded channel of
	// this capacity when positive.
	FenceChannel int `toml:"fence_channel"`

	Accel  AccelConfig  `toml:"accel"`
	Stream StreamConfig `toml:"stream"`
}

// AccelConfig selects accelerated renderer init flags.
type AccelConfig struct {
	UseVirgl        bool `toml:"use_virgl"`
	UseVenus        bool `toml:"use_venus"`
	UseDrm          bool `toml:"use_drm"`
	UseEGL          bool `toml:"use_egl"`
	UseGLX          bool `toml:"use_glx"`
	UseGLES         bool `toml:"use_gles"`
	UseSurfaceless  bool `toml:"use_surfaceless"`
	UseExternalBlob bool `toml:"use_external_blob"`
	UseRenderServer bool `toml:"use_render_server"`
}

// Flags converts the section to init flags.
func (c AccelConfig) Flags() gpubridge.AccelFlags {
	return gpubridge.AccelFlags(0).
		UseVirgl(c.UseVirgl).
		UseVenus(c.UseVenus).
		UseDrm(c.UseDrm).
		UseEGL(c.UseEGL).
		UseGLX(c.UseGLX).
		UseGLES(c.UseGLES).
		UseSurfaceless(c.UseSurfaceless).
		UseExternalBlob(c.UseExternalBlob).
		UseRenderServer(c.UseRenderServer)
}

// StreamConfig selects streaming renderer init flags.
type StreamConfig struct {
	UseEGL          bool   `toml:"use_egl"`
	UseGLES         bool   `toml:"use_gles"`
	UseVulkan       bool   `toml:"use_vulkan"`
	UseSurfaceless  bool   `toml:"use_surfaceless"`
	UseExternalBlob bool   `toml:"use_external_blob"`
	UseSystemBlob   bool   `toml:"use_system_blob"`
	Wsi             string `toml:"wsi"`
}

// Flags converts the section to init flags.
func (c StreamConfig) Flags() (gpubridge.StreamFlags, error) {
	f := gpubridge.StreamFlags(0).
		UseEGL(c.UseEGL).
		UseGLES(c.UseGLES).
		UseVulkan(c.UseVulkan).
		UseSurfaceless(c.UseSurfaceless).
		UseExternalBlob(c.UseExternalBlob).
		UseSystemBlob(c.UseSystemBlob)

	switch c.Wsi {
	case "", "surfaceless":
		f = f.SetWsi(gpubridge.WsiSurfaceless)
	case "vulkan_swapchain":
		f = f.SetWsi(gpubridge.WsiVulkanSwapchain)
	default:
		return 0, errors.SpecViolation("unknown wsi " + c.Wsi)
	}
	return f, nil
}

// LoadConfig decodes a TOML config file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Transport("decoding config "+path, err)
	}
	return &cfg, nil
}

// ParseComponentType resolves a component name from config text.
func ParseComponentType(name string) (gpubridge.ComponentType, error) {
	switch name {
	case "software2d":
		return gpubridge.ComponentSoftware2D, nil
	case "accel":
		return gpubridge.ComponentAccel, nil
	case "stream":
		return gpubridge.ComponentStream, nil
	case "passthrough":
		return gpubridge.ComponentPassthrough, nil
	default:
		return 0, errors.InvalidComponent(name)
	}
}

// Builder translates the config into a builder. The native renderer is
// process wiring, not configuration, and is passed in by the embedder; it
// may be nil when no native variant is listed.
func (c *Config) Builder(r native.Renderer) (*Builder, error) {
	b := NewBuilder()

	for _, name := range c.Components {
		t, err := ParseComponentType(name)
		if err != nil {
			return nil, err
		}
		switch t {
		case gpubridge.ComponentSoftware2D:
			b.WithSoftware2D()
		case gpubridge.ComponentPassthrough:
			b.WithPassthrough()
		case gpubridge.ComponentAccel:
			b.WithAccel(r, c.Accel.Flags())
		case gpubridge.ComponentStream:
			flags, err := c.Stream.Flags()
			if err != nil {
				return nil, err
			}
			b.WithStream(r, flags)
		}
	}

	if c.DefaultComponent != "" {
		t, err := ParseComponentType(c.DefaultComponent)
		if err != nil {
			return nil, err
		}
		b.WithDefaultComponent(t)
	}
	if c.DisplayWidth != 0 || c.DisplayHeight != 0 {
		b.WithDisplay(c.DisplayWidth, c.DisplayHeight)
	}
	if c.Features != "" {
		b.WithFeatures(c.Features)
	}
	if c.SnapshotDir != "" {
		b.WithSnapshotDir(c.SnapshotDir)
	}
	if c.FenceChannel > 0 {
		b.WithFenceChannel(c.FenceChannel)
	}

	return b, nil
}

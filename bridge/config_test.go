package bridge

import (
	"os"
	"path/filepath"
	"testing"

	gpubridge "github.com/virtgfx/gpu-bridge"
	gpuerrors "github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/native/nativetest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
components = ["stream", "software2d"]
default_component = "stream"
display_width = 1280
display_height = 800
features = "gles:1"
fence_channel = 16

[stream]
use_egl = true
use_gles = true
use_vulkan = true
wsi = "surfaceless"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Components) != 2 || cfg.Components[0] != "stream" {
		t.Fatalf("components = %v", cfg.Components)
	}
	if cfg.DisplayWidth != 1280 || cfg.DisplayHeight != 800 {
		t.Fatalf("display = %dx%d", cfg.DisplayWidth, cfg.DisplayHeight)
	}

	flags, err := cfg.Stream.Flags()
	if err != nil {
		t.Fatalf("stream flags: %v", err)
	}
	want := gpubridge.StreamFlags(0).UseEGL(true).UseGLES(true).UseVulkan(true)
	if flags != want {
		t.Fatalf("stream flags = %#x, want %#x", flags, want)
	}

	builder, err := cfg.Builder(nativetest.New())
	if err != nil {
		t.Fatalf("Builder: %v", err)
	}
	b, err := builder.WithAdopt(nativetest.Adopt).Build()
	if err != nil {
		t.Fatalf("Build from config: %v", err)
	}
	defer b.Close()

	if b.Completions() == nil {
		t.Fatal("fence_channel did not switch to channel delivery")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := &Config{Components: []string{"quantum"}}
	if _, err := cfg.Builder(nil); !gpuerrors.IsKind(err, gpuerrors.KindInvalidComponent) {
		t.Fatalf("unknown component name = %v, want invalid component", err)
	}

	cfg = &Config{
		Components: []string{"software2d"},
		Stream:     StreamConfig{Wsi: "hologram"},
	}
	// An unused section with a bad value still loads; it only fails when
	// the stream variant is actually enabled.
	if _, err := cfg.Builder(nil); err != nil {
		t.Fatalf("unused bad section = %v, want success", err)
	}

	cfg.Components = []string{"stream"}
	if _, err := cfg.Builder(nativetest.New()); !gpuerrors.IsKind(err, gpuerrors.KindSpecViolation) {
		t.Fatalf("bad wsi = %v, want rejection", err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !gpuerrors.IsKind(err, gpuerrors.KindTransport) {
		t.Fatalf("missing file = %v, want transport error", err)
	}
}

func TestAccelConfigFlags(t *testing.T) {
	c := AccelConfig{UseVirgl: true, UseEGL: true, UseGLES: true, UseSurfaceless: true}
	if got, want := c.Flags(), gpubridge.DefaultAccelFlags(); got != want {
		t.Fatalf("flags = %#x, want default stack %#x", got, want)
	}
}

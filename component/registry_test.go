package component

import (
	"testing"

	gpubridge "github.com/virtgfx/gpu-bridge"
	gpuerrors "github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/native/nativetest"
)

func TestRegistryBuiltins(t *testing.T) {
	for _, ct := range []gpubridge.ComponentType{
		gpubridge.ComponentSoftware2D,
		gpubridge.ComponentAccel,
		gpubridge.ComponentStream,
		gpubridge.ComponentPassthrough,
	} {
		if !IsRegistered(ct) {
			t.Fatalf("%v not registered", ct)
		}
	}
	if got := len(Available()); got < 4 {
		t.Fatalf("Available() has %d entries, want at least 4", got)
	}
}

func TestRegistryNew(t *testing.T) {
	c, err := New(gpubridge.ComponentSoftware2D, Options{})
	if err != nil {
		t.Fatalf("New software2d: %v", err)
	}
	if c.Type() != gpubridge.ComponentSoftware2D {
		t.Fatalf("type = %v", c.Type())
	}

	if _, err := New(gpubridge.ComponentType(200), Options{}); !gpuerrors.IsKind(err, gpuerrors.KindInvalidComponent) {
		t.Fatalf("unknown type = %v, want invalid component", err)
	}
}

func TestRegistryDefault(t *testing.T) {
	// With a renderer the accelerated variant wins.
	c, err := Default(Options{Renderer: nativetest.New(), Adopt: nativetest.Adopt})
	if err != nil {
		t.Fatalf("Default with renderer: %v", err)
	}
	if c.Type() != gpubridge.ComponentAccel {
		t.Fatalf("default with renderer = %v, want accel", c.Type())
	}
	c.Close()

	// Without one, selection falls through to a variant that needs none.
	c, err = Default(Options{})
	if err != nil {
		t.Fatalf("Default without renderer: %v", err)
	}
	if c.Type() == gpubridge.ComponentAccel || c.Type() == gpubridge.ComponentStream {
		t.Fatalf("default without renderer = %v, want a renderer-free variant", c.Type())
	}
}

func TestRegistryUnregister(t *testing.T) {
	fake := func(Options) (Component, error) { return NewSoftware2D(Options{}), nil }
	ct := gpubridge.ComponentType(77)

	Register(ct, fake)
	if !IsRegistered(ct) {
		t.Fatal("registration did not take")
	}
	Unregister(ct)
	if IsRegistered(ct) {
		t.Fatal("unregistration did not take")
	}
}

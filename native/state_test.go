package native_test

import (
	"testing"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/native"
	"github.com/virtgfx/gpu-bridge/native/nativetest"
)

type teardownCounter struct {
	*nativetest.Renderer
	torn int
}

func (r *teardownCounter) Teardown() {
	r.torn++
	r.Renderer.Teardown()
}

func TestStateTeardownOnce(t *testing.T) {
	fake := &teardownCounter{Renderer: nativetest.New()}
	s, err := native.NewState(fake, native.InitConfig{})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	s.Teardown()
	s.Teardown()
	if fake.torn != 1 {
		t.Fatalf("backend teardown ran %d times, want 1", fake.torn)
	}
}

func TestStateFenceCallbackWired(t *testing.T) {
	fake := nativetest.New()
	var got []uint64
	_, err := native.NewState(fake, native.InitConfig{
		FenceCallback: func(f gpubridge.Fence) { got = append(got, f.FenceID) },
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	fake.CreateFence(gpubridge.Fence{Flags: gpubridge.FlagFence, FenceID: 9})
	fake.RetireFences()
	if len(got) != 1 || got[0] != 9 {
		t.Fatalf("completions = %v, want fence 9", got)
	}
}

func TestStateRestoreBuildsSecondState(t *testing.T) {
	fake := nativetest.New()
	s1, err := native.NewState(fake, native.InitConfig{})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	defer s1.Teardown()

	// The restore flow attaches a fresh State to a backend that is still
	// live under the original one.
	s2, err := native.NewState(fake, native.InitConfig{})
	if err != nil {
		t.Fatalf("second NewState: %v", err)
	}
	if s2.Renderer() != native.Renderer(fake) {
		t.Fatal("second state does not expose the shared renderer")
	}
}

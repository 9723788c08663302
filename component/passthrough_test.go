package component

import (
	"encoding/binary"
	"testing"

	gpubridge "github.com/virtgfx/gpu-bridge"
	gpuerrors "github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/native/nativetest"
)

func TestPassthroughGuestBlob(t *testing.T) {
	p := NewPassthrough(Options{})

	backing := []gpubridge.Iovec{make([]byte, 4096)}
	res, err := p.CreateBlob(0, 1, gpubridge.ResourceCreateBlob{
		BlobMem: gpubridge.BlobMemGuest,
		Size:    4096,
	}, backing, nil)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	if !res.Blob || res.BlobMem != gpubridge.BlobMemGuest || res.Size != 4096 {
		t.Fatalf("resource = %+v, want guest blob of size 4096", res)
	}
	if res.Handle != nil {
		t.Fatalf("non-shareable guest blob carries handle %+v", res.Handle)
	}

	tests := []struct {
		name    string
		create  gpubridge.ResourceCreateBlob
		backing []gpubridge.Iovec
		kind    gpuerrors.Kind
	}{
		{
			"host memory",
			gpubridge.ResourceCreateBlob{BlobMem: gpubridge.BlobMemHost3D, Size: 16},
			backing,
			gpuerrors.KindUnsupported,
		},
		{
			"short backing",
			gpubridge.ResourceCreateBlob{BlobMem: gpubridge.BlobMemGuest, Size: 8192},
			backing,
			gpuerrors.KindInvalidIovec,
		},
		{
			"zero size",
			gpubridge.ResourceCreateBlob{BlobMem: gpubridge.BlobMemGuest, Size: 0},
			backing,
			gpuerrors.KindInvalidIovec,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.CreateBlob(0, 2, tc.create, tc.backing, nil); !gpuerrors.IsKind(err, tc.kind) {
				t.Fatalf("CreateBlob = %v, want kind %q", err, tc.kind)
			}
		})
	}
}

func TestPassthroughShareableBlobExport(t *testing.T) {
	p := NewPassthrough(Options{
		ShmAlloc: func(size uint64) (gpubridge.Descriptor, error) {
			return nativetest.Adopt(int64(size))
		},
	})

	res, err := p.CreateBlob(0, 1, gpubridge.ResourceCreateBlob{
		BlobMem:   gpubridge.BlobMemGuest,
		BlobFlags: gpubridge.BlobFlagUseShareable,
		Size:      64,
	}, []gpubridge.Iovec{make([]byte, 64)}, nil)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	if res.Handle == nil || res.Handle.Type != gpubridge.HandleTypeMemShm {
		t.Fatalf("shareable guest blob handle = %+v, want shm handle", res.Handle)
	}
}

func TestPassthroughCapset(t *testing.T) {
	p := NewPassthrough(Options{})

	version, size := p.GetCapsetInfo(gpubridge.CapsetCrossDomain)
	if version != 1 || size == 0 {
		t.Fatalf("capset info = (%d, %d), want version 1 and non-zero size", version, size)
	}

	caps := p.GetCapset(gpubridge.CapsetCrossDomain, version)
	if uint32(len(caps)) != size {
		t.Fatalf("capset blob is %d bytes, want %d", len(caps), size)
	}
	if got := binary.LittleEndian.Uint32(caps); got != version {
		t.Fatalf("capset blob version = %d, want %d", got, version)
	}

	if v, sz := p.GetCapsetInfo(gpubridge.CapsetVirgl); v != 0 || sz != 0 {
		t.Fatalf("foreign capset reported (%d, %d), want (0, 0)", v, sz)
	}
}

func TestPassthroughContexts(t *testing.T) {
	p := NewPassthrough(Options{})

	var completed []gpubridge.Fence
	ctx, err := p.CreateContext(3, uint32(gpubridge.CapsetCrossDomain), "xdom", func(f gpubridge.Fence) {
		completed = append(completed, f)
	})
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	if _, err := p.CreateContext(3, 0, "", nil); !gpuerrors.IsKind(err, gpuerrors.KindAlreadyInUse) {
		t.Fatalf("duplicate context id = %v, want already in use", err)
	}
	if _, err := p.CreateContext(4, uint32(gpubridge.CapsetVirgl), "", nil); !gpuerrors.IsKind(err, gpuerrors.KindInvalidCapset) {
		t.Fatalf("foreign capset context = %v, want invalid capset", err)
	}

	if err := ctx.SubmitCmd(make([]byte, 3), nil); !gpuerrors.IsKind(err, gpuerrors.KindInvalidCommandSize) {
		t.Fatalf("SubmitCmd with 3 bytes = %v, want invalid command size", err)
	}
	if err := ctx.SubmitCmd(make([]byte, 8), nil); err != nil {
		t.Fatalf("SubmitCmd: %v", err)
	}

	// Every fence completes inline; there is no backend to wait for.
	h, err := ctx.CreateFence(gpubridge.Fence{Flags: gpubridge.FlagFence, FenceID: 9, CtxID: 3})
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	if h != nil {
		t.Fatalf("fence handle = %+v, want none", h)
	}
	if len(completed) != 1 || completed[0].FenceID != 9 {
		t.Fatalf("completions = %+v, want fence 9", completed)
	}

	ctx.Destroy()
	if _, err := p.CreateContext(3, 0, "", nil); err != nil {
		t.Fatalf("CreateContext after destroy: %v", err)
	}
}

func TestPassthroughSnapshotRestore(t *testing.T) {
	p := NewPassthrough(Options{})

	if _, err := p.CreateBlob(0, 1, gpubridge.ResourceCreateBlob{
		BlobMem: gpubridge.BlobMemGuest,
		Size:    32,
	}, []gpubridge.Iovec{make([]byte, 32)}, nil); err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	ctx, err := p.CreateContext(7, 0, "", func(gpubridge.Fence) {})
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	compData, err := p.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	ctxData, err := ctx.Snapshot()
	if err != nil {
		t.Fatalf("context Snapshot: %v", err)
	}

	fresh := NewPassthrough(Options{})
	if err := fresh.Restore(compData); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := fresh.RestoreContext(ctxData, func(gpubridge.Fence) {})
	if err != nil {
		t.Fatalf("RestoreContext: %v", err)
	}
	if restored.Type() != gpubridge.ComponentPassthrough {
		t.Fatalf("restored context type = %v", restored.Type())
	}

	// The restored context holds its id again.
	if _, err := fresh.CreateContext(7, 0, "", nil); !gpuerrors.IsKind(err, gpuerrors.KindAlreadyInUse) {
		t.Fatalf("reusing restored context id = %v, want already in use", err)
	}
}

package component

import (
	"bytes"
	"testing"

	gpubridge "github.com/virtgfx/gpu-bridge"
	gpuerrors "github.com/virtgfx/gpu-bridge/errors"
)

func TestSoftware2DCreate(t *testing.T) {
	s := NewSoftware2D(Options{})

	res, err := s.Create3D(1, gpubridge.ResourceCreate3D{
		Target: gpubridge.PipeTexture2D,
		Format: gpubridge.FormatB8G8R8A8,
		Width:  4,
		Height: 4,
		Depth:  1,
	})
	if err != nil {
		t.Fatalf("Create3D: %v", err)
	}
	if res.Info2D == nil {
		t.Fatal("resource has no 2D info")
	}
	if res.Size != 4*4*4 {
		t.Fatalf("size = %d, want %d", res.Size, 4*4*4)
	}

	tests := []struct {
		name   string
		create gpubridge.ResourceCreate3D
	}{
		{"unknown format", gpubridge.ResourceCreate3D{Format: 999, Width: 4, Height: 4, Depth: 1}},
		{"volume", gpubridge.ResourceCreate3D{Format: gpubridge.FormatB8G8R8A8, Width: 4, Height: 4, Depth: 2}},
		{"zero width", gpubridge.ResourceCreate3D{Format: gpubridge.FormatB8G8R8A8, Width: 0, Height: 4, Depth: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Create3D(2, tc.create); !gpuerrors.IsKind(err, gpuerrors.KindInvalid2DInfo) {
				t.Fatalf("Create3D = %v, want invalid 2D info", err)
			}
		})
	}
}

func TestSoftware2DTransferRoundTrip(t *testing.T) {
	s := NewSoftware2D(Options{})

	res, err := s.Create3D(1, gpubridge.ResourceCreate3D{
		Format: gpubridge.FormatR8G8B8A8,
		Width:  4,
		Height: 4,
		Depth:  1,
	})
	if err != nil {
		t.Fatalf("Create3D: %v", err)
	}

	// Guest backing split across two ranges, stride wider than the row.
	backing := []gpubridge.Iovec{make([]byte, 40), make([]byte, 88)}
	pixels := make([]byte, 0, 2*2*4)
	for i := byte(0); i < 16; i++ {
		pixels = append(pixels, i)
	}
	// Rows at offset 0 and stride 16 within the flattened backing.
	flat := make([]byte, 128)
	copy(flat[0:8], pixels[0:8])
	copy(flat[16:24], pixels[8:16])
	copy(backing[0], flat[:40])
	copy(backing[1], flat[40:])

	if err := s.AttachBacking(1, backing); err != nil {
		t.Fatalf("AttachBacking: %v", err)
	}

	write := gpubridge.Transfer3D{X: 1, Y: 1, W: 2, H: 2, D: 1, Stride: 16}
	if err := s.TransferWrite(0, res, write); err != nil {
		t.Fatalf("TransferWrite: %v", err)
	}

	got := make([]byte, 2*2*4)
	if err := s.TransferRead(0, res, gpubridge.Transfer3D{X: 1, Y: 1, W: 2, H: 2, D: 1}, got); err != nil {
		t.Fatalf("TransferRead: %v", err)
	}
	if !bytes.Equal(got, pixels) {
		t.Fatalf("round trip = %v, want %v", got, pixels)
	}

	// Pixels outside the written rectangle stay zero.
	corner := make([]byte, 4)
	if err := s.TransferRead(0, res, gpubridge.Transfer3D{X: 0, Y: 0, W: 1, H: 1, D: 1}, corner); err != nil {
		t.Fatalf("TransferRead corner: %v", err)
	}
	if !bytes.Equal(corner, []byte{0, 0, 0, 0}) {
		t.Fatalf("untouched corner = %v, want zeros", corner)
	}
}

func TestSoftware2DTransferReadIntoBacking(t *testing.T) {
	s := NewSoftware2D(Options{})

	res, err := s.Create3D(1, gpubridge.ResourceCreate3D{
		Format: gpubridge.FormatR8G8B8A8,
		Width:  2,
		Height: 1,
		Depth:  1,
	})
	if err != nil {
		t.Fatalf("Create3D: %v", err)
	}

	seed := []gpubridge.Iovec{{1, 2, 3, 4, 5, 6, 7, 8}}
	if err := s.AttachBacking(1, seed); err != nil {
		t.Fatalf("AttachBacking: %v", err)
	}
	full := gpubridge.Transfer3D{W: 2, H: 1, D: 1}
	if err := s.TransferWrite(0, res, full); err != nil {
		t.Fatalf("TransferWrite: %v", err)
	}

	// nil buf writes back into the attached backing.
	out := []gpubridge.Iovec{make([]byte, 8)}
	if err := s.AttachBacking(1, out); err != nil {
		t.Fatalf("re-AttachBacking: %v", err)
	}
	if err := s.TransferRead(0, res, full, nil); err != nil {
		t.Fatalf("TransferRead into backing: %v", err)
	}
	if !bytes.Equal(out[0], seed[0]) {
		t.Fatalf("backing after read = %v, want %v", out[0], seed[0])
	}
}

func TestSoftware2DTransferErrors(t *testing.T) {
	s := NewSoftware2D(Options{})

	res, err := s.Create3D(1, gpubridge.ResourceCreate3D{
		Format: gpubridge.FormatB8G8R8A8,
		Width:  4,
		Height: 4,
		Depth:  1,
	})
	if err != nil {
		t.Fatalf("Create3D: %v", err)
	}

	oob := gpubridge.Transfer3D{X: 3, Y: 0, W: 2, H: 1, D: 1}
	if err := s.TransferWrite(0, res, oob); !gpuerrors.IsKind(err, gpuerrors.KindSpecViolation) {
		t.Fatalf("out-of-bounds write = %v, want rejection", err)
	}

	if err := s.AttachBacking(1, []gpubridge.Iovec{make([]byte, 4)}); err != nil {
		t.Fatalf("AttachBacking: %v", err)
	}
	short := gpubridge.Transfer3D{W: 4, H: 4, D: 1}
	if err := s.TransferWrite(0, res, short); !gpuerrors.IsKind(err, gpuerrors.KindInvalidIovec) {
		t.Fatalf("short backing write = %v, want invalid iovec", err)
	}

	if err := s.TransferWrite(0, res, gpubridge.Transfer3D{}); err != nil {
		t.Fatalf("empty transfer: %v", err)
	}

	missing := &gpubridge.Resource{ResourceID: 99}
	if err := s.TransferWrite(0, missing, gpubridge.Transfer3D{W: 1, H: 1, D: 1}); !gpuerrors.IsKind(err, gpuerrors.KindInvalidResourceID) {
		t.Fatalf("unknown resource write = %v, want invalid resource id", err)
	}
}

func TestSoftware2DFenceImmediate(t *testing.T) {
	var completed []gpubridge.Fence
	s := NewSoftware2D(Options{FenceHandler: func(f gpubridge.Fence) {
		completed = append(completed, f)
	}})

	if err := s.CreateFence(gpubridge.Fence{Flags: gpubridge.FlagFence, FenceID: 5}); err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	if len(completed) != 1 || completed[0].FenceID != 5 {
		t.Fatalf("completions = %+v, want fence 5 before CreateFence returns", completed)
	}
}

func TestSoftware2DSnapshotRestore(t *testing.T) {
	s := NewSoftware2D(Options{})

	res, err := s.Create3D(1, gpubridge.ResourceCreate3D{
		Format: gpubridge.FormatB8G8R8A8,
		Width:  2,
		Height: 2,
		Depth:  1,
	})
	if err != nil {
		t.Fatalf("Create3D: %v", err)
	}

	backing := []gpubridge.Iovec{{9, 9, 9, 9, 8, 8, 8, 8, 7, 7, 7, 7, 6, 6, 6, 6}}
	if err := s.AttachBacking(1, backing); err != nil {
		t.Fatalf("AttachBacking: %v", err)
	}
	if err := s.TransferWrite(0, res, gpubridge.Transfer3D{W: 2, H: 2, D: 1}); err != nil {
		t.Fatalf("TransferWrite: %v", err)
	}

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	fresh := NewSoftware2D(Options{})
	if err := fresh.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got := make([]byte, 16)
	if err := fresh.TransferRead(0, res, gpubridge.Transfer3D{W: 2, H: 2, D: 1}, got); err != nil {
		t.Fatalf("TransferRead after restore: %v", err)
	}
	if !bytes.Equal(got, []byte(backing[0])) {
		t.Fatalf("restored pixels = %v, want %v", got, backing[0])
	}
}

func TestSoftware2DUnsupportedOps(t *testing.T) {
	s := NewSoftware2D(Options{})

	if _, err := s.Map(1); !gpuerrors.IsKind(err, gpuerrors.KindUnsupported) {
		t.Fatalf("Map = %v, want unsupported", err)
	}
	if _, err := s.CreateContext(1, 0, "", nil); !gpuerrors.IsKind(err, gpuerrors.KindUnsupported) {
		t.Fatalf("CreateContext = %v, want unsupported", err)
	}
}

package gpubridge

// Transfer3D describes a sub-region copy between guest and backend storage:
// 1D buffers, 2D textures, 3D textures and cubemaps.
type Transfer3D struct {
	X           uint32
	Y           uint32
	Z           uint32
	W           uint32
	H           uint32
	D           uint32
	Level       uint32
	Stride      uint32
	LayerStride uint32
	Offset      uint64
}

// NewTransfer2D constructs an XY box with unit depth and no Z displacement.
func NewTransfer2D(x, y, w, h uint32, offset uint64) Transfer3D {
	return Transfer3D{X: x, Y: y, W: w, H: h, D: 1, Offset: offset}
}

// IsEmpty reports whether the region covers a volume of zero. Empty
// transfers are complete no-ops and never reach a backend.
func (t Transfer3D) IsEmpty() bool {
	return t.W == 0 || t.H == 0 || t.D == 0
}

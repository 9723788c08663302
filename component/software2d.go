package component

import (
	"encoding/json"

	"github.com/gogpu/gputypes"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
)

func init() {
	Register(gpubridge.ComponentSoftware2D, func(opts Options) (Component, error) {
		return NewSoftware2D(opts), nil
	})
}

// Software2D is the pure Go rasterizer fallback. Resources are host byte
// buffers; transfers are stride-aware copies between guest backing ranges
// and host storage. There is no command decoding, so contexts and blob
// mapping are unsupported.
type Software2D struct {
	Defaults
	resources    map[uint32]*twodResource
	fenceHandler gpubridge.FenceHandler
}

type twodResource struct {
	Width   uint32                 `json:"width"`
	Height  uint32                 `json:"height"`
	Format  gputypes.TextureFormat `json:"format"`
	Bpp     uint32                 `json:"bpp"`
	Host    []byte                 `json:"host"`
	backing []gpubridge.Iovec
}

// NewSoftware2D creates the software rasterizer. Only the fence handler of
// the options is used; 2D work completes immediately, so every fence is
// signaled inline.
func NewSoftware2D(opts Options) *Software2D {
	return &Software2D{
		resources:    make(map[uint32]*twodResource),
		fenceHandler: opts.FenceHandler,
	}
}

func formatInfo(format uint32) (gputypes.TextureFormat, uint32, error) {
	switch format {
	case gpubridge.FormatB8G8R8A8:
		return gputypes.TextureFormatBGRA8Unorm, 4, nil
	case gpubridge.FormatR8G8B8A8:
		return gputypes.TextureFormatRGBA8Unorm, 4, nil
	default:
		return gputypes.TextureFormatUndefined, 0, errors.New(errors.KindInvalid2DInfo).
			Detail("format %d", format).
			Build()
	}
}

func (s *Software2D) Type() gpubridge.ComponentType {
	return gpubridge.ComponentSoftware2D
}

func (s *Software2D) Close() {
	s.resources = make(map[uint32]*twodResource)
}

func (s *Software2D) CreateFence(fence gpubridge.Fence) error {
	// 2D operations complete before the create call returns.
	if s.fenceHandler != nil {
		s.fenceHandler(fence)
	}
	return nil
}

func (s *Software2D) Create3D(resourceID uint32, create gpubridge.ResourceCreate3D) (*gpubridge.Resource, error) {
	format, bpp, err := formatInfo(create.Format)
	if err != nil {
		return nil, err
	}
	if create.Depth > 1 || create.Width == 0 || create.Height == 0 {
		return nil, errors.New(errors.KindInvalid2DInfo).
			Detail("%dx%dx%d", create.Width, create.Height, create.Depth).
			Build()
	}

	size := uint64(create.Width) * uint64(create.Height) * uint64(bpp)
	s.resources[resourceID] = &twodResource{
		Width:  create.Width,
		Height: create.Height,
		Format: format,
		Bpp:    bpp,
		Host:   make([]byte, size),
	}

	return &gpubridge.Resource{
		ResourceID:    resourceID,
		ComponentMask: gpubridge.ComponentSoftware2D.Mask(),
		Size:          size,
		Info2D: &gpubridge.Info2D{
			Width:  create.Width,
			Height: create.Height,
			Format: format,
		},
	}, nil
}

func (s *Software2D) AttachBacking(resourceID uint32, backing []gpubridge.Iovec) error {
	res, ok := s.resources[resourceID]
	if !ok {
		return errors.InvalidResourceID(resourceID)
	}
	res.backing = backing
	return nil
}

func (s *Software2D) DetachBacking(resourceID uint32) {
	if res, ok := s.resources[resourceID]; ok {
		res.backing = nil
	}
}

func (s *Software2D) UnrefResource(resourceID uint32) {
	delete(s.resources, resourceID)
}

func (s *Software2D) TransferWrite(ctxID uint32, res *gpubridge.Resource, t gpubridge.Transfer3D) error {
	if t.IsEmpty() {
		return nil
	}
	r, ok := s.resources[res.ResourceID]
	if !ok {
		return errors.InvalidResourceID(res.ResourceID)
	}
	if err := checkRect(r, t); err != nil {
		return err
	}

	srcStride := uint64(t.Stride)
	if srcStride == 0 {
		srcStride = uint64(t.W) * uint64(r.Bpp)
	}

	rowBytes := uint64(t.W) * uint64(r.Bpp)
	for row := uint64(0); row < uint64(t.H); row++ {
		dstOff := ((uint64(t.Y)+row)*uint64(r.Width) + uint64(t.X)) * uint64(r.Bpp)
		srcOff := t.Offset + row*srcStride
		if err := copyFromIovecs(r.Host[dstOff:dstOff+rowBytes], r.backing, srcOff); err != nil {
			return err
		}
	}
	return nil
}

func (s *Software2D) TransferRead(ctxID uint32, res *gpubridge.Resource, t gpubridge.Transfer3D, buf []byte) error {
	if t.IsEmpty() {
		return nil
	}
	r, ok := s.resources[res.ResourceID]
	if !ok {
		return errors.InvalidResourceID(res.ResourceID)
	}
	if err := checkRect(r, t); err != nil {
		return err
	}

	rowBytes := uint64(t.W) * uint64(r.Bpp)
	dstStride := uint64(t.Stride)
	if dstStride == 0 {
		dstStride = rowBytes
	}

	for row := uint64(0); row < uint64(t.H); row++ {
		srcOff := ((uint64(t.Y)+row)*uint64(r.Width) + uint64(t.X)) * uint64(r.Bpp)
		src := r.Host[srcOff : srcOff+rowBytes]

		if buf != nil {
			dstOff := row * rowBytes
			if dstOff+rowBytes > uint64(len(buf)) {
				return errors.SpecViolation("read buffer too small")
			}
			copy(buf[dstOff:], src)
			continue
		}
		if err := copyToIovecs(r.backing, t.Offset+row*dstStride, src); err != nil {
			return err
		}
	}
	return nil
}

func (s *Software2D) ResourceFlush(res *gpubridge.Resource) error {
	if _, ok := s.resources[res.ResourceID]; !ok {
		return errors.InvalidResourceID(res.ResourceID)
	}
	return nil
}

type software2DSnapshot struct {
	Resources map[uint32]*twodResource `json:"resources"`
}

func (s *Software2D) Snapshot() ([]byte, error) {
	data, err := json.Marshal(software2DSnapshot{Resources: s.resources})
	if err != nil {
		return nil, errors.Snapshot("software2d state", err)
	}
	return data, nil
}

func (s *Software2D) Restore(data []byte) error {
	var snap software2DSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Snapshot("software2d state", err)
	}
	if snap.Resources == nil {
		snap.Resources = make(map[uint32]*twodResource)
	}
	s.resources = snap.Resources
	return nil
}

func checkRect(r *twodResource, t gpubridge.Transfer3D) error {
	if t.D > 1 || t.Z != 0 || t.Level != 0 {
		return errors.SpecViolation("volume transfer on a 2D resource")
	}
	if uint64(t.X)+uint64(t.W) > uint64(r.Width) || uint64(t.Y)+uint64(t.H) > uint64(r.Height) {
		return errors.SpecViolation("transfer region out of bounds")
	}
	return nil
}

// copyFromIovecs fills dst from the backing list starting at byte offset
// off. The backing list is untrusted guest memory; a short list is an
// invalid iovec, never a panic.
func copyFromIovecs(dst []byte, vecs []gpubridge.Iovec, off uint64) error {
	for _, v := range vecs {
		if off >= uint64(len(v)) {
			off -= uint64(len(v))
			continue
		}
		n := copy(dst, v[off:])
		dst = dst[n:]
		off = 0
		if len(dst) == 0 {
			return nil
		}
	}
	if len(dst) != 0 {
		return errors.InvalidIovec("backing shorter than transfer region")
	}
	return nil
}

// copyToIovecs writes src into the backing list starting at byte offset off.
func copyToIovecs(vecs []gpubridge.Iovec, off uint64, src []byte) error {
	for _, v := range vecs {
		if off >= uint64(len(v)) {
			off -= uint64(len(v))
			continue
		}
		n := copy(v[off:], src)
		src = src[n:]
		off = 0
		if len(src) == 0 {
			return nil
		}
	}
	if len(src) != 0 {
		return errors.InvalidIovec("backing shorter than transfer region")
	}
	return nil
}

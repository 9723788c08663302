package component

import (
	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/errors"
	"github.com/virtgfx/gpu-bridge/native"
)

// AdoptFunc turns a raw OS handle value returned by a backend into an owned
// Descriptor. The osdesc package supplies the real implementation; tests
// substitute synthetic descriptors.
type AdoptFunc func(raw int64) (gpubridge.Descriptor, error)

// Options carries everything a variant factory may need. Factories ignore
// fields that do not apply to them.
type Options struct {
	// Renderer is the native call surface for the accelerated and
	// streaming variants.
	Renderer native.Renderer

	// Adopt wraps raw handles exported by the backend.
	Adopt AdoptFunc

	// FenceHandler receives completions routed from the backend callback.
	FenceHandler gpubridge.FenceHandler

	// DebugHandler receives backend diagnostics when non-nil.
	DebugHandler gpubridge.DebugHandler

	AccelFlags  gpubridge.AccelFlags
	StreamFlags gpubridge.StreamFlags

	DisplayWidth  uint32
	DisplayHeight uint32

	// Features is an opaque feature string forwarded to the streaming
	// renderer.
	Features string

	// SnapshotDir is where native backends dump opaque snapshot state.
	SnapshotDir string

	// ShmAlloc allocates anonymous shareable host memory, used by the
	// passthrough variant to export guest blobs. Optional; without it
	// shareable guest blobs carry no export handle.
	ShmAlloc func(size uint64) (gpubridge.Descriptor, error)
}

// Component is the uniform contract of one rendering backend variant.
// Optional operations return KindUnsupported errors when the variant does
// not implement them; embed Defaults to get that behavior.
type Component interface {
	// Type identifies the variant.
	Type() gpubridge.ComponentType

	// Close tears the backend down. Idempotent.
	Close()

	// GetCapsetInfo implements capability negotiation. Unknown capset ids
	// report (0, 0).
	GetCapsetInfo(capsetID uint32) (version uint32, size uint32)

	// GetCapset returns the capability blob for the id and version, sized
	// to the max size the backend reported.
	GetCapset(capsetID uint32, version uint32) []byte

	// CreateFence requests a completion notification outside any context.
	CreateFence(fence gpubridge.Fence) error

	// Create3D allocates backend storage for a 2D or 3D resource.
	Create3D(resourceID uint32, create gpubridge.ResourceCreate3D) (*gpubridge.Resource, error)

	// CreateBlob allocates blob storage. Ownership of handle, when
	// non-nil, transfers to the backend. Blob creation may immediately
	// export an OS handle and probe mapping rights and device identity;
	// probe failures are not fatal to creation.
	CreateBlob(ctxID, resourceID uint32, create gpubridge.ResourceCreateBlob, backing []gpubridge.Iovec, handle *gpubridge.Handle) (*gpubridge.Resource, error)

	// Import wraps an external memory object as a new resource, or
	// attaches metadata to an existing backend resource when the
	// resource-exists flag is set, in which case the returned resource is
	// nil.
	Import(resourceID uint32, handle *gpubridge.Handle, data gpubridge.ImportData) (*gpubridge.Resource, error)

	// AttachBacking associates guest backing ranges with the resource.
	AttachBacking(resourceID uint32, backing []gpubridge.Iovec) error

	// DetachBacking disassociates backing. Safe when never attached.
	DetachBacking(resourceID uint32)

	// UnrefResource destroys the backend resource.
	UnrefResource(resourceID uint32)

	// TransferWrite copies a sub-region from guest backing into backend
	// storage. Empty regions are complete no-ops.
	TransferWrite(ctxID uint32, res *gpubridge.Resource, t gpubridge.Transfer3D) error

	// TransferRead copies a sub-region from backend storage into buf, or
	// into the attached backing when buf is nil. Empty regions are
	// complete no-ops.
	TransferRead(ctxID uint32, res *gpubridge.Resource, t gpubridge.Transfer3D, buf []byte) error

	// ResourceFlush signals content change for presentation.
	ResourceFlush(res *gpubridge.Resource) error

	// Map produces a process-local view of blob storage. Access rights
	// come from backend-reported map info only.
	Map(resourceID uint32) (gpubridge.Mapping, error)

	// Unmap releases the process-local view.
	Unmap(resourceID uint32) error

	// CreateContext creates a command-submission endpoint. The low byte of
	// contextInit selects a capset id.
	CreateContext(ctxID uint32, contextInit uint32, name string, h gpubridge.FenceHandler) (Context, error)

	// Suspend quiesces in-flight backend work before Snapshot.
	Suspend() error

	// Snapshot serializes backend-opaque component state.
	Snapshot() ([]byte, error)

	// Restore reconstructs component state from Snapshot bytes.
	Restore(data []byte) error

	// RestoreContext rebuilds a context from its Snapshot bytes with the
	// same guest-visible id and a fresh backend binding.
	RestoreContext(data []byte, h gpubridge.FenceHandler) (Context, error)

	// Resume restarts backend work after restore.
	Resume() error
}

// Context is a guest-visible command-submission endpoint bound to one
// component.
type Context interface {
	// Type identifies the owning variant.
	Type() gpubridge.ComponentType

	// SubmitCmd forwards a serialized command buffer. Buffers whose byte
	// length is not a multiple of the command word size are rejected
	// before reaching the backend.
	SubmitCmd(commands []byte, fenceIDs []uint64) error

	// Attach adds the resource to the context's resource set.
	Attach(res *gpubridge.Resource)

	// Detach removes the resource from the context's resource set.
	Detach(res *gpubridge.Resource)

	// CreateFence requests completion notification on the fence's ring. A
	// fence targeting ring index 1 completes synchronously, invoking the
	// handler before CreateFence returns; every other ring is
	// asynchronous. When host-shareable export is requested the returned
	// handle is the exported fence; export failure is reported distinctly
	// from fence creation failure.
	CreateFence(fence gpubridge.Fence) (*gpubridge.Handle, error)

	// Snapshot serializes the context to a self-describing byte blob.
	Snapshot() ([]byte, error)

	// Destroy releases the backend context. The backend guarantees no
	// use-after-destroy access to the context id.
	Destroy()
}

// commandWordSize is the unit every submitted command buffer must be a
// multiple of.
const commandWordSize = 4

// statusToErr converts a backend return code into a component error,
// preserving the raw status.
func statusToErr(ret int32) error {
	if ret == 0 {
		return nil
	}
	return errors.Component(ret)
}

// Defaults supplies KindUnsupported implementations for the optional parts
// of the Component contract. Variants embed it and override what they
// support.
type Defaults struct{}

func (Defaults) Close() {}

func (Defaults) GetCapsetInfo(uint32) (uint32, uint32) { return 0, 0 }

func (Defaults) GetCapset(uint32, uint32) []byte { return nil }

func (Defaults) CreateFence(gpubridge.Fence) error { return nil }

func (Defaults) Create3D(uint32, gpubridge.ResourceCreate3D) (*gpubridge.Resource, error) {
	return nil, errors.Unsupported("create_3d")
}

func (Defaults) CreateBlob(uint32, uint32, gpubridge.ResourceCreateBlob, []gpubridge.Iovec, *gpubridge.Handle) (*gpubridge.Resource, error) {
	return nil, errors.Unsupported("create_blob")
}

func (Defaults) Import(uint32, *gpubridge.Handle, gpubridge.ImportData) (*gpubridge.Resource, error) {
	return nil, errors.Unsupported("import")
}

func (Defaults) AttachBacking(uint32, []gpubridge.Iovec) error { return nil }

func (Defaults) DetachBacking(uint32) {}

func (Defaults) UnrefResource(uint32) {}

func (Defaults) TransferWrite(uint32, *gpubridge.Resource, gpubridge.Transfer3D) error {
	return errors.Unsupported("transfer_write")
}

func (Defaults) TransferRead(uint32, *gpubridge.Resource, gpubridge.Transfer3D, []byte) error {
	return errors.Unsupported("transfer_read")
}

func (Defaults) ResourceFlush(*gpubridge.Resource) error {
	return errors.Unsupported("resource_flush")
}

func (Defaults) Map(uint32) (gpubridge.Mapping, error) {
	return gpubridge.Mapping{}, errors.Unsupported("map")
}

func (Defaults) Unmap(uint32) error { return errors.Unsupported("unmap") }

func (Defaults) CreateContext(uint32, uint32, string, gpubridge.FenceHandler) (Context, error) {
	return nil, errors.Unsupported("create_context")
}

func (Defaults) Suspend() error { return nil }

func (Defaults) Snapshot() ([]byte, error) { return nil, errors.Unsupported("snapshot") }

func (Defaults) Restore([]byte) error { return errors.Unsupported("restore") }

func (Defaults) RestoreContext([]byte, gpubridge.FenceHandler) (Context, error) {
	return nil, errors.Unsupported("restore_context")
}

func (Defaults) Resume() error { return nil }

// Package gpubridge implements the backend-neutral core of a virtio-gpu
// device: one uniform resource, context, and fence lifecycle dispatched to
// interchangeable rendering components.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	gpubridge/           Root package with the shared data model and OS capability interfaces
//	├── bridge/          Dispatcher and id registry routing every guest request
//	├── component/       Uniform backend adapter contract and the built-in variants
//	├── native/          Fixed call surface to native rendering backends
//	├── fence/           Per-ring fence completion ordering and delivery
//	├── snapshot/        Self-describing per-entity snapshot records
//	├── osdesc/          OS descriptor duplication and memory mapping primitives
//	└── errors/          Structured error types with a closed kind taxonomy
//
// # Quick Start
//
// Build a bridge backed by the software rasterizer and create a resource:
//
//	b, err := bridge.NewBuilder().
//	    WithSoftware2D().
//	    WithFenceHandler(func(f gpubridge.Fence) { /* completion */ }).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	err = b.CreateResource3D(1, gpubridge.ResourceCreate3D{
//	    Target: gpubridge.PipeTexture2D,
//	    Format: gpubridge.FormatB8G8R8A8,
//	    Width:  64,
//	    Height: 64,
//	    Depth:  1,
//	})
//
// # Thread Safety
//
// The bridge is invoked synchronously from the device-emulation goroutine and
// serializes registry mutation internally. Component adapters are NOT
// internally synchronized; the bridge guarantees at most one in-flight call
// per resource or context. Fence completion callbacks may arrive on a
// backend-owned goroutine at any time after submission.
//
// # Memory Model
//
// Guest backing memory is shared with the guest without synchronization and
// is treated as untrusted, racy input. Host blob allocations are owned by the
// backend and surface to the process through mappings and exported OS
// handles. Exported handles are duplicated, never aliased: closing one is
// always the holder's responsibility.
package gpubridge

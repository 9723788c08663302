package gpubridge

// Fence creation flags.
const (
	FlagFence              uint32 = 1 << 0
	FlagInfoRingIdx        uint32 = 1 << 1
	FlagFenceHostShareable uint32 = 1 << 2
)

// Fence is a one-shot completion notification request tied to an ordering
// ring. Ring 0 is the default ordered timeline of the context; every other
// ring is an independent ordering domain.
type Fence struct {
	Flags   uint32
	FenceID uint64
	CtxID   uint32
	RingIdx uint8
}

// FenceHandler receives fence completions. It may be invoked from a
// backend-owned goroutine at any time after submission and must be
// reentrant-safe.
type FenceHandler func(Fence)

// Debug severities reported by backends.
const (
	DebugError   uint32 = 0x01
	DebugWarning uint32 = 0x02
	DebugInfo    uint32 = 0x03
)

// Debug is a diagnostic message emitted by a backend.
type Debug struct {
	Type    uint32
	Message string
}

// DebugHandler receives backend diagnostics, subject to the same reentrancy
// rules as FenceHandler.
type DebugHandler func(Debug)

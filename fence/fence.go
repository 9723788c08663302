// Package fence tracks in-flight completion notifications and routes them
// to the embedder exactly once.
//
// Every guest-visible fence lives on a ring identified by (context id, ring
// index); fences without ring information share the global ring. Rings are
// timelines: completing fence N retires every pending fence on the same
// ring with an id not greater than N. Rings never order against each other.
package fence

import (
	"sync"

	"go.uber.org/zap"

	gpubridge "github.com/virtgfx/gpu-bridge"
)

type ringKey struct {
	ctxID   uint32
	ringIdx uint8
}

func keyOf(f gpubridge.Fence) ringKey {
	if f.Flags&gpubridge.FlagInfoRingIdx == 0 {
		return ringKey{}
	}
	return ringKey{ctxID: f.CtxID, ringIdx: f.RingIdx}
}

// Manager tracks pending fences per ring and delivers completions. Delivery
// goes either to a handler function or, when constructed with
// NewChannelManager, into a bounded channel owned by the embedder's loop.
//
// Register and Complete are safe for concurrent use; backends signal
// completions from their own threads. Retirement batches from concurrent
// Complete calls are queued and delivered in retirement order, so handler
// invocations on a ring never interleave out of timeline order. Backends
// must still signal each ring with non-decreasing fence ids; an id that
// arrives after a later one has already retired it is treated as a fresh
// synchronous completion.
type Manager struct {
	mu      sync.Mutex
	pending map[ringKey][]gpubridge.Fence

	// outbox holds retired fences awaiting delivery; draining marks that
	// one Complete call is already flushing it. No lock is held while the
	// embedder's handler runs.
	outbox   []gpubridge.Fence
	draining bool

	handler gpubridge.FenceHandler
	ch      chan gpubridge.Fence
}

// NewManager creates a manager delivering completions to h.
func NewManager(h gpubridge.FenceHandler) *Manager {
	return &Manager{
		pending: make(map[ringKey][]gpubridge.Fence),
		handler: h,
	}
}

// NewChannelManager creates a manager delivering completions into a bounded
// channel. The embedder drains the returned channel from its own loop; a
// full channel blocks the completing backend thread rather than dropping.
func NewChannelManager(buffer int) (*Manager, <-chan gpubridge.Fence) {
	ch := make(chan gpubridge.Fence, buffer)
	m := &Manager{
		pending: make(map[ringKey][]gpubridge.Fence),
		ch:      ch,
	}
	return m, ch
}

// Register records a fence as pending on its ring. Synchronously completed
// fences never pass through the manager and must not be registered.
func (m *Manager) Register(f gpubridge.Fence) {
	key := keyOf(f)
	m.mu.Lock()
	m.pending[key] = append(m.pending[key], f)
	m.mu.Unlock()
}

// Unregister removes a fence recorded by Register before the backend
// accepted it. A fence whose creation failed must never surface as a
// completion, so the entry is dropped without delivery.
func (m *Manager) Unregister(f gpubridge.Fence) {
	key := keyOf(f)
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.pending[key]
	for i, p := range queue {
		if p.FenceID == f.FenceID {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(m.pending, key)
			} else {
				m.pending[key] = queue
			}
			return
		}
	}
}

// Complete retires the fence and every earlier pending fence on the same
// ring, delivering each exactly once in registration order. A completion
// that was never registered is delivered as-is.
func (m *Manager) Complete(f gpubridge.Fence) {
	key := keyOf(f)

	m.mu.Lock()
	queue := m.pending[key]
	remaining := queue[:0]
	seen := false
	for _, p := range queue {
		if p.FenceID <= f.FenceID {
			m.outbox = append(m.outbox, p)
			if p.FenceID == f.FenceID {
				seen = true
			}
		} else {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		delete(m.pending, key)
	} else {
		m.pending[key] = remaining
	}
	if !seen {
		m.outbox = append(m.outbox, f)
	}

	// One caller drains; concurrent or reentrant Complete calls only
	// enqueue, so deliveries keep retirement order.
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.outbox) > 0 {
		next := m.outbox[0]
		m.outbox = m.outbox[1:]
		m.mu.Unlock()
		m.deliver(next)
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

// Handler returns a completion callback bound to Complete, for wiring as a
// backend fence callback.
func (m *Manager) Handler() gpubridge.FenceHandler {
	return m.Complete
}

// PendingCount reports the number of undelivered fences on the ring.
func (m *Manager) PendingCount(ctxID uint32, ringIdx uint8) int {
	key := ringKey{ctxID: ctxID, ringIdx: ringIdx}
	if ctxID == 0 && ringIdx == 0 {
		key = ringKey{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[key])
}

// deliver hands one fence to the embedder. A panic escaping the handler
// leaves backend completion state unknown, so the process terminates.
func (m *Manager) deliver(f gpubridge.Fence) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Fatal("panic escaped fence handler",
				zap.Any("panic", r),
				zap.Uint64("fence_id", f.FenceID),
				zap.Uint32("ctx_id", f.CtxID),
				zap.Uint8("ring_idx", f.RingIdx))
		}
	}()

	if m.ch != nil {
		m.ch <- f
		return
	}
	if m.handler != nil {
		m.handler(f)
	}
}

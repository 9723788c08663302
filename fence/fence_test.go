package fence

import (
	"sync"
	"testing"
	"time"

	gpubridge "github.com/virtgfx/gpu-bridge"
)

func ringFence(ctxID uint32, ringIdx uint8, id uint64) gpubridge.Fence {
	return gpubridge.Fence{
		Flags:   gpubridge.FlagFence | gpubridge.FlagInfoRingIdx,
		FenceID: id,
		CtxID:   ctxID,
		RingIdx: ringIdx,
	}
}

func globalFence(id uint64) gpubridge.Fence {
	return gpubridge.Fence{Flags: gpubridge.FlagFence, FenceID: id}
}

func TestTimelineRetiresEarlierFences(t *testing.T) {
	var got []uint64
	m := NewManager(func(f gpubridge.Fence) { got = append(got, f.FenceID) })

	m.Register(globalFence(1))
	m.Register(globalFence(2))
	m.Register(globalFence(3))
	m.Register(globalFence(5))

	m.Complete(globalFence(3))

	want := []uint64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}
	if m.PendingCount(0, 0) != 1 {
		t.Fatalf("pending = %d, want 1", m.PendingCount(0, 0))
	}

	m.Complete(globalFence(5))
	if got[len(got)-1] != 5 || m.PendingCount(0, 0) != 0 {
		t.Fatalf("after final completion got %v, pending %d", got, m.PendingCount(0, 0))
	}
}

func TestRingsAreIndependent(t *testing.T) {
	var got []gpubridge.Fence
	m := NewManager(func(f gpubridge.Fence) { got = append(got, f) })

	m.Register(ringFence(1, 0, 1))
	m.Register(ringFence(1, 2, 2))
	m.Register(ringFence(2, 2, 3))

	// Completing on ctx 1 ring 2 must not touch the other rings.
	m.Complete(ringFence(1, 2, 2))

	if len(got) != 1 || got[0].FenceID != 2 {
		t.Fatalf("delivered %+v, want only fence 2", got)
	}
	if m.PendingCount(1, 0) != 1 || m.PendingCount(2, 2) != 1 {
		t.Fatal("completion leaked across rings")
	}
}

func TestExactlyOnceDelivery(t *testing.T) {
	counts := make(map[uint64]int)
	m := NewManager(func(f gpubridge.Fence) { counts[f.FenceID]++ })

	m.Register(globalFence(1))
	m.Register(globalFence(2))

	m.Complete(globalFence(2))
	m.Complete(globalFence(2))

	if counts[1] != 1 {
		t.Fatalf("fence 1 delivered %d times", counts[1])
	}
	// The second completion has no pending entry; it is passed through
	// on its own and does not re-deliver fence 1.
	if counts[2] != 2 {
		t.Fatalf("fence 2 delivered %d times, want pass-through on repeat", counts[2])
	}
}

func TestUnregisteredCompletionPassesThrough(t *testing.T) {
	var got []uint64
	m := NewManager(func(f gpubridge.Fence) { got = append(got, f.FenceID) })

	m.Complete(globalFence(7))
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("delivered %v, want pass-through of fence 7", got)
	}
}

func TestFenceWithoutRingInfoSharesGlobalRing(t *testing.T) {
	var got []uint64
	m := NewManager(func(f gpubridge.Fence) { got = append(got, f.FenceID) })

	// Ring info flag absent, so ctx and ring fields are ignored.
	noInfo := gpubridge.Fence{Flags: gpubridge.FlagFence, FenceID: 1, CtxID: 9, RingIdx: 3}
	m.Register(noInfo)
	m.Register(globalFence(2))

	m.Complete(globalFence(2))
	if len(got) != 2 {
		t.Fatalf("delivered %v, want both global fences", got)
	}
}

func TestChannelDelivery(t *testing.T) {
	m, ch := NewChannelManager(8)

	m.Register(globalFence(1))
	m.Register(globalFence(2))
	m.Complete(globalFence(2))

	for _, want := range []uint64{1, 2} {
		select {
		case f := <-ch:
			if f.FenceID != want {
				t.Fatalf("channel delivered %d, want %d", f.FenceID, want)
			}
		default:
			t.Fatalf("channel empty, want fence %d", want)
		}
	}
}

func TestUnregisterDropsPendingFence(t *testing.T) {
	var got []uint64
	m := NewManager(func(f gpubridge.Fence) { got = append(got, f.FenceID) })

	m.Register(ringFence(1, 0, 5))
	m.Register(ringFence(1, 0, 6))
	m.Unregister(ringFence(1, 0, 5))

	if m.PendingCount(1, 0) != 1 {
		t.Fatalf("pending = %d after unregister, want 1", m.PendingCount(1, 0))
	}

	// Retiring the ring must not resurrect the dropped fence.
	m.Complete(ringFence(1, 0, 6))
	if len(got) != 1 || got[0] != 6 {
		t.Fatalf("delivered %v, want only fence 6", got)
	}
}

func TestCompletionsDeliverInRetirementOrder(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	var (
		mu    sync.Mutex
		order []uint64
	)
	m := NewManager(func(f gpubridge.Fence) {
		mu.Lock()
		order = append(order, f.FenceID)
		mu.Unlock()
		if f.FenceID == 1 {
			close(started)
			<-gate
		}
	})

	for id := uint64(1); id <= 3; id++ {
		m.Register(ringFence(1, 0, id))
	}

	done := make(chan struct{})
	go func() {
		m.Complete(ringFence(1, 0, 1))
		close(done)
	}()
	<-started

	// A concurrent completion on the same ring queues behind the in-flight
	// delivery instead of invoking the handler alongside it.
	finished := make(chan struct{})
	go func() {
		m.Complete(ringFence(1, 0, 3))
		close(finished)
	}()
	<-finished

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	n := len(order)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("deliveries while the first handler is in flight = %d, want 1", n)
	}

	close(gate)
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []uint64{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("delivered %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivered %v, want %v", order, want)
		}
	}
}

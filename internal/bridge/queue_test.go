package bridge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/entity"
)

type recordedStates struct {
	mu     sync.Mutex
	states []entity.State
}

func (r *recordedStates) add(s entity.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recordedStates) sources(entityID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.states {
		if s.EntityID == entityID {
			out = append(out, s.Source)
		}
	}
	return out
}

func TestStateQueue_PerEntityOrder(t *testing.T) {
	rec := &recordedStates{}
	q := newStateQueue(0, rec.add, nil)

	var want []string
	for i := 0; i < 10; i++ {
		src := fmt.Sprint(i)
		want = append(want, src)
		q.push(entity.State{EntityID: "L1", Source: src})
		q.push(entity.State{EntityID: "P1-voltage", Source: src})
	}
	q.wait()

	for _, id := range []string{"L1", "P1-voltage"} {
		if got := rec.sources(id); fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("%s delivered %v, want %v", id, got, want)
		}
	}
}

func TestStateQueue_PushDoesNotWaitForDelivery(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan entity.State, 8)
	q := newStateQueue(0, func(s entity.State) {
		<-release
		delivered <- s
	}, nil)

	pushed := make(chan struct{})
	go func() {
		q.push(entity.State{EntityID: "L1", Source: "a"})
		q.push(entity.State{EntityID: "L1", Source: "b"})
		close(pushed)
	}()

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a slow delivery")
	}

	close(release)
	q.close()
	if len(delivered) != 2 {
		t.Errorf("delivered %d states, want 2", len(delivered))
	}
}

func TestStateQueue_DropsOldestWhenFull(t *testing.T) {
	release := make(chan struct{})
	rec := &recordedStates{}
	var dropped []string
	q := newStateQueue(2, func(s entity.State) {
		<-release
		rec.add(s)
	}, func(s entity.State) { dropped = append(dropped, s.Source) })

	// The worker takes "0" and blocks on it; "1".."3" queue behind it.
	q.push(entity.State{EntityID: "L1", Source: "0"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		taken := len(q.pending["L1"]) == 0
		q.mu.Unlock()
		if taken || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	for _, src := range []string{"1", "2", "3"} {
		q.push(entity.State{EntityID: "L1", Source: src})
	}

	close(release)
	q.wait()

	if fmt.Sprint(dropped) != "[1]" {
		t.Errorf("dropped = %v, want [1]", dropped)
	}
	if got := rec.sources("L1"); fmt.Sprint(got) != "[0 2 3]" {
		t.Errorf("delivered = %v, want [0 2 3]", got)
	}
}

func TestStateQueue_CloseRejects(t *testing.T) {
	rec := &recordedStates{}
	q := newStateQueue(0, rec.add, nil)

	q.push(entity.State{EntityID: "L1"})
	q.close()

	if q.push(entity.State{EntityID: "L1"}) {
		t.Error("push after close = true, want false")
	}
	if got := len(rec.sources("L1")); got != 1 {
		t.Errorf("delivered %d states, want 1", got)
	}
}

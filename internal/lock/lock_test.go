package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadersDoNotBlockEachOther(t *testing.T) {
	m := New()
	ctx := context.Background()

	r1 := m.Acquire(ctx, []string{"lake", "pg", "s1"}, Read)
	defer r1.Release()

	done := make(chan struct{})
	go func() {
		r2 := m.Acquire(ctx, []string{"lake", "pg", "s1"}, Read)
		defer r2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent readers should not block")
	}
}

func TestWriteExcludesRead(t *testing.T) {
	m := New()
	ctx := context.Background()

	w := m.Acquire(ctx, []string{"lake", "pg", "s1"}, Write)

	var acquired atomic.Bool
	go func() {
		r := m.Acquire(ctx, []string{"lake", "pg", "s1"}, Read)
		acquired.Store(true)
		r.Release()
	}()

	time.Sleep(50 * time.Millisecond)
	if acquired.Load() {
		t.Fatal("reader should not acquire while writer holds the node")
	}
	w.Release()

	time.Sleep(50 * time.Millisecond)
	if !acquired.Load() {
		t.Fatal("reader should acquire after writer releases")
	}
}

func TestSerializesWritesOnSamePath(t *testing.T) {
	m := New()
	ctx := context.Background()
	var mu sync.Mutex
	order := make([]int, 0, 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := m.Acquire(ctx, []string{"lake", "pg", "s1"}, Write)
			defer r.Release()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(order) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(order))
	}
}

func TestDisjointPathsDoNotContend(t *testing.T) {
	m := New()
	ctx := context.Background()

	w1 := m.Acquire(ctx, []string{"lake", "pg", "s1"}, Write)
	defer w1.Release()

	done := make(chan struct{})
	go func() {
		w2 := m.Acquire(ctx, []string{"lake", "pg", "s2"}, Write)
		defer w2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disjoint leaf paths should not contend")
	}
}

func TestNodesGarbageCollected(t *testing.T) {
	m := New()
	ctx := context.Background()
	r := m.Acquire(ctx, []string{"a", "b", "c"}, Write)
	r.Release()

	m.mu.Lock()
	n := len(m.nodes)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected all nodes released, got %d remaining", n)
	}
}

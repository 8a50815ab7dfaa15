package chat

import (
	"sync"
	"testing"
	"time"
)

func TestPresenceLocks_SerializesSameName(t *testing.T) {
	t.Parallel()

	p := newPresenceLocks()
	unlock := p.Lock("alice")

	acquired := make(chan struct{})
	go func() {
		u := p.Lock("alice")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatalf("second Lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(testTimeout):
		t.Fatalf("second Lock never acquired")
	}
}

func TestPresenceLocks_DistinctNamesIndependent(t *testing.T) {
	t.Parallel()

	p := newPresenceLocks()
	unlockA := p.Lock("alice")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		p.Lock("bobby")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("lock on bobby blocked by alice")
	}
}

func TestPresenceLocks_ReleasesEntries(t *testing.T) {
	t.Parallel()

	p := newPresenceLocks()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := p.Lock("alice")
			unlock()
			unlock() // idempotent
		}()
	}
	wg.Wait()

	p.mu.Lock()
	n := len(p.locks)
	p.mu.Unlock()
	if n != 0 {
		t.Fatalf("lock entries leaked: %d", n)
	}
}

package bot

import (
	"sync"
	"testing"
)

func TestActiveRegistry(t *testing.T) {
	r := NewActiveRegistry()

	if !r.Acquire("u1") {
		t.Fatal("first Acquire = false, want true")
	}
	if r.Acquire("u1") {
		t.Error("second Acquire for the same actor = true, want false")
	}
	if !r.Acquire("u2") {
		t.Error("Acquire for a different actor = false, want true")
	}
	if !r.Busy("u1") {
		t.Error("Busy(u1) = false, want true")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	r.Release("u1")
	if r.Busy("u1") {
		t.Error("Busy(u1) = true after Release, want false")
	}
	if !r.Acquire("u1") {
		t.Error("Acquire after Release = false, want true")
	}

	// Releasing an actor that is not held is a no-op.
	r.Release("u3")
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestActiveRegistry_Concurrent(t *testing.T) {
	r := NewActiveRegistry()

	const attempts = 50
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Acquire("u1") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("%d concurrent Acquires succeeded, want exactly 1", n)
	}
}

package core

import (
	"sync"
	"testing"
)

// countingSection records Enter/Exit pairs
type countingSection struct {
	mu           sync.Mutex
	enter, exits int
}

func (c *countingSection) Enter() uintptr {
	c.mu.Lock()
	c.enter++
	return uintptr(c.enter)
}

func (c *countingSection) Exit(state uintptr) {
	c.exits++
	c.mu.Unlock()
}

func TestBusyGateAcquireRelease(t *testing.T) {
	cs := &countingSection{}
	g := NewBusyGate(cs)

	tok, err := g.TryAcquire()
	if err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}
	if !g.Busy() {
		t.Error("gate idle after TryAcquire")
	}

	if _, err := g.TryAcquire(); err != ErrBusy {
		t.Errorf("second TryAcquire = %v, want ErrBusy", err)
	}

	g.Release(tok)
	if g.Busy() {
		t.Error("gate busy after Release")
	}
	tok2, err := g.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire after Release: %v", err)
	}
	if tok2 == tok {
		t.Errorf("token reused: %d", tok2)
	}

	if cs.enter != 3 || cs.exits != 3 {
		t.Errorf("critical section enter=%d exit=%d, want 3/3", cs.enter, cs.exits)
	}
}

func TestBusyGateForceIdle(t *testing.T) {
	g := NewBusyGate(nil)
	if _, err := g.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	g.ForceIdle()
	if g.Busy() {
		t.Error("gate busy after ForceIdle")
	}
	if _, err := g.TryAcquire(); err != nil {
		t.Errorf("TryAcquire after ForceIdle: %v", err)
	}
}

func TestBusyGateSingleWinner(t *testing.T) {
	g := NewBusyGate(InterruptMask())

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, busy := 0, 0

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := g.TryAcquire()
			mu.Lock()
			if err == nil {
				wins++
			} else if err == ErrBusy {
				busy++
			}
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || busy != workers-1 {
		t.Errorf("wins=%d busy=%d, want 1 and %d", wins, busy, workers-1)
	}
}

func TestBusyGateReleaseHeldIgnoresStaleToken(t *testing.T) {
	g := NewBusyGate(nil)
	stale, _ := g.TryAcquire()
	g.ForceIdle()
	current, err := g.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}

	g.releaseHeld(stale)
	if !g.Busy() {
		t.Fatal("stale token released the current holder")
	}
	g.releaseHeld(current)
	if g.Busy() {
		t.Error("holder token did not release")
	}
}

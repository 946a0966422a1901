package core

import "sync/atomic"

// CriticalSection is the platform's exclusive-section primitive. Enter
// suppresses preemption (on hardware: masks interrupts) and returns the state
// Exit must restore.
type CriticalSection interface {
	Enter() uintptr
	Exit(state uintptr)
}

// InterruptMask returns the default critical section for the build target.
func InterruptMask() CriticalSection {
	return interruptMask{}
}

const (
	gateIdle uint32 = 0
	gateBusy uint32 = 1
)

// Token is handed out by a successful TryAcquire and identifies the holder.
type Token uint32

// BusyGate guarantees at most one in-flight transaction on a controller.
// It never blocks and never queues: contention is reported to the caller.
type BusyGate struct {
	cs    CriticalSection
	state uint32 // atomic
	seq   uint32
}

// NewBusyGate creates an idle gate guarded by cs.
func NewBusyGate(cs CriticalSection) *BusyGate {
	if cs == nil {
		cs = InterruptMask()
	}
	return &BusyGate{cs: cs}
}

// TryAcquire marks the gate busy, or fails with ErrBusy if it already is.
// The check and the set happen inside the critical section.
func (g *BusyGate) TryAcquire() (Token, error) {
	saved := g.cs.Enter()
	if atomic.LoadUint32(&g.state) == gateBusy {
		g.cs.Exit(saved)
		return 0, ErrBusy
	}
	atomic.StoreUint32(&g.state, gateBusy)
	g.seq++
	tok := Token(g.seq)
	g.cs.Exit(saved)
	return tok, nil
}

// Release returns the gate to idle unconditionally.
func (g *BusyGate) Release(tok Token) {
	atomic.StoreUint32(&g.state, gateIdle)
}

// releaseHeld releases the gate only if tok is still the current holder. A
// transfer that outlived its wait uses it so a Reset and a newer transfer
// are not released by the late completion.
func (g *BusyGate) releaseHeld(tok Token) {
	saved := g.cs.Enter()
	if Token(g.seq) == tok {
		atomic.StoreUint32(&g.state, gateIdle)
	}
	g.cs.Exit(saved)
}

// ForceIdle drops any holder. Only Reset and Init use it.
func (g *BusyGate) ForceIdle() {
	atomic.StoreUint32(&g.state, gateIdle)
}

// Busy reports whether a transaction currently holds the gate.
func (g *BusyGate) Busy() bool {
	return atomic.LoadUint32(&g.state) == gateBusy
}

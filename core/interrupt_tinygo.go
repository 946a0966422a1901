//go:build tinygo

package core

import "runtime/interrupt"

type interruptMask struct{}

// Enter disables interrupts and returns the previous state
func (interruptMask) Enter() uintptr {
	return uintptr(interrupt.Disable())
}

// Exit restores the interrupt state saved by Enter
func (interruptMask) Exit(state uintptr) {
	interrupt.Restore(interrupt.State(state))
}

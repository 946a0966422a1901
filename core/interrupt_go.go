//go:build !tinygo

package core

import "sync"

// On regular Go there are no interrupts to mask; goroutines play that role,
// so the exclusive section is a process-wide mutex. It does not nest.
var hostSection sync.Mutex

type interruptMask struct{}

func (interruptMask) Enter() uintptr {
	hostSection.Lock()
	return 0
}

func (interruptMask) Exit(state uintptr) {
	hostSection.Unlock()
}

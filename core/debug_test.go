package core

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// captureDebug routes debug output into a slice for the duration of the test
func captureDebug(t *testing.T) func() []string {
	t.Helper()
	var mu sync.Mutex
	var lines []string
	prevWriter, prevEnabled := debugPrintln, IsDebugEnabled()
	SetDebugWriter(func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	})
	SetDebugEnabled(true)
	t.Cleanup(func() {
		SetDebugWriter(prevWriter)
		SetDebugEnabled(prevEnabled)
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}

func TestTraceRingOrder(t *testing.T) {
	ClearTrace()
	defer ClearTrace()

	for i := 0; i < TraceRingSize+3; i++ {
		RecordEvent(EvtPoll, uint32(i), i, nil)
	}
	evts := TraceEvents()
	if len(evts) != TraceRingSize {
		t.Fatalf("got %d events, want %d", len(evts), TraceRingSize)
	}
	if evts[0].Op != 3 || evts[len(evts)-1].Op != TraceRingSize+2 {
		t.Errorf("ring order: first op %d, last op %d", evts[0].Op, evts[len(evts)-1].Op)
	}
}

func TestDumpTrace(t *testing.T) {
	lines := captureDebug(t)
	ClearTrace()
	defer ClearTrace()

	RecordEvent(EvtDMADone, 0x9F, 3, ErrBusy)
	DumpTrace()

	got := lines()
	if len(got) != 3 {
		t.Fatalf("dump = %q", got)
	}
	if want := "[TRACE] DMA_DONE op=0x0000009f len=3 status=-4"; got[1] != want {
		t.Errorf("dump line = %q, want %q", got[1], want)
	}
}

func TestDebugPrintlnDisabled(t *testing.T) {
	lines := captureDebug(t)
	SetDebugEnabled(false)
	DebugPrintln("quiet")
	if len(lines()) != 0 {
		t.Errorf("disabled writer printed %q", lines())
	}
}

func TestDebugAsync(t *testing.T) {
	lines := captureDebug(t)
	InitAsyncDebug()
	DebugAsync("[SPIM] late")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, l := range lines() {
			if strings.Contains(l, "late") {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("async message never written")
}

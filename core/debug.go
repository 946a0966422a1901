package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent records one controller event for post-mortem analysis
type TraceEvent struct {
	Kind   uint8  // Event kind code
	Op     uint32 // Opcode / address of the transfer
	Length uint16 // Payload length
	Status int8   // Status code of the outcome
}

// Event kind codes
const (
	EvtPoll     = 1 // Polling transfer finished
	EvtDMAStart = 2 // DMA channel started
	EvtDMADone  = 3 // DMA completion
	EvtReset    = 4 // Controller reset
	EvtADCRead  = 5 // ADC conversion
)

const (
	TraceRingSize = 32 // Keep last 32 events
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	// Disabled by default; transfers run in tight loops
	debugEnabled bool = false

	// Trace ring buffer (non-blocking)
	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceMask     interruptMask

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync from interrupt context)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordEvent captures an event in the trace ring. Safe from interrupt
// context.
func RecordEvent(kind uint8, op uint32, length int, err error) {
	state := traceMask.Enter()
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		Kind:   kind,
		Op:     op,
		Length: uint16(length),
		Status: int8(StatusOf(err)),
	}
	traceRingHead = (idx + 1) % TraceRingSize
	traceMask.Exit(state)
}

// TraceEvents returns the recorded events, oldest first.
func TraceEvents() []TraceEvent {
	state := traceMask.Enter()
	defer traceMask.Exit(state)

	out := make([]TraceEvent, 0, TraceRingSize)
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func (e TraceEvent) String() string {
	var name string
	switch e.Kind {
	case EvtPoll:
		name = "POLL"
	case EvtDMAStart:
		name = "DMA_START"
	case EvtDMADone:
		name = "DMA_DONE"
	case EvtReset:
		name = "RESET"
	case EvtADCRead:
		name = "ADC_READ"
	default:
		name = "UNKNOWN"
	}
	return name + " op=" + hex32(e.Op) +
		" len=" + itoa(int(e.Length)) +
		" status=" + itoa(int(e.Status))
}

// DumpTrace outputs the trace ring (call on shutdown/error)
func DumpTrace() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === Trace Dump ===")
	for _, evt := range TraceEvents() {
		debugPrintln("[TRACE] " + evt.String())
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTrace clears the trace buffer
func ClearTrace() {
	state := traceMask.Enter()
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
	traceMask.Exit(state)
}

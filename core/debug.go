package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures a peripheral event for post-mortem analysis
type TraceEvent struct {
	Kind  uint8  // Evt* code
	ID    uint8  // logical id of the peripheral involved
	Tick  uint32 // system ticks at record time
	Value uint32 // kind-dependent
}

// Trace kinds
const (
	EvtPinRejected      = 1 // pin configuration rejected by hardware
	EvtEdge             = 2 // EXTI line fired
	EvtStreamRejected   = 3 // DMA stream configuration rejected
	EvtBusRejected      = 4 // SPI configuration rejected
	EvtBusTimeout       = 5 // SPI flag wait exhausted its spin limit
	EvtTransferComplete = 6 // ADC DMA sequence delivered
	EvtConversionStart  = 7 // conversion started from a trigger
	EvtQueueOverflow    = 8 // event queue full, newest dropped
	EvtCommandPanic     = 9 // command handler panicked; value is the command id
)

const (
	TraceRingSize = 32
)

var (
	// debugPrintln is set by platform code; no-op by default
	debugPrintln DebugWriter = func(s string) {}

	debugEnabled bool

	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceEnabled  = true
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTrace captures an event in the trace ring. Safe from interrupt context.
func RecordTrace(kind, id uint8, value uint32) {
	if !traceEnabled {
		return
	}
	state := disableInterrupts()
	idx := traceRingHead
	traceRing[idx] = TraceEvent{Kind: kind, ID: id, Tick: GetTime(), Value: value}
	traceRingHead = (idx + 1) % TraceRingSize
	restoreInterrupts(state)
}

// TraceSnapshot returns the recorded events, oldest first.
func TraceSnapshot() []TraceEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(traceRingHead+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// TraceName returns the display name of a trace kind.
func TraceName(kind uint8) string {
	switch kind {
	case EvtPinRejected:
		return "PIN_REJECTED"
	case EvtEdge:
		return "EDGE"
	case EvtStreamRejected:
		return "STREAM_REJECTED"
	case EvtBusRejected:
		return "BUS_REJECTED"
	case EvtBusTimeout:
		return "BUS_TIMEOUT!"
	case EvtTransferComplete:
		return "DMA_TC"
	case EvtConversionStart:
		return "ADC_START"
	case EvtQueueOverflow:
		return "QUEUE_OVERFLOW!"
	case EvtCommandPanic:
		return "COMMAND_PANIC!"
	}
	return "UNKNOWN"
}

// DumpTrace writes the trace ring through the debug writer (call on fault)
func DumpTrace() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === Trace Ring Dump ===")
	for _, evt := range TraceSnapshot() {
		debugPrintln("[TRACE] " + TraceName(evt.Kind) +
			" id=" + utoa(uint32(evt.ID)) +
			" tick=" + utoa(evt.Tick) +
			" v=" + utoa(evt.Value))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// RecordCommandPanic traces a panicked command handler and dumps the ring.
// Install it with Link.SetPanicCallback.
func RecordCommandPanic(cmd uint16) {
	RecordTrace(EvtCommandPanic, 0, uint32(cmd))
	DebugPrintln("command " + utoa(uint32(cmd)) + " panicked")
	DumpTrace()
}

// ClearTrace empties the trace ring
func ClearTrace() {
	state := disableInterrupts()
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
	restoreInterrupts(state)
}

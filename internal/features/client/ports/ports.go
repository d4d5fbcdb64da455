package ports

// EventKind classifies a driver event.
type EventKind int

const (
	// EventInfo is a progress note.
	EventInfo EventKind = iota
	// EventSent is a line written to the control channel.
	EventSent
	// EventReceived is a line read from the control channel.
	EventReceived
	// EventSuccess ends an operation that completed.
	EventSuccess
	// EventError ends an operation that failed.
	EventError
	// EventWarn is a recoverable problem.
	EventWarn
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "INFO"
	case EventSent:
		return "SENT"
	case EventReceived:
		return "RECV"
	case EventSuccess:
		return "SUCCESS"
	case EventError:
		return "ERROR"
	case EventWarn:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

// EventSink receives the driver's events. OnEvent is called from the driver's
// worker goroutine and should return quickly.
type EventSink interface {
	OnEvent(kind EventKind, text string)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(kind EventKind, text string)

// OnEvent calls f(kind, text).
func (f EventSinkFunc) OnEvent(kind EventKind, text string) {
	f(kind, text)
}

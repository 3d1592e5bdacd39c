package shutdown

// State is the shutdown state owned by the Controller.
type State int

const (
	StateIdle State = iota
	StatePendingLowVoltage
	// StatePendingButton is terminal: power-off has been requested.
	StatePendingButton
)

func (s State) String() string {
	switch s {
	case StatePendingLowVoltage:
		return "pending_low_voltage"
	case StatePendingButton:
		return "pending_button"
	default:
		return "idle"
	}
}

// Reason identifies what raised an intent.
type Reason int

const (
	ReasonLowVoltage Reason = iota
	ReasonButton
)

func (r Reason) String() string {
	if r == ReasonButton {
		return "button"
	}
	return "low_voltage"
}

// Kind is the requested transition.
type Kind int

const (
	KindBegin Kind = iota
	KindAbort
	KindNow
)

func (k Kind) String() string {
	switch k {
	case KindAbort:
		return "abort"
	case KindNow:
		return "now"
	default:
		return "begin"
	}
}

// Intent is a request to change the shutdown state. Hardware callbacks and
// the battery estimator produce intents; only the Controller applies them.
type Intent struct {
	Kind   Kind
	Reason Reason
	Source string // "ldo", "button" or "adc"
}

// BeginShutdown builds a delayed shutdown intent.
func BeginShutdown(reason Reason, source string) Intent {
	return Intent{Kind: KindBegin, Reason: reason, Source: source}
}

// AbortShutdown builds an abort intent.
func AbortShutdown(reason Reason, source string) Intent {
	return Intent{Kind: KindAbort, Reason: reason, Source: source}
}

// ShutdownNow builds an immediate power-off intent.
func ShutdownNow(reason Reason, source string) Intent {
	return Intent{Kind: KindNow, Reason: reason, Source: source}
}

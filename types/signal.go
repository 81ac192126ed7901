package types

// Signal is a per-bar trading signal.
type Signal int

const (
	// SignalShort exits a long position or opens a short.
	SignalShort Signal = -1
	// SignalNone takes no action.
	SignalNone Signal = 0
	// SignalLong enters or holds a long position.
	SignalLong Signal = 1
)

// String returns a human-readable label for the signal.
func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "BUY"
	case SignalShort:
		return "SELL"
	default:
		return "HOLD"
	}
}

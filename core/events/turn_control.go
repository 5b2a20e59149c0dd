package events

const (
	// KindTurnCancel identifies a request to cancel the in-flight turn.
	KindTurnCancel Kind = "turn_control.cancel"
)

// TurnCancel requests cancellation of the in-flight turn.
type TurnCancel struct{ Base }

// NewTurnCancel creates a turn cancellation request event.
func NewTurnCancel() TurnCancel {
	return TurnCancel{Base: NewBase(KindTurnCancel)}
}

package events

const (
	// KindTurnStarted identifies the start of a turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies successful completion of a turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a turn that failed without a commit.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies a turn cancelled before completion.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of processing for one utterance.
type TurnStarted struct {
	Base
	Utterance string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(utterance string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), Utterance: utterance}
}

// TurnCompleted marks a turn whose committed response finished delivery.
type TurnCompleted struct{ Base }

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted() TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted)}
}

// TurnFailed marks a turn that ended without any committed response.
type TurnFailed struct {
	Base
	Reason string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(reason string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), Reason: reason}
}

// TurnCancelled marks a turn cancelled by barge-in or session teardown.
type TurnCancelled struct{ Base }

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled() TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled)}
}

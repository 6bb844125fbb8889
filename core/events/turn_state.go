package events

const (
	// KindTurnCompleted identifies successful completion of a turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnCanceled identifies backend-side cancellation of a turn.
	KindTurnCanceled Kind = "turn_state.cancelled"
)

// TurnCompleted marks the backend finishing production of a turn.
type TurnCompleted struct {
	Base
	TurnID string
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID}
}

// TurnCanceled marks the backend abandoning a turn.
type TurnCanceled struct {
	Base
	TurnID string
}

// NewTurnCanceled creates a turn cancelled event.
func NewTurnCanceled(turnID string) TurnCanceled {
	return TurnCanceled{Base: NewBase(KindTurnCanceled), TurnID: turnID}
}

package orchestration

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/veliryo/avatar-core/core/events"
)

// normalizeEvent validates an inbound event and fills in fields the backend
// is allowed to omit. Malformed events are rejected rather than repaired so
// they never reach the buffering or transcript state.
func normalizeEvent(event events.Event) (events.Event, error) {
	switch typedEvent := event.(type) {
	case nil:
		return nil, errors.New("nil event")
	case events.AudioDelta:
		if typedEvent.TurnID == "" {
			return nil, errors.New("audio delta without turn id")
		}
		if len(typedEvent.Payload) == 0 {
			return nil, errors.New("audio delta without payload")
		}
	case events.TextDelta:
		if typedEvent.TurnID == "" {
			return nil, errors.New("text delta without turn id")
		}
	case events.TurnCompleted:
		if typedEvent.TurnID == "" {
			return nil, errors.New("turn completion without turn id")
		}
	case events.TurnCanceled:
		if typedEvent.TurnID == "" {
			return nil, errors.New("turn cancellation without turn id")
		}
	case events.UserTranscriptFinal:
		if strings.TrimSpace(typedEvent.Transcript) == "" {
			return nil, errors.New("user transcript without text")
		}
		if typedEvent.ItemID == "" {
			typedEvent.ItemID = uuid.NewString()
			return typedEvent, nil
		}
	}
	return event, nil
}

// eventTurnID extracts the assistant turn id from turn-scoped events. User
// input events carry no turn id and report false.
func eventTurnID(event events.Event) (string, bool) {
	switch typedEvent := event.(type) {
	case events.AudioDelta:
		return typedEvent.TurnID, true
	case events.TextDelta:
		return typedEvent.TurnID, true
	case events.TurnCompleted:
		return typedEvent.TurnID, true
	case events.TurnCanceled:
		return typedEvent.TurnID, true
	}
	return "", false
}

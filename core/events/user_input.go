package events

import "time"

const (
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of user speech activity.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserTranscriptFinal identifies the final transcript for the utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserSpeechEnded marks when user speech activity ends.
type UserSpeechEnded struct{ Base }

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded() UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded)}
}

// UserTranscriptFinal carries the final transcript for one user utterance.
//
// The base timestamp is the backend-provided one; it may disagree with
// arrival order, the reconciler owns causal ordering.
type UserTranscriptFinal struct {
	Base
	ItemID     string
	Transcript string
}

// NewUserTranscriptFinal creates a final user transcript event with the
// backend-provided timestamp.
func NewUserTranscriptFinal(itemID string, transcript string, at time.Time) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBaseAt(KindUserTranscriptFinal, at), ItemID: itemID, Transcript: transcript}
}

package speechfeed

import "time"

// FeedOptions carries the callbacks a feed client invokes as backend frames
// arrive, plus connection tuning shared by implementations.
type FeedOptions struct {
	AudioDeltaCallback          func(turnID string, payload []byte, at time.Time)
	TextDeltaCallback           func(turnID string, text string, at time.Time)
	TurnCompletedCallback       func(turnID string)
	TurnCanceledCallback        func(turnID string)
	UserSpeechStartedCallback   func()
	UserSpeechEndedCallback     func()
	UserTranscriptFinalCallback func(itemID string, transcript string, at time.Time)

	KeepAliveInterval time.Duration
}

type FeedOption func(*FeedOptions)

func WithAudioDeltaCallback(callback func(turnID string, payload []byte, at time.Time)) FeedOption {
	return func(o *FeedOptions) {
		o.AudioDeltaCallback = callback
	}
}

func WithTextDeltaCallback(callback func(turnID string, text string, at time.Time)) FeedOption {
	return func(o *FeedOptions) {
		o.TextDeltaCallback = callback
	}
}

func WithTurnCompletedCallback(callback func(turnID string)) FeedOption {
	return func(o *FeedOptions) {
		o.TurnCompletedCallback = callback
	}
}

func WithTurnCanceledCallback(callback func(turnID string)) FeedOption {
	return func(o *FeedOptions) {
		o.TurnCanceledCallback = callback
	}
}

func WithUserSpeechStartedCallback(callback func()) FeedOption {
	return func(o *FeedOptions) {
		o.UserSpeechStartedCallback = callback
	}
}

func WithUserSpeechEndedCallback(callback func()) FeedOption {
	return func(o *FeedOptions) {
		o.UserSpeechEndedCallback = callback
	}
}

func WithUserTranscriptFinalCallback(callback func(itemID string, transcript string, at time.Time)) FeedOption {
	return func(o *FeedOptions) {
		o.UserTranscriptFinalCallback = callback
	}
}

// WithKeepAliveInterval overrides how often the client pings an otherwise
// idle connection.
func WithKeepAliveInterval(interval time.Duration) FeedOption {
	return func(o *FeedOptions) {
		o.KeepAliveInterval = interval
	}
}

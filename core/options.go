package orchestration

import (
	"context"
	"time"

	"github.com/veliryo/avatar-core/core/speechfeed"
)

type OrchestratorOption func(*Orchestrator)

// Renderer is the avatar playback surface clips are submitted to. SubmitClip
// returns once the renderer has accepted (not finished playing) the clip.
type Renderer interface {
	SubmitClip(ctx context.Context, clip []byte) error
	CancelActiveSpeech() error
	MarkTurnFinished() error
}

func WithRenderer(client Renderer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.renderer = client
	}
}

// SpeechFeed is the upstream speech-generation connection that produces the
// event stream the orchestrator consumes.
type SpeechFeed interface {
	Open(ctx context.Context, opts ...speechfeed.FeedOption) error
	Close(ctx context.Context) error
}

func WithSpeechFeed(client SpeechFeed) OrchestratorOption {
	return func(o *Orchestrator) {
		o.feed = client
	}
}

func WithConfig(cfg Config) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

type OrchestrateOptions struct {
	onTranscriptUpdated    func(entries []TranscriptEntry)
	onStatus               func(status string)
	onCoachPrompt          func(countdown time.Duration)
	onSessionEnded         func()
	onClipSubmitted        func(turnID string, clip []byte)
	onCancellation         func(turnID string)
	onTurnStateChanged     func(state TurnState)
	onSpeakingStateChanged func(isSpeaking bool)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptCallback registers a callback invoked with the full ordered
// transcript after every reconciliation.
func WithTranscriptCallback(callback func(entries []TranscriptEntry)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscriptUpdated = callback
	}
}

// WithStatusCallback registers a callback for user-visible status messages,
// including non-fatal audio pipeline errors.
func WithStatusCallback(callback func(status string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onStatus = callback
	}
}

// WithCoachPromptCallback registers a callback fired when prolonged silence
// warrants a nudge; countdown is the remaining time until auto-end.
func WithCoachPromptCallback(callback func(countdown time.Duration)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCoachPrompt = callback
	}
}

func WithSessionEndCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSessionEnded = callback
	}
}

// WithClipSubmittedCallback registers a callback for every clip accepted by
// the renderer. The slice is passed through without a defensive copy.
func WithClipSubmittedCallback(callback func(turnID string, clip []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onClipSubmitted = callback
	}
}

// WithCancellationCallback registers a callback fired when an assistant turn
// is cancelled, whether by the backend or by a confirmed interrupt.
func WithCancellationCallback(callback func(turnID string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCancellation = callback
	}
}

func WithTurnStateChangedCallback(callback func(state TurnState)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnStateChanged = callback
	}
}

// WithSpeakingStateChangedCallback registers a callback for user
// speaking-state updates derived from the speech feed.
func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSpeakingStateChanged = callback
	}
}

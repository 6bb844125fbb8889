package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veliryo/avatar-core/core/events"
	"github.com/veliryo/avatar-core/core/speechfeed"
)

// TurnState is the coarse conversation state exposed to the display layer.
type TurnState string

const (
	TurnStateIdle              TurnState = "idle"
	TurnStateListening         TurnState = "listening"
	TurnStateAssistantSpeaking TurnState = "assistant_speaking"
	TurnStateInterrupted       TurnState = "interrupted"
)

// Orchestrator sits between the speech feed and the avatar renderer: it
// assembles fragmented audio into renderable clips, reconciles the two
// transcript streams, arbitrates user interruptions and supervises silence.
type Orchestrator struct {
	cfg      Config
	renderer Renderer
	feed     SpeechFeed

	assembler  *assembler
	reconciler *transcriptReconciler
	interrupts *interruptCoordinator
	silence    *silenceMonitor

	emit               eventEmitter
	orchestrateOptions OrchestrateOptions
	baseContext        context.Context

	mu             sync.Mutex
	turnState      TurnState
	activeTurnID   string
	cancelledTurns map[string]struct{}
	closed         bool

	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cfg:            DefaultConfig(),
		baseContext:    context.Background(),
		emit:           noopEventEmitter,
		turnState:      TurnStateIdle,
		cancelledTurns: map[string]struct{}{},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.reconciler = newTranscriptReconciler(o.cfg)
	o.assembler = newAssembler(o.cfg, o.renderer, assemblerCallbacks{
		OnStatus: func(status string) {
			if o.orchestrateOptions.onStatus != nil {
				o.orchestrateOptions.onStatus(status)
			}
		},
		OnClipSubmitted: o.clipSubmitted,
		OnTurnFinished:  o.assistantTurnFinished,
	})
	o.interrupts = newInterruptCoordinator(o.cfg, interruptCallbacks{
		HasAssistantAudio: o.hasAssistantAudio,
		OnConfirmed:       o.confirmInterrupt,
		OnDismissed: func(reason string) {
			logger.Info("dismissed interrupt candidate", "reason", reason)
		},
	})
	o.silence = newSilenceMonitor(o.cfg, silenceCallbacks{
		OnCoach: func(countdown time.Duration) {
			if o.orchestrateOptions.onCoachPrompt != nil {
				o.orchestrateOptions.onCoachPrompt(countdown)
			}
		},
		OnAutoEnd: func() {
			if o.orchestrateOptions.onSessionEnded != nil {
				o.orchestrateOptions.onSessionEnded()
			}
			go o.Close()
		},
	})

	return o
}

// Orchestrate starts the session: callbacks are registered, the watchdog
// begins sweeping and, if a speech feed is configured, its connection is
// opened and routed into [Orchestrator.Handle].
//
// Contract: call Orchestrate at most once per orchestrator instance.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	if o.isClosed() {
		log.Println("Warning: orchestrator already closed, skipping Orchestrate")
		return
	}

	o.orchestrateOptions = OrchestrateOptions{}
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}

	o.baseContext = ctx
	o.emit = newCallbackEventEmitter(o.orchestrateOptions)
	o.assembler.startWatchdog()

	go func() {
		<-ctx.Done()
		o.Close()
	}()

	if o.feed == nil {
		return
	}
	if err := o.feed.Open(ctx,
		speechfeed.WithAudioDeltaCallback(func(turnID string, payload []byte, at time.Time) {
			go o.Handle(events.NewAudioDelta(turnID, payload))
		}),
		speechfeed.WithTextDeltaCallback(func(turnID string, text string, at time.Time) {
			go o.Handle(events.NewTextDelta(turnID, text))
		}),
		speechfeed.WithTurnCompletedCallback(func(turnID string) {
			go o.Handle(events.NewTurnCompleted(turnID))
		}),
		speechfeed.WithTurnCanceledCallback(func(turnID string) {
			go o.Handle(events.NewTurnCanceled(turnID))
		}),
		speechfeed.WithUserSpeechStartedCallback(func() {
			go o.Handle(events.NewUserSpeechStarted())
		}),
		speechfeed.WithUserSpeechEndedCallback(func() {
			go o.Handle(events.NewUserSpeechEnded())
		}),
		speechfeed.WithUserTranscriptFinalCallback(func(itemID string, transcript string, at time.Time) {
			go o.Handle(events.NewUserTranscriptFinal(itemID, transcript, at))
		}),
	); err != nil {
		recordedErr := fmt.Errorf("failed to open speech feed: %w", err)
		span := trace.SpanFromContext(o.baseContext)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}
}

// Handle folds one event into the session. Malformed events are dropped with
// a log line and never mutate state.
func (o *Orchestrator) Handle(event events.Event) {
	if o.isClosed() {
		return
	}

	event, err := normalizeEvent(event)
	if err != nil {
		logger.Warn("dropped malformed event", "error", err)
		return
	}

	// Backends keep streaming fragments until the cancellation reaches them;
	// nothing from a cancelled turn may reach the buffers or the transcript.
	if turnID, ok := eventTurnID(event); ok && o.isCancelledTurn(turnID) {
		logger.Info("dropped straggler event for cancelled turn",
			"turn_id", turnID, "kind", event.Kind())
		return
	}

	o.emit(event)

	switch typedEvent := event.(type) {
	case events.AudioDelta:
		o.noteAssistantTurn(typedEvent.TurnID)
		o.silence.OnActivity()
		o.assembler.Ingest(typedEvent.TurnID, typedEvent.Payload)
	case events.TextDelta:
		o.noteAssistantTurn(typedEvent.TurnID)
		o.silence.OnActivity()
		o.notifyTranscript(o.reconciler.Reconcile(typedEvent))
	case events.TurnCompleted:
		o.notifyTranscript(o.reconciler.Reconcile(typedEvent))
		o.assembler.EndTurn(typedEvent.TurnID)
	case events.TurnCanceled:
		o.cancelTurn(typedEvent.TurnID, "cancelled", TurnStateIdle)
	case events.UserSpeechStarted:
		o.silence.OnActivity()
		o.interrupts.OnUserSpeechStart()
		o.transitionTurnState(TurnStateIdle, TurnStateListening)
	case events.UserSpeechEnded:
		o.interrupts.OnUserSpeechEnd()
		o.transitionTurnState(TurnStateListening, TurnStateIdle)
	case events.UserTranscriptFinal:
		o.silence.OnActivity()
		o.pruneCancelledTurns()
		o.notifyTranscript(o.reconciler.Reconcile(typedEvent))
		// A finalized utterance after a confirmed interrupt ends the
		// interrupted state; the backend will answer with a fresh turn.
		o.transitionTurnState(TurnStateInterrupted, TurnStateIdle)
		o.transitionTurnState(TurnStateListening, TurnStateIdle)
	}
}

// TurnState returns the current coarse conversation state.
func (o *Orchestrator) TurnState() TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turnState
}

// Transcript returns a point-in-time snapshot of the reconciled transcript.
func (o *Orchestrator) Transcript() []TranscriptEntry {
	return o.reconciler.Entries()
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		if o.feed != nil {
			if err := o.feed.Close(o.baseContext); err != nil {
				recordedErr := fmt.Errorf("failed to close speech feed: %w", err)
				span := trace.SpanFromContext(o.baseContext)
				span.RecordError(recordedErr)
				span.SetStatus(codes.Error, recordedErr.Error())
			}
		}

		o.assembler.stopWatchdog()
		o.interrupts.Close()
		o.silence.Close()
	})
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) noteAssistantTurn(turnID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeTurnID = turnID
}

func (o *Orchestrator) isCancelledTurn(turnID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cancelledTurns[turnID]
	return ok
}

// pruneCancelledTurns clears the tombstone set. Called on the next finalized
// user utterance: by then the backend has processed the cancellation and will
// not resend the old turn's fragments.
func (o *Orchestrator) pruneCancelledTurns() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.cancelledTurns)
}

func (o *Orchestrator) hasAssistantAudio() bool {
	o.mu.Lock()
	turnID := o.activeTurnID
	speaking := o.turnState == TurnStateAssistantSpeaking
	o.mu.Unlock()

	if turnID == "" {
		return false
	}
	return speaking || o.assembler.HasPendingAudio(turnID)
}

// confirmInterrupt tears down the active assistant turn after the
// coordinator confirmed genuine barge-in.
func (o *Orchestrator) confirmInterrupt() {
	o.mu.Lock()
	turnID := o.activeTurnID
	o.mu.Unlock()

	if turnID == "" {
		return
	}
	o.cancelTurn(turnID, "interrupted", TurnStateInterrupted)
	o.emit(events.NewTurnCanceled(turnID))
}

// cancelTurn drops buffered audio, cuts renderer playback and removes the
// turn's unfinalized transcript text. The turn id is tombstoned so straggler
// fragments cannot recreate any of it.
func (o *Orchestrator) cancelTurn(turnID string, reason string, nextState TurnState) {
	o.mu.Lock()
	o.cancelledTurns[turnID] = struct{}{}
	o.mu.Unlock()

	if _, err := o.assembler.Discard(turnID, reason); err != nil && !errors.Is(err, ErrNoActiveTurn) {
		logger.Warn("failed to discard assembly buffer", "turn_id", turnID, "error", err)
	}

	if o.renderer != nil {
		if err := o.renderer.CancelActiveSpeech(); err != nil {
			logger.Warn("failed to cancel active speech", "turn_id", turnID, "error", err)
		}
	}

	o.reconciler.DropUnfinalized(turnID)
	o.notifyTranscript(o.reconciler.Entries())

	o.mu.Lock()
	if o.activeTurnID == turnID {
		o.activeTurnID = ""
	}
	o.mu.Unlock()
	o.setTurnState(nextState)
}

func (o *Orchestrator) clipSubmitted(turnID string, clip []byte) {
	o.mu.Lock()
	active := o.activeTurnID == turnID
	o.mu.Unlock()

	if active {
		o.setTurnState(TurnStateAssistantSpeaking)
	}
	if o.orchestrateOptions.onClipSubmitted != nil {
		o.orchestrateOptions.onClipSubmitted(turnID, clip)
	}
}

func (o *Orchestrator) assistantTurnFinished(turnID string) {
	o.mu.Lock()
	if o.activeTurnID == turnID {
		o.activeTurnID = ""
	}
	o.mu.Unlock()

	o.transitionTurnState(TurnStateAssistantSpeaking, TurnStateIdle)
	o.silence.OnAssistantTurnEnd()
}

func (o *Orchestrator) notifyTranscript(entries []TranscriptEntry) {
	if o.orchestrateOptions.onTranscriptUpdated != nil {
		o.orchestrateOptions.onTranscriptUpdated(entries)
	}
}

func (o *Orchestrator) setTurnState(state TurnState) {
	o.mu.Lock()
	if o.turnState == state {
		o.mu.Unlock()
		return
	}
	o.turnState = state
	o.mu.Unlock()

	if o.orchestrateOptions.onTurnStateChanged != nil {
		o.orchestrateOptions.onTurnStateChanged(state)
	}
}

// transitionTurnState moves to next only when currently in from.
func (o *Orchestrator) transitionTurnState(from, next TurnState) {
	o.mu.Lock()
	if o.turnState != from {
		o.mu.Unlock()
		return
	}
	o.turnState = next
	o.mu.Unlock()

	if o.orchestrateOptions.onTurnStateChanged != nil {
		o.orchestrateOptions.onTurnStateChanged(next)
	}
}

package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// assembler converts many small, irregularly-timed audio fragments into
// fewer, correctly-sized clips, because the renderer exhibits stutter and
// restart artifacts on undersized or overly frequent submissions.
//
// Flushes for one turn are strictly serialized through the buffer's inFlight
// flag; flushes for different turns interleave freely.
type assembler struct {
	cfg       Config
	renderer  Renderer
	callbacks assemblerCallbacks

	baseContext context.Context

	mu      sync.Mutex
	buffers map[string]*assemblyBuffer

	watchdogStop chan struct{}
	watchdogDone chan struct{}
	stopOnce     sync.Once
}

type assemblerCallbacks struct {
	OnStatus        func(status string)
	OnClipSubmitted func(turnID string, clip []byte)
	OnTurnFinished  func(turnID string)
}

func (c *assemblerCallbacks) defaults() *assemblerCallbacks {
	c.OnStatus = func(string) {}
	c.OnClipSubmitted = func(string, []byte) {}
	c.OnTurnFinished = func(string) {}
	return c
}

func (c *assemblerCallbacks) with(callbacks assemblerCallbacks) *assemblerCallbacks {
	if callbacks.OnStatus != nil {
		c.OnStatus = callbacks.OnStatus
	}
	if callbacks.OnClipSubmitted != nil {
		c.OnClipSubmitted = callbacks.OnClipSubmitted
	}
	if callbacks.OnTurnFinished != nil {
		c.OnTurnFinished = callbacks.OnTurnFinished
	}
	return c
}

func newAssembler(cfg Config, renderer Renderer, callbacks assemblerCallbacks) *assembler {
	return &assembler{
		cfg:         cfg,
		renderer:    renderer,
		callbacks:   *(new(assemblerCallbacks).defaults().with(callbacks)),
		baseContext: context.Background(),
		buffers:     map[string]*assemblyBuffer{},
	}
}

// Ingest appends a fragment to the turn's buffer, creating the buffer on the
// first fragment for a new turn id, and re-evaluates the flush decision.
func (a *assembler) Ingest(turnID string, payload []byte) {
	if len(payload) == 0 {
		return
	}

	a.mu.Lock()
	buffer, ok := a.buffers[turnID]
	if !ok {
		buffer = newAssemblyBuffer(turnID)
		a.buffers[turnID] = buffer
	}
	a.mu.Unlock()

	buffer.append(payload, time.Now())
	a.flushBuffer(buffer, false)
}

// MaybeFlush re-evaluates the flush decision for a turn, optionally forcing
// submission of whatever is buffered. Returns ErrNoActiveTurn when the turn
// has no assembly state.
func (a *assembler) MaybeFlush(turnID string, force bool) error {
	a.mu.Lock()
	buffer := a.buffers[turnID]
	a.mu.Unlock()

	if buffer == nil {
		return ErrNoActiveTurn
	}
	a.flushBuffer(buffer, force)
	return nil
}

// EndTurn handles the terminal signal for a turn: any remainder is
// force-flushed even below threshold, and per-turn buffering state is
// removed once drained so the next turn starts clean.
func (a *assembler) EndTurn(turnID string) {
	a.mu.Lock()
	buffer := a.buffers[turnID]
	a.mu.Unlock()

	if buffer == nil {
		// Nothing was ever buffered for this turn; still report it finished.
		a.markTurnFinished(turnID)
		return
	}

	buffer.mu.Lock()
	buffer.closing = true
	buffer.mu.Unlock()

	a.flushBuffer(buffer, true)
	a.finishIfDrained(buffer)
}

// Discard drops the turn's buffered audio without flushing and invalidates
// any in-flight submission against it. Returns the number of bytes dropped,
// or ErrNoActiveTurn when the turn has no assembly state.
func (a *assembler) Discard(turnID string, reason string) (int, error) {
	a.mu.Lock()
	buffer := a.buffers[turnID]
	delete(a.buffers, turnID)
	a.mu.Unlock()

	if buffer == nil {
		return 0, ErrNoActiveTurn
	}

	buffer.mu.Lock()
	dropped := buffer.discardLocked()
	buffer.mu.Unlock()

	logger.Info("discarded assembly buffer",
		"turn_id", turnID, "reason", reason, "dropped_bytes", dropped)
	return dropped, nil
}

// HasPendingAudio reports whether the turn still has buffered or in-flight
// audio. The interrupt coordinator reads this instead of touching the buffer.
func (a *assembler) HasPendingAudio(turnID string) bool {
	a.mu.Lock()
	buffer := a.buffers[turnID]
	a.mu.Unlock()

	return buffer != nil && buffer.hasActiveAudio()
}

func (a *assembler) flushBuffer(buffer *assemblyBuffer, force bool) {
	now := time.Now()

	buffer.mu.Lock()
	if buffer.inFlight {
		// Never flush twice concurrently for one turn; remember to
		// re-evaluate once the in-flight flush completes.
		if force || buffer.shouldFlushLocked(a.cfg, now, false) {
			buffer.flushAgain = true
		}
		buffer.mu.Unlock()
		return
	}
	if !buffer.shouldFlushLocked(a.cfg, now, force) {
		buffer.mu.Unlock()
		return
	}
	clip := buffer.takeClipLocked(now)
	generation := buffer.generation
	buffer.mu.Unlock()

	if len(clip) == 0 {
		buffer.completeFlush()
		return
	}

	// Submission is the only true suspension point; all buffer mutation stays
	// synchronous.
	go a.submit(buffer, clip, generation)
}

func (a *assembler) submit(buffer *assemblyBuffer, clip []byte, generation int) {
	delay := a.cfg.RetryBaseDelay
	retries := 0

	for {
		err := a.submitClip(clip)
		if err == nil {
			a.callbacks.OnClipSubmitted(buffer.turnID, clip)
			break
		}

		if !IsTransientSubmitFailure(err) {
			logger.Warn("dropping clip, renderer unavailable",
				"turn_id", buffer.turnID, "reason", "submit-failure", "dropped_bytes", len(clip))
			a.callbacks.OnStatus(fmt.Sprintf("audio error: %v", err))
			break
		}

		if retries >= a.cfg.MaxSubmitRetries {
			submitErr := &SubmitError{TurnID: buffer.turnID, Attempts: retries + 1, Err: err}
			logger.Warn("dropping clip, retries exhausted",
				"turn_id", buffer.turnID, "reason", "submit-failure", "dropped_bytes", len(clip))
			a.callbacks.OnStatus(fmt.Sprintf("audio error: %v", submitErr))
			break
		}

		// Re-queue the unsent payload at the head so a discard during backoff
		// drops it and fragments that arrived meanwhile ride along on retry.
		buffer.requeueHead(clip, time.Now())
		retries++
		time.Sleep(delay)
		delay *= 2
		if delay > a.cfg.RetryDelayCap {
			delay = a.cfg.RetryDelayCap
		}

		buffer.mu.Lock()
		if buffer.generation != generation {
			// Discarded while backing off; the discard already reset the
			// in-flight state.
			buffer.mu.Unlock()
			return
		}
		clip = buffer.takeClipLocked(time.Now())
		buffer.mu.Unlock()

		if len(clip) == 0 {
			break
		}
	}

	buffer.mu.Lock()
	if buffer.generation != generation {
		buffer.mu.Unlock()
		return
	}
	buffer.mu.Unlock()

	again := buffer.completeFlush()
	buffer.mu.Lock()
	closing := buffer.closing
	buffer.mu.Unlock()
	if again {
		// A terminal signal during the in-flight flush forces the remainder
		// out even below threshold.
		a.flushBuffer(buffer, closing)
	}
	a.finishIfDrained(buffer)
}

func (a *assembler) submitClip(clip []byte) error {
	if a.renderer == nil {
		return nil
	}
	return a.renderer.SubmitClip(a.baseContext, clip)
}

func (a *assembler) finishIfDrained(buffer *assemblyBuffer) {
	buffer.mu.Lock()
	done := buffer.closing && buffer.bufferedSize == 0 && !buffer.inFlight
	buffer.mu.Unlock()

	if !done {
		return
	}

	a.mu.Lock()
	if a.buffers[buffer.turnID] == buffer {
		delete(a.buffers, buffer.turnID)
	}
	a.mu.Unlock()

	a.markTurnFinished(buffer.turnID)
}

func (a *assembler) markTurnFinished(turnID string) {
	if a.renderer != nil {
		if err := a.renderer.MarkTurnFinished(); err != nil {
			logger.Warn("failed to mark turn finished", "turn_id", turnID, "error", err)
		}
	}
	a.callbacks.OnTurnFinished(turnID)
}

// startWatchdog launches the periodic sweep that recovers stale buffers and
// stuck flushes. Stopped by stopWatchdog on session teardown.
func (a *assembler) startWatchdog() {
	a.mu.Lock()
	if a.watchdogStop != nil {
		a.mu.Unlock()
		return
	}
	a.watchdogStop = make(chan struct{})
	a.watchdogDone = make(chan struct{})
	stop, done := a.watchdogStop, a.watchdogDone
	a.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(a.cfg.WatchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				a.sweep(time.Now())
			}
		}
	}()
}

func (a *assembler) stopWatchdog() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		stop, done := a.watchdogStop, a.watchdogDone
		a.mu.Unlock()
		if stop == nil {
			return
		}
		close(stop)
		<-done
	})
}

// sweep inspects every buffer once: a buffer with pending data that has not
// flushed within the stale window is force-flushed; an in-flight flush older
// than the stuck window is cleared and retried.
func (a *assembler) sweep(now time.Time) {
	a.mu.Lock()
	buffers := make([]*assemblyBuffer, 0, len(a.buffers))
	for _, buffer := range a.buffers {
		buffers = append(buffers, buffer)
	}
	a.mu.Unlock()

	for _, buffer := range buffers {
		var forceFlush bool
		var repeatedRecovery bool

		buffer.mu.Lock()
		switch {
		case buffer.inFlight && now.Sub(buffer.inFlightSince) >= a.cfg.StuckFlushAfter:
			buffer.generation++
			buffer.inFlight = false
			buffer.inFlightSince = time.Time{}
			buffer.flushAgain = false
			buffer.stuckRecoveries++
			repeatedRecovery = buffer.stuckRecoveries > 1
			forceFlush = buffer.bufferedSize > 0
			logger.Warn("cleared stuck flush",
				"turn_id", buffer.turnID, "recoveries", buffer.stuckRecoveries)
		case !buffer.inFlight && buffer.bufferedSize > 0 &&
			!buffer.firstChunkAt.IsZero() && now.Sub(buffer.firstChunkAt) >= a.cfg.StaleFlushAfter:
			forceFlush = true
		}
		buffer.mu.Unlock()

		if repeatedRecovery {
			a.callbacks.OnStatus("audio error: flush pipeline stalled repeatedly")
		}
		if forceFlush {
			a.flushBuffer(buffer, true)
		}
	}
}

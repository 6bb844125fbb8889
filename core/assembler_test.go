package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRenderer struct {
	mu       sync.Mutex
	clips    [][]byte
	failures int
	err      error
	block    chan struct{}

	cancelled int
	finished  int
}

func (r *fakeRenderer) SubmitClip(_ context.Context, clip []byte) error {
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return r.err
	}
	r.clips = append(r.clips, clip)
	return nil
}

func (r *fakeRenderer) CancelActiveSpeech() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
	return nil
}

func (r *fakeRenderer) MarkTurnFinished() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	return nil
}

func (r *fakeRenderer) clipCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clips)
}

func (r *fakeRenderer) clipSize(i int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clips[i])
}

func (r *fakeRenderer) finishedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func waitFor(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (s *statusRecorder) record(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *statusRecorder) contains(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, status := range s.statuses {
		if strings.Contains(status, fragment) {
			return true
		}
	}
	return false
}

func TestAssemblerAccumulatesFragmentsIntoOneFirstClip(t *testing.T) {
	cfg := DefaultConfig()
	renderer := &fakeRenderer{}
	a := newAssembler(cfg, renderer, assemblerCallbacks{})

	for range 9 {
		a.Ingest("t1", make([]byte, 5000))
	}

	waitFor(t, 2*time.Second, "first clip submission", func() bool {
		return renderer.clipCount() == 1
	})

	if got := renderer.clipSize(0); got != cfg.FirstFlushBytes {
		t.Fatalf("expected one clip of %d bytes, got %d", cfg.FirstFlushBytes, got)
	}

	// The 5000-byte remainder sits below NextFlushBytes and must not flush
	// on its own.
	time.Sleep(50 * time.Millisecond)
	if renderer.clipCount() != 1 {
		t.Fatalf("expected remainder to stay buffered, got %d clips", renderer.clipCount())
	}
	if !a.HasPendingAudio("t1") {
		t.Fatalf("expected 5000 bytes pending after the first clip")
	}
}

func TestAssemblerEndTurnForcesRemainderAndFinishes(t *testing.T) {
	cfg := DefaultConfig()
	renderer := &fakeRenderer{}
	var finishedTurn string
	var finishedMu sync.Mutex
	a := newAssembler(cfg, renderer, assemblerCallbacks{
		OnTurnFinished: func(turnID string) {
			finishedMu.Lock()
			finishedTurn = turnID
			finishedMu.Unlock()
		},
	})

	for range 9 {
		a.Ingest("t1", make([]byte, 5000))
	}
	waitFor(t, 2*time.Second, "first clip submission", func() bool {
		return renderer.clipCount() == 1
	})

	a.EndTurn("t1")

	waitFor(t, 2*time.Second, "forced remainder clip", func() bool {
		return renderer.clipCount() == 2
	})
	if got := renderer.clipSize(1); got != 5000 {
		t.Fatalf("expected forced remainder of 5000 bytes, got %d", got)
	}

	waitFor(t, 2*time.Second, "turn finished signal", func() bool {
		return renderer.finishedCount() == 1
	})
	finishedMu.Lock()
	defer finishedMu.Unlock()
	if finishedTurn != "t1" {
		t.Fatalf("expected turn t1 reported finished, got %q", finishedTurn)
	}
	if a.HasPendingAudio("t1") {
		t.Fatalf("expected per-turn state removed after drain")
	}
}

func TestAssemblerEndTurnWithoutAudioStillReportsFinished(t *testing.T) {
	renderer := &fakeRenderer{}
	finished := make(chan string, 1)
	a := newAssembler(DefaultConfig(), renderer, assemblerCallbacks{
		OnTurnFinished: func(turnID string) { finished <- turnID },
	})

	a.EndTurn("empty-turn")

	select {
	case turnID := <-finished:
		if turnID != "empty-turn" {
			t.Fatalf("expected empty-turn reported finished, got %q", turnID)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected finish signal for a turn without audio")
	}
}

func TestAssemblerDropsEmptyFragments(t *testing.T) {
	a := newAssembler(DefaultConfig(), &fakeRenderer{}, assemblerCallbacks{})

	a.Ingest("t1", nil)
	a.Ingest("t1", []byte{})

	if a.HasPendingAudio("t1") {
		t.Fatalf("expected empty fragments to be dropped before buffering")
	}
}

func TestAssemblerRetriesTransientSubmitFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryDelayCap = 4 * time.Millisecond

	renderer := &fakeRenderer{failures: 2, err: errors.New("transient transport error")}
	a := newAssembler(cfg, renderer, assemblerCallbacks{})

	a.Ingest("t1", []byte{1, 2, 3})
	a.MaybeFlush("t1", true)

	waitFor(t, 2*time.Second, "clip submission after retries", func() bool {
		return renderer.clipCount() == 1
	})
	if got := renderer.clipSize(0); got != 3 {
		t.Fatalf("expected the full 3-byte clip after retries, got %d bytes", got)
	}
}

func TestAssemblerDropsClipWhenRetriesExhaust(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubmitRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryDelayCap = 2 * time.Millisecond

	statuses := &statusRecorder{}
	renderer := &fakeRenderer{failures: 10, err: errors.New("transient transport error")}
	a := newAssembler(cfg, renderer, assemblerCallbacks{OnStatus: statuses.record})

	a.Ingest("t1", []byte{1, 2, 3})
	a.MaybeFlush("t1", true)

	waitFor(t, 2*time.Second, "exhaustion status", func() bool {
		return statuses.contains("audio error")
	})
	if renderer.clipCount() != 0 {
		t.Fatalf("expected no clip accepted, got %d", renderer.clipCount())
	}
}

func TestAssemblerDropsClipImmediatelyWhenRendererUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	statuses := &statusRecorder{}
	renderer := &fakeRenderer{failures: 1, err: ErrRendererUnavailable}
	a := newAssembler(cfg, renderer, assemblerCallbacks{OnStatus: statuses.record})

	a.Ingest("t1", []byte{1, 2, 3})
	a.MaybeFlush("t1", true)

	waitFor(t, 2*time.Second, "unavailable status", func() bool {
		return statuses.contains("audio error")
	})
	if renderer.clipCount() != 0 {
		t.Fatalf("expected clip dropped without retry, got %d clips", renderer.clipCount())
	}
}

func TestAssemblerDiscardAbandonsBackoffRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = 20 * time.Millisecond
	cfg.RetryDelayCap = 40 * time.Millisecond

	submitted := make(chan struct{}, 4)
	renderer := &fakeRenderer{failures: 1, err: errors.New("transient transport error")}
	a := newAssembler(cfg, renderer, assemblerCallbacks{
		OnClipSubmitted: func(string, []byte) { submitted <- struct{}{} },
	})

	a.Ingest("t1", []byte{1, 2, 3})
	a.MaybeFlush("t1", true)

	// Discard during the backoff window; the retry must notice the bumped
	// generation and abandon instead of resubmitting.
	time.Sleep(5 * time.Millisecond)
	dropped, err := a.Discard("t1", "interrupted")
	if err != nil {
		t.Fatalf("unexpected discard error: %v", err)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 requeued bytes dropped, got %d", dropped)
	}

	select {
	case <-submitted:
		t.Fatalf("expected no submission after discard")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAssemblerReportsUnknownTurns(t *testing.T) {
	a := newAssembler(DefaultConfig(), &fakeRenderer{}, assemblerCallbacks{})

	if _, err := a.Discard("ghost", "interrupted"); !errors.Is(err, ErrNoActiveTurn) {
		t.Fatalf("expected ErrNoActiveTurn from discard, got %v", err)
	}
	if err := a.MaybeFlush("ghost", true); !errors.Is(err, ErrNoActiveTurn) {
		t.Fatalf("expected ErrNoActiveTurn from flush, got %v", err)
	}
}

func TestSweepForceFlushesStaleBuffer(t *testing.T) {
	cfg := DefaultConfig()
	renderer := &fakeRenderer{}
	a := newAssembler(cfg, renderer, assemblerCallbacks{})

	a.Ingest("t1", []byte{1, 2, 3})
	a.sweep(time.Now().Add(cfg.StaleFlushAfter))

	waitFor(t, 2*time.Second, "stale buffer flush", func() bool {
		return renderer.clipCount() == 1
	})
	if got := renderer.clipSize(0); got != 3 {
		t.Fatalf("expected 3-byte stale flush, got %d bytes", got)
	}
}

func TestSweepClearsStuckFlushAndInvalidatesIt(t *testing.T) {
	cfg := DefaultConfig()
	renderer := &fakeRenderer{}
	a := newAssembler(cfg, renderer, assemblerCallbacks{})
	now := time.Now()

	buffer := newAssemblyBuffer("t1")
	a.mu.Lock()
	a.buffers["t1"] = buffer
	a.mu.Unlock()

	buffer.mu.Lock()
	buffer.inFlight = true
	buffer.inFlightSince = now.Add(-cfg.StuckFlushAfter)
	generation := buffer.generation
	buffer.mu.Unlock()

	a.sweep(now)

	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	if buffer.inFlight {
		t.Fatalf("expected stuck flush cleared")
	}
	if buffer.generation != generation+1 {
		t.Fatalf("expected generation bump to invalidate the stuck submission")
	}
	if buffer.stuckRecoveries != 1 {
		t.Fatalf("expected one recorded recovery, got %d", buffer.stuckRecoveries)
	}
}

func TestSweepReportsRepeatedStuckRecoveries(t *testing.T) {
	cfg := DefaultConfig()
	statuses := &statusRecorder{}
	a := newAssembler(cfg, &fakeRenderer{}, assemblerCallbacks{OnStatus: statuses.record})
	now := time.Now()

	buffer := newAssemblyBuffer("t1")
	a.mu.Lock()
	a.buffers["t1"] = buffer
	a.mu.Unlock()

	buffer.mu.Lock()
	buffer.inFlight = true
	buffer.inFlightSince = now.Add(-cfg.StuckFlushAfter)
	buffer.stuckRecoveries = 1
	buffer.mu.Unlock()

	a.sweep(now)

	if !statuses.contains("audio error") {
		t.Fatalf("expected a surfaced error after repeated recoveries")
	}
}

func TestWatchdogStopIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WatchdogInterval = 5 * time.Millisecond
	a := newAssembler(cfg, &fakeRenderer{}, assemblerCallbacks{})

	a.startWatchdog()
	a.stopWatchdog()
	a.stopWatchdog()
}

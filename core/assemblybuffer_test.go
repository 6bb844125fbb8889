package orchestration

import (
	"bytes"
	"testing"
	"time"
)

func TestShouldFlushLockedIgnoresEmptyBuffer(t *testing.T) {
	cfg := DefaultConfig()
	b := newAssemblyBuffer("t1")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFlushLocked(cfg, time.Now(), false) {
		t.Fatalf("expected empty buffer not to flush")
	}
	if b.shouldFlushLocked(cfg, time.Now(), true) {
		t.Fatalf("expected empty buffer not to flush even when forced")
	}
}

func TestShouldFlushLockedUsesLargerFirstClipThreshold(t *testing.T) {
	cfg := DefaultConfig()
	b := newAssemblyBuffer("t1")
	now := time.Now()

	b.append(make([]byte, cfg.NextFlushBytes), now)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFlushLocked(cfg, now, false) {
		t.Fatalf("expected first clip to hold below FirstFlushBytes")
	}

	b.pending = append(b.pending, make([]byte, cfg.FirstFlushBytes-cfg.NextFlushBytes))
	b.bufferedSize = cfg.FirstFlushBytes
	if !b.shouldFlushLocked(cfg, now, false) {
		t.Fatalf("expected flush at FirstFlushBytes")
	}
}

func TestShouldFlushLockedDropsThresholdAfterFirstClip(t *testing.T) {
	cfg := DefaultConfig()
	b := newAssemblyBuffer("t1")
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasStartedFlushing = true
	b.lastFlushAt = now.Add(-2 * cfg.MinFlushInterval)
	b.pending = [][]byte{make([]byte, cfg.NextFlushBytes)}
	b.bufferedSize = cfg.NextFlushBytes
	b.firstChunkAt = now

	if !b.shouldFlushLocked(cfg, now, false) {
		t.Fatalf("expected flush at NextFlushBytes once the turn is flowing")
	}
}

func TestShouldFlushLockedRespectsMinFlushInterval(t *testing.T) {
	cfg := DefaultConfig()
	b := newAssemblyBuffer("t1")
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasStartedFlushing = true
	b.lastFlushAt = now.Add(-cfg.MinFlushInterval / 2)
	b.pending = [][]byte{make([]byte, cfg.NextFlushBytes)}
	b.bufferedSize = cfg.NextFlushBytes
	b.firstChunkAt = now

	if b.shouldFlushLocked(cfg, now, false) {
		t.Fatalf("expected size-triggered flush to wait out MinFlushInterval")
	}

	if !b.shouldFlushLocked(cfg, now.Add(cfg.MinFlushInterval), false) {
		t.Fatalf("expected flush once MinFlushInterval passed")
	}
}

func TestShouldFlushLockedForcesOutWaitedFragments(t *testing.T) {
	cfg := DefaultConfig()
	b := newAssemblyBuffer("t1")
	now := time.Now()

	b.append([]byte{1}, now)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFlushLocked(cfg, now.Add(cfg.MaxWaitFirst-time.Millisecond), false) {
		t.Fatalf("expected sub-threshold fragment to wait below MaxWaitFirst")
	}
	if !b.shouldFlushLocked(cfg, now.Add(cfg.MaxWaitFirst), false) {
		t.Fatalf("expected max-wait flush at MaxWaitFirst")
	}
}

func TestTakeClipLockedConcatenatesAndResets(t *testing.T) {
	b := newAssemblyBuffer("t1")
	now := time.Now()
	b.append([]byte{1, 2}, now)
	b.append([]byte{3}, now)

	b.mu.Lock()
	clip := b.takeClipLocked(now)
	b.mu.Unlock()

	if !bytes.Equal(clip, []byte{1, 2, 3}) {
		t.Fatalf("expected concatenated clip [1 2 3], got %v", clip)
	}
	if b.pendingSize() != 0 {
		t.Fatalf("expected pending size 0 after take, got %d", b.pendingSize())
	}
	if !b.inFlight {
		t.Fatalf("expected take to mark the flush in flight")
	}
	if !b.hasStartedFlushing {
		t.Fatalf("expected take to mark the turn as flowing")
	}
}

func TestTakeClipLockedReturnsNilWhenEmpty(t *testing.T) {
	b := newAssemblyBuffer("t1")

	b.mu.Lock()
	clip := b.takeClipLocked(time.Now())
	b.mu.Unlock()

	if clip != nil {
		t.Fatalf("expected nil clip from empty buffer, got %v", clip)
	}
	if b.inFlight {
		t.Fatalf("expected empty take not to mark a flush in flight")
	}
}

func TestRequeueHeadPutsClipBeforeNewerFragments(t *testing.T) {
	b := newAssemblyBuffer("t1")
	now := time.Now()
	b.append([]byte{1, 2}, now)

	b.mu.Lock()
	clip := b.takeClipLocked(now)
	b.mu.Unlock()

	b.append([]byte{3}, now)
	b.requeueHead(clip, now)

	b.mu.Lock()
	merged := b.takeClipLocked(now)
	b.mu.Unlock()

	if !bytes.Equal(merged, []byte{1, 2, 3}) {
		t.Fatalf("expected requeued clip at head, got %v", merged)
	}
}

func TestDiscardLockedInvalidatesInFlightSubmission(t *testing.T) {
	b := newAssemblyBuffer("t1")
	now := time.Now()
	b.append([]byte{1, 2}, now)
	b.append([]byte{3}, now)

	b.mu.Lock()
	generation := b.generation
	dropped := b.discardLocked()
	b.mu.Unlock()

	if dropped != 3 {
		t.Fatalf("expected 3 dropped bytes, got %d", dropped)
	}
	if b.generation != generation+1 {
		t.Fatalf("expected discard to bump generation")
	}
	if b.hasActiveAudio() {
		t.Fatalf("expected no active audio after discard")
	}
}

func TestCompleteFlushReportsPendingReevaluation(t *testing.T) {
	b := newAssemblyBuffer("t1")
	now := time.Now()
	b.append([]byte{1}, now)

	b.mu.Lock()
	b.takeClipLocked(now)
	b.flushAgain = true
	b.mu.Unlock()

	if !b.completeFlush() {
		t.Fatalf("expected completeFlush to report the queued re-evaluation")
	}
	if b.completeFlush() {
		t.Fatalf("expected flushAgain to reset after reporting")
	}
	if !b.isDrained() {
		t.Fatalf("expected buffer drained after completion")
	}
}

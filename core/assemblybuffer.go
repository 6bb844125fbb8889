package orchestration

import (
	"sync"
	"time"
)

// assemblyBuffer accumulates audio fragments for one turn until the assembler
// decides to flush them to the renderer as a single clip.
//
// All fields are guarded by mu. The buffer is mutated only by the assembler;
// other components observe it through assembler-exposed state and request
// discards instead of touching it directly.
type assemblyBuffer struct {
	mu sync.Mutex

	turnID string

	pending      [][]byte
	bufferedSize int

	// firstChunkAt is set once per flush cycle, on the first fragment after
	// the previous flush emptied the buffer.
	firstChunkAt time.Time
	lastFlushAt  time.Time

	hasStartedFlushing bool

	inFlight      bool
	inFlightSince time.Time
	flushAgain    bool

	// closing is set on a terminal turn signal; the buffer is removed once it
	// drains.
	closing bool

	// generation is bumped on discard so a submission running against a
	// discarded buffer can detect it and abandon its result.
	generation int

	stuckRecoveries int
}

func newAssemblyBuffer(turnID string) *assemblyBuffer {
	return &assemblyBuffer{turnID: turnID}
}

func (b *assemblyBuffer) append(payload []byte, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		b.firstChunkAt = now
	}
	b.pending = append(b.pending, payload)
	b.bufferedSize += len(payload)
}

// shouldFlushLocked evaluates the flush decision at the given instant.
//
// Flush when the size threshold is reached and the minimum inter-flush
// spacing has passed, or the oldest buffered fragment has waited past the
// max-wait bound, or the flush is forced. The first clip of a turn uses the
// larger threshold set to mask initial network jitter.
func (b *assemblyBuffer) shouldFlushLocked(cfg Config, now time.Time, force bool) bool {
	if len(b.pending) == 0 {
		return false
	}
	if force {
		return true
	}

	firstClip := !b.hasStartedFlushing
	if b.bufferedSize >= cfg.sizeThreshold(firstClip) {
		if b.lastFlushAt.IsZero() || now.Sub(b.lastFlushAt) >= cfg.MinFlushInterval {
			return true
		}
	}
	if !b.firstChunkAt.IsZero() && now.Sub(b.firstChunkAt) >= cfg.maxWait(firstClip) {
		return true
	}

	return false
}

// takeClipLocked drains the pending fragments into one clip and marks the
// flush as in flight. Returns nil if there is nothing to take.
func (b *assemblyBuffer) takeClipLocked(now time.Time) []byte {
	if b.bufferedSize == 0 {
		return nil
	}

	clip := make([]byte, 0, b.bufferedSize)
	for _, fragment := range b.pending {
		clip = append(clip, fragment...)
	}

	b.pending = nil
	b.bufferedSize = 0
	b.firstChunkAt = time.Time{}
	b.hasStartedFlushing = true
	b.lastFlushAt = now
	b.inFlight = true
	b.inFlightSince = now

	return clip
}

// requeueHead puts an unsent clip back at the head of the buffer so a retry
// (or a later forced flush) picks it up together with fragments that arrived
// in the meantime.
func (b *assemblyBuffer) requeueHead(clip []byte, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append([][]byte{clip}, b.pending...)
	b.bufferedSize += len(clip)
	if b.firstChunkAt.IsZero() {
		b.firstChunkAt = now
	}
}

// completeFlush clears the in-flight flag and reports whether a follow-up
// flush was requested while this one was running.
func (b *assemblyBuffer) completeFlush() (flushAgain bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inFlight = false
	b.inFlightSince = time.Time{}
	flushAgain = b.flushAgain
	b.flushAgain = false
	return flushAgain
}

// discardLocked drops all pending fragments and invalidates any in-flight
// submission. Returns the number of bytes dropped.
func (b *assemblyBuffer) discardLocked() int {
	dropped := b.bufferedSize
	b.pending = nil
	b.bufferedSize = 0
	b.firstChunkAt = time.Time{}
	b.flushAgain = false
	b.inFlight = false
	b.inFlightSince = time.Time{}
	b.generation++
	return dropped
}

func (b *assemblyBuffer) pendingSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferedSize
}

func (b *assemblyBuffer) hasActiveAudio() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferedSize > 0 || b.inFlight
}

func (b *assemblyBuffer) isDrained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferedSize == 0 && !b.inFlight
}

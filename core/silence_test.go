package orchestration

import (
	"sync"
	"testing"
	"time"
)

func silenceTestConfig() Config {
	cfg := DefaultConfig()
	cfg.CoachAfter = 30 * time.Millisecond
	cfg.AutoEndAfter = 80 * time.Millisecond
	return cfg
}

type silenceRecorder struct {
	mu         sync.Mutex
	coached    int
	countdowns []time.Duration
	ended      int
}

func (r *silenceRecorder) onCoach(countdown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coached++
	r.countdowns = append(r.countdowns, countdown)
}

func (r *silenceRecorder) onAutoEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}

func (r *silenceRecorder) coachedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coached
}

func (r *silenceRecorder) endedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func TestSilenceMonitorCoachesThenAutoEnds(t *testing.T) {
	cfg := silenceTestConfig()
	recorder := &silenceRecorder{}
	m := newSilenceMonitor(cfg, silenceCallbacks{
		OnCoach:   recorder.onCoach,
		OnAutoEnd: recorder.onAutoEnd,
	})
	defer m.Close()

	m.OnAssistantTurnEnd()

	waitFor(t, time.Second, "coach nudge", func() bool {
		return recorder.coachedCount() == 1
	})
	if recorder.endedCount() != 0 {
		t.Fatalf("expected no auto-end before the full window")
	}

	recorder.mu.Lock()
	countdown := recorder.countdowns[0]
	recorder.mu.Unlock()
	if countdown != cfg.AutoEndAfter-cfg.CoachAfter {
		t.Fatalf("expected countdown %v, got %v", cfg.AutoEndAfter-cfg.CoachAfter, countdown)
	}

	waitFor(t, time.Second, "auto end", func() bool {
		return recorder.endedCount() == 1
	})
}

func TestSilenceMonitorActivityResetsTimers(t *testing.T) {
	recorder := &silenceRecorder{}
	m := newSilenceMonitor(silenceTestConfig(), silenceCallbacks{
		OnCoach:   recorder.onCoach,
		OnAutoEnd: recorder.onAutoEnd,
	})
	defer m.Close()

	m.OnAssistantTurnEnd()
	time.Sleep(10 * time.Millisecond)
	m.OnActivity()

	time.Sleep(120 * time.Millisecond)
	if recorder.coachedCount() != 0 || recorder.endedCount() != 0 {
		t.Fatalf("expected speech activity to reset the silence timers")
	}
}

func TestSilenceMonitorLatchSuppressesRepeatNudges(t *testing.T) {
	recorder := &silenceRecorder{}
	m := newSilenceMonitor(silenceTestConfig(), silenceCallbacks{
		OnCoach:   recorder.onCoach,
		OnAutoEnd: recorder.onAutoEnd,
	})
	defer m.Close()

	m.OnAssistantTurnEnd()
	waitFor(t, time.Second, "first coach nudge", func() bool {
		return recorder.coachedCount() == 1
	})

	// Another turn-end signal while the user stayed silent must not re-arm
	// the nudge or push back the auto-end deadline.
	m.OnAssistantTurnEnd()

	waitFor(t, time.Second, "auto end", func() bool {
		return recorder.endedCount() == 1
	})
	if recorder.coachedCount() != 1 {
		t.Fatalf("expected exactly one nudge, got %d", recorder.coachedCount())
	}
}

func TestSilenceMonitorLatchClearsOnActivity(t *testing.T) {
	recorder := &silenceRecorder{}
	m := newSilenceMonitor(silenceTestConfig(), silenceCallbacks{
		OnCoach:   recorder.onCoach,
		OnAutoEnd: recorder.onAutoEnd,
	})
	defer m.Close()

	m.OnAssistantTurnEnd()
	waitFor(t, time.Second, "first coach nudge", func() bool {
		return recorder.coachedCount() == 1
	})

	m.OnActivity()
	m.OnAssistantTurnEnd()

	waitFor(t, time.Second, "second coach nudge", func() bool {
		return recorder.coachedCount() == 2
	})
}

func TestSilenceMonitorCloseCancelsTimers(t *testing.T) {
	recorder := &silenceRecorder{}
	m := newSilenceMonitor(silenceTestConfig(), silenceCallbacks{
		OnCoach:   recorder.onCoach,
		OnAutoEnd: recorder.onAutoEnd,
	})

	m.OnAssistantTurnEnd()
	m.Close()

	time.Sleep(120 * time.Millisecond)
	if recorder.coachedCount() != 0 || recorder.endedCount() != 0 {
		t.Fatalf("expected no callbacks after close")
	}
}

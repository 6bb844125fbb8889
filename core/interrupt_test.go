package orchestration

import (
	"sync"
	"testing"
	"time"
)

type interruptRecorder struct {
	mu        sync.Mutex
	confirmed int
	dismissed []string
}

func (r *interruptRecorder) onConfirmed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed++
}

func (r *interruptRecorder) onDismissed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, reason)
}

func (r *interruptRecorder) confirmedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed
}

func (r *interruptRecorder) lastDismissal() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dismissed) == 0 {
		return ""
	}
	return r.dismissed[len(r.dismissed)-1]
}

func TestInterruptConfirmsAgainstActiveAssistantAudio(t *testing.T) {
	recorder := &interruptRecorder{}
	c := newInterruptCoordinator(DefaultConfig(), interruptCallbacks{
		HasAssistantAudio: func() bool { return true },
		OnConfirmed:       recorder.onConfirmed,
		OnDismissed:       recorder.onDismissed,
	})

	c.evaluate(time.Now())

	if recorder.confirmedCount() != 1 {
		t.Fatalf("expected one confirmation, got %d", recorder.confirmedCount())
	}
}

func TestInterruptDismissesWithoutAssistantAudio(t *testing.T) {
	recorder := &interruptRecorder{}
	c := newInterruptCoordinator(DefaultConfig(), interruptCallbacks{
		HasAssistantAudio: func() bool { return false },
		OnConfirmed:       recorder.onConfirmed,
		OnDismissed:       recorder.onDismissed,
	})

	c.evaluate(time.Now())

	if recorder.confirmedCount() != 0 {
		t.Fatalf("expected no confirmation, got %d", recorder.confirmedCount())
	}
	if recorder.lastDismissal() != "no assistant audio" {
		t.Fatalf("unexpected dismissal reason %q", recorder.lastDismissal())
	}
}

func TestInterruptEnforcesCooldown(t *testing.T) {
	cfg := DefaultConfig()
	recorder := &interruptRecorder{}
	c := newInterruptCoordinator(cfg, interruptCallbacks{
		HasAssistantAudio: func() bool { return true },
		OnConfirmed:       recorder.onConfirmed,
		OnDismissed:       recorder.onDismissed,
	})

	now := time.Now()
	c.evaluate(now)
	c.evaluate(now.Add(cfg.InterruptCooldown / 2))

	if recorder.confirmedCount() != 1 {
		t.Fatalf("expected the second trigger suppressed, got %d confirmations", recorder.confirmedCount())
	}
	if recorder.lastDismissal() != "cooldown" {
		t.Fatalf("unexpected dismissal reason %q", recorder.lastDismissal())
	}

	c.evaluate(now.Add(2 * cfg.InterruptCooldown))
	if recorder.confirmedCount() != 2 {
		t.Fatalf("expected confirmation after the cooldown, got %d", recorder.confirmedCount())
	}
}

func TestInterruptDebounceCancelledByShortSpeechBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceWindow = 20 * time.Millisecond

	recorder := &interruptRecorder{}
	c := newInterruptCoordinator(cfg, interruptCallbacks{
		HasAssistantAudio: func() bool { return true },
		OnConfirmed:       recorder.onConfirmed,
		OnDismissed:       recorder.onDismissed,
	})

	c.OnUserSpeechStart()
	c.OnUserSpeechEnd()

	time.Sleep(60 * time.Millisecond)
	if recorder.confirmedCount() != 0 {
		t.Fatalf("expected a burst shorter than the debounce window ignored")
	}
}

func TestInterruptDebouncedEvaluationFires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceWindow = 10 * time.Millisecond

	recorder := &interruptRecorder{}
	c := newInterruptCoordinator(cfg, interruptCallbacks{
		HasAssistantAudio: func() bool { return true },
		OnConfirmed:       recorder.onConfirmed,
	})

	c.OnUserSpeechStart()

	waitFor(t, time.Second, "debounced confirmation", func() bool {
		return recorder.confirmedCount() == 1
	})
}

func TestInterruptClosedCoordinatorStaysSilent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceWindow = 10 * time.Millisecond

	recorder := &interruptRecorder{}
	c := newInterruptCoordinator(cfg, interruptCallbacks{
		HasAssistantAudio: func() bool { return true },
		OnConfirmed:       recorder.onConfirmed,
	})

	c.OnUserSpeechStart()
	c.Close()

	time.Sleep(50 * time.Millisecond)
	if recorder.confirmedCount() != 0 {
		t.Fatalf("expected no confirmation after close")
	}
}

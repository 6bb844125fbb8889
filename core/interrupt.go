package orchestration

import (
	"sync"
	"time"
)

// interruptCoordinator decides, tolerant of noise and false positives,
// whether detected user speech should cancel in-flight assistant output.
//
// It only reads assembler-exposed state and issues discard requests through
// its callbacks; it never mutates the assembly buffer directly.
type interruptCoordinator struct {
	cfg       Config
	callbacks interruptCallbacks

	mu              sync.Mutex
	debounce        *time.Timer
	debounceActive  bool
	lastInterruptAt time.Time
	closed          bool
}

type interruptCallbacks struct {
	// HasAssistantAudio reports whether the assistant is playing or has
	// buffered audio pending.
	HasAssistantAudio func() bool
	OnConfirmed       func()
	OnDismissed       func(reason string)
}

func (c *interruptCallbacks) defaults() *interruptCallbacks {
	c.HasAssistantAudio = func() bool { return false }
	c.OnConfirmed = func() {}
	c.OnDismissed = func(string) {}
	return c
}

func (c *interruptCallbacks) with(callbacks interruptCallbacks) *interruptCallbacks {
	if callbacks.HasAssistantAudio != nil {
		c.HasAssistantAudio = callbacks.HasAssistantAudio
	}
	if callbacks.OnConfirmed != nil {
		c.OnConfirmed = callbacks.OnConfirmed
	}
	if callbacks.OnDismissed != nil {
		c.OnDismissed = callbacks.OnDismissed
	}
	return c
}

func newInterruptCoordinator(cfg Config, callbacks interruptCallbacks) *interruptCoordinator {
	return &interruptCoordinator{
		cfg:       cfg,
		callbacks: *(new(interruptCallbacks).defaults().with(callbacks)),
	}
}

// OnUserSpeechStart schedules a debounced evaluation instead of acting
// immediately; most speech-start signals are noise.
func (c *interruptCoordinator) OnUserSpeechStart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.debounceActive {
		return
	}
	c.debounceActive = true
	c.debounce = time.AfterFunc(c.cfg.DebounceWindow, func() {
		c.evaluate(time.Now())
	})
}

// OnUserSpeechEnd cancels a pending debounce with no state change; the
// speech burst was too short to matter.
func (c *interruptCoordinator) OnUserSpeechEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.debounceActive {
		return
	}
	c.debounceActive = false
	if c.debounce != nil {
		c.debounce.Stop()
	}
}

// evaluate runs at debounce expiry: confirm only if assistant audio is
// actually pending or playing, and the previous confirmation is outside the
// cooldown window. Anything else is a likely false trigger.
func (c *interruptCoordinator) evaluate(now time.Time) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.debounceActive = false

	if !c.callbacks.HasAssistantAudio() {
		c.mu.Unlock()
		c.callbacks.OnDismissed("no assistant audio")
		return
	}
	if !c.lastInterruptAt.IsZero() && now.Sub(c.lastInterruptAt) <= c.cfg.InterruptCooldown {
		c.mu.Unlock()
		c.callbacks.OnDismissed("cooldown")
		return
	}

	c.lastInterruptAt = now
	c.mu.Unlock()

	c.callbacks.OnConfirmed()
}

func (c *interruptCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.debounceActive = false
	if c.debounce != nil {
		c.debounce.Stop()
	}
}

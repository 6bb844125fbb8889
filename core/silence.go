package orchestration

import (
	"sync"
	"time"
)

type silencePhase int

const (
	silenceIdle silencePhase = iota
	silenceCoachArmed
	silenceCoachShown
	silenceEnded
)

// silenceMonitor observes turn boundaries to nudge and eventually end idle
// sessions: an assistant turn ending arms the coach timer (T1) and the
// auto-end timer (T2); any speech activity resets everything.
type silenceMonitor struct {
	cfg       Config
	callbacks silenceCallbacks

	mu                     sync.Mutex
	phase                  silencePhase
	coachFired             bool
	lastAssistantTurnEndAt time.Time
	coachTimer             *time.Timer
	endTimer               *time.Timer
	closed                 bool
}

type silenceCallbacks struct {
	// OnCoach fires the single nudge; countdown is the remaining window
	// (T2 - T1) to display.
	OnCoach   func(countdown time.Duration)
	OnAutoEnd func()
}

func (c *silenceCallbacks) defaults() *silenceCallbacks {
	c.OnCoach = func(time.Duration) {}
	c.OnAutoEnd = func() {}
	return c
}

func (c *silenceCallbacks) with(callbacks silenceCallbacks) *silenceCallbacks {
	if callbacks.OnCoach != nil {
		c.OnCoach = callbacks.OnCoach
	}
	if callbacks.OnAutoEnd != nil {
		c.OnAutoEnd = callbacks.OnAutoEnd
	}
	return c
}

func newSilenceMonitor(cfg Config, callbacks silenceCallbacks) *silenceMonitor {
	return &silenceMonitor{
		cfg:       cfg,
		callbacks: *(new(silenceCallbacks).defaults().with(callbacks)),
	}
}

// OnAssistantTurnEnd arms the silence timers. While the user stays silent
// past a fired nudge, the latch keeps further turn-end signals from
// re-arming the coach; only activity clears it.
func (m *silenceMonitor) OnAssistantTurnEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.phase == silenceEnded {
		return
	}
	if m.coachFired {
		return
	}

	m.stopTimersLocked()
	m.phase = silenceCoachArmed
	m.lastAssistantTurnEndAt = time.Now()
	m.coachTimer = time.AfterFunc(m.cfg.CoachAfter, m.fireCoach)
	m.endTimer = time.AfterFunc(m.cfg.AutoEndAfter, m.fireAutoEnd)
}

// OnActivity resets the monitor on any user- or assistant-speech start and
// clears pending timers and the coach latch.
func (m *silenceMonitor) OnActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.phase == silenceEnded {
		return
	}

	m.stopTimersLocked()
	m.phase = silenceIdle
	m.coachFired = false
}

func (m *silenceMonitor) fireCoach() {
	m.mu.Lock()
	if m.closed || m.phase != silenceCoachArmed {
		m.mu.Unlock()
		return
	}
	m.phase = silenceCoachShown
	m.coachFired = true
	countdown := m.cfg.AutoEndAfter - m.cfg.CoachAfter
	m.mu.Unlock()

	m.callbacks.OnCoach(countdown)
}

func (m *silenceMonitor) fireAutoEnd() {
	m.mu.Lock()
	if m.closed || (m.phase != silenceCoachArmed && m.phase != silenceCoachShown) {
		m.mu.Unlock()
		return
	}
	m.phase = silenceEnded
	m.stopTimersLocked()
	m.mu.Unlock()

	m.callbacks.OnAutoEnd()
}

func (m *silenceMonitor) stopTimersLocked() {
	if m.coachTimer != nil {
		m.coachTimer.Stop()
		m.coachTimer = nil
	}
	if m.endTimer != nil {
		m.endTimer.Stop()
		m.endTimer = nil
	}
}

func (m *silenceMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.stopTimersLocked()
}

package orchestration

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Config carries every tuning parameter of the orchestration core.
//
// The defaults were tuned empirically against renderer artifact behavior
// (stutter on undersized clips, restarts on overly frequent submissions) and
// should be re-validated against the actual downstream renderer rather than
// treated as a contract.
type Config struct {
	// FirstFlushBytes is the buffered size that triggers the first clip of a
	// turn. It is deliberately large to mask initial network jitter.
	FirstFlushBytes int `json:"first_flush_bytes"`
	// NextFlushBytes triggers subsequent clips once the turn is flowing.
	NextFlushBytes int `json:"next_flush_bytes"`
	// MinFlushInterval is the minimum spacing between two flushes of the same
	// turn.
	MinFlushInterval time.Duration `json:"min_flush_interval"`
	// MaxWaitFirst bounds how long the first fragment of a flush cycle can sit
	// buffered before a flush is forced, for the first clip of a turn.
	MaxWaitFirst time.Duration `json:"max_wait_first"`
	// MaxWaitNext bounds the same wait for subsequent clips.
	MaxWaitNext time.Duration `json:"max_wait_next"`

	// DebounceWindow delays interrupt evaluation after user-speech-start.
	DebounceWindow time.Duration `json:"debounce_window"`
	// InterruptCooldown suppresses interrupt confirmations following a
	// previous one.
	InterruptCooldown time.Duration `json:"interrupt_cooldown"`

	// WatchdogInterval is the assembler watchdog sweep period.
	WatchdogInterval time.Duration `json:"watchdog_interval"`
	// StaleFlushAfter force-flushes a buffer that has pending data but has not
	// flushed for this long.
	StaleFlushAfter time.Duration `json:"stale_flush_after"`
	// StuckFlushAfter clears an in-flight flush that has not completed for
	// this long.
	StuckFlushAfter time.Duration `json:"stuck_flush_after"`

	// CoachAfter is the silence window before the coach nudge fires (T1).
	CoachAfter time.Duration `json:"coach_after"`
	// AutoEndAfter is the total silence window before the session auto-ends
	// (T2). Must exceed CoachAfter; the displayed countdown runs for
	// AutoEndAfter - CoachAfter.
	AutoEndAfter time.Duration `json:"auto_end_after"`

	// DedupWindow is the span within which identical normalized user finals
	// collapse to one entry.
	DedupWindow time.Duration `json:"dedup_window"`
	// MergeWindow is the span within which a prefix/suffix-superset user final
	// replaces the preceding entry instead of inserting a new one.
	MergeWindow time.Duration `json:"merge_window"`

	// MaxSubmitRetries bounds renderer submission retries per clip.
	MaxSubmitRetries int `json:"max_submit_retries"`
	// RetryBaseDelay is the first retry backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	// RetryDelayCap caps the exponential backoff delay.
	RetryDelayCap time.Duration `json:"retry_delay_cap"`
}

func DefaultConfig() Config {
	return Config{
		FirstFlushBytes:  40000,
		NextFlushBytes:   16000,
		MinFlushInterval: time.Second,
		MaxWaitFirst:     2500 * time.Millisecond,
		MaxWaitNext:      1200 * time.Millisecond,

		DebounceWindow:    250 * time.Millisecond,
		InterruptCooldown: 800 * time.Millisecond,

		WatchdogInterval: 2 * time.Second,
		StaleFlushAfter:  5 * time.Second,
		StuckFlushAfter:  10 * time.Second,

		CoachAfter:   8 * time.Second,
		AutoEndAfter: 25 * time.Second,

		DedupWindow: 1500 * time.Millisecond,
		MergeWindow: 2 * time.Second,

		MaxSubmitRetries: 3,
		RetryBaseDelay:   100 * time.Millisecond,
		RetryDelayCap:    800 * time.Millisecond,
	}
}

// Schema returns the JSON schema for the configuration surface, allowing
// embedding applications to validate externally supplied tuning files.
func (c Config) Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}

// sizeThreshold returns the flush size threshold for the current clip of a
// flush cycle.
func (c Config) sizeThreshold(firstClip bool) int {
	if firstClip {
		return c.FirstFlushBytes
	}
	return c.NextFlushBytes
}

// maxWait returns the forced-flush wait bound for the current clip.
func (c Config) maxWait(firstClip bool) time.Duration {
	if firstClip {
		return c.MaxWaitFirst
	}
	return c.MaxWaitNext
}

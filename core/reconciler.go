package orchestration

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/veliryo/avatar-core/core/events"
)

// Speaker identifies which party produced a transcript entry.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one row of the merged conversation log. Assistant
// entries are mutated in place while their turn streams, then locked on turn
// completion; user entries arrive already final.
type TranscriptEntry struct {
	ID        string
	Speaker   Speaker
	Text      string
	TurnID    string
	Timestamp time.Time
	IsInterim bool
}

// assistantEpsilon keeps a causally-following assistant entry strictly after
// the user entry that provoked it, regardless of arrival skew.
const assistantEpsilon = time.Millisecond

// transcriptReconciler merges the finalized-only user text stream with the
// streaming, delta-based assistant text stream into one ordered,
// deduplicated log.
type transcriptReconciler struct {
	cfg Config

	mu               sync.Mutex
	entries          []TranscriptEntry
	raw              map[string]*strings.Builder
	lastUserActivity time.Time
}

func newTranscriptReconciler(cfg Config) *transcriptReconciler {
	return &transcriptReconciler{
		cfg: cfg,
		raw: map[string]*strings.Builder{},
	}
}

// Reconcile folds one event into the log and returns the resulting entries
// sorted by timestamp ascending.
func (r *transcriptReconciler) Reconcile(event events.Event) []TranscriptEntry {
	switch typedEvent := event.(type) {
	case events.TextDelta:
		r.assistantDelta(typedEvent.TurnID, typedEvent.Text, typedEvent.Timestamp(), time.Now())
	case events.UserTranscriptFinal:
		r.userFinal(typedEvent.ItemID, typedEvent.Transcript, typedEvent.Timestamp(), time.Now())
	case events.TurnCompleted:
		r.lockTurn(typedEvent.TurnID)
	}
	return r.Entries()
}

func (r *transcriptReconciler) assistantDelta(turnID string, text string, provided time.Time, now time.Time) {
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if builder, ok := r.raw[turnID]; ok {
		builder.WriteString(text)
		for i := range r.entries {
			if r.entries[i].TurnID == turnID && r.entries[i].Speaker == SpeakerAssistant && r.entries[i].IsInterim {
				r.entries[i].Text = sanitizeAssistantText(builder.String())
				break
			}
		}
		return
	}

	builder := &strings.Builder{}
	builder.WriteString(text)
	r.raw[turnID] = builder

	r.entries = append(r.entries, TranscriptEntry{
		ID:        uuid.NewString(),
		Speaker:   SpeakerAssistant,
		Text:      sanitizeAssistantText(text),
		TurnID:    turnID,
		Timestamp: assistantTimestamp(r.lastUserActivity, provided, now),
		IsInterim: true,
	})
	r.sortLocked()
}

// assistantTimestamp picks the stored timestamp for a new assistant entry so
// it always sorts after the user turn that provoked it.
func assistantTimestamp(lastUserActivity, provided, now time.Time) time.Time {
	timestamp := provided
	if !lastUserActivity.IsZero() && lastUserActivity.Add(assistantEpsilon).After(timestamp) {
		timestamp = lastUserActivity.Add(assistantEpsilon)
	}
	if now.After(timestamp) {
		timestamp = now
	}
	return timestamp
}

func (r *transcriptReconciler) userFinal(itemID string, text string, at time.Time, now time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if at.IsZero() {
		at = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if at.After(r.lastUserActivity) {
		r.lastUserActivity = at
	}

	entry := TranscriptEntry{
		ID:        uuid.NewString(),
		Speaker:   SpeakerUser,
		Text:      text,
		TurnID:    itemID,
		Timestamp: at,
	}

	previous := r.lastUserEntryLocked()
	if previous == nil {
		// Bootstrap exemption: the opening utterance is never suppressed.
		r.entries = append(r.entries, entry)
		r.sortLocked()
		return
	}

	gap := at.Sub(previous.Timestamp)
	if gap < 0 {
		gap = -gap
	}

	if gap < r.cfg.DedupWindow && normalizeUserText(text) == normalizeUserText(previous.Text) {
		logger.Info("suppressed duplicate user transcript", "item_id", itemID, "gap", gap)
		return
	}

	// Partial-then-complete delivery of one utterance: the longer variant
	// replaces the preceding row instead of inserting a new one. The
	// prefix/suffix heuristic is approximate and can misfire on legitimately
	// repeated short phrases.
	if gap < r.cfg.MergeWindow && extendsText(previous.Text, text) {
		previous.Text = text
		return
	}

	r.entries = append(r.entries, entry)
	r.sortLocked()
}

// DropUnfinalized removes the turn's streaming assistant entry, if any. Used
// on confirmed interrupts so partial text is never persisted.
func (r *transcriptReconciler) DropUnfinalized(turnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.raw, turnID)
	for i := range r.entries {
		if r.entries[i].TurnID == turnID && r.entries[i].Speaker == SpeakerAssistant && r.entries[i].IsInterim {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			logger.Info("dropped unfinalized transcript entry", "turn_id", turnID, "reason", "interrupted")
			return
		}
	}
}

// lockTurn finalizes the turn's assistant entry; its text stops mutating.
func (r *transcriptReconciler) lockTurn(turnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.raw, turnID)
	for i := range r.entries {
		if r.entries[i].TurnID == turnID && r.entries[i].Speaker == SpeakerAssistant {
			r.entries[i].IsInterim = false
			return
		}
	}
}

// Entries returns a deep copy of the log sorted by timestamp ascending.
func (r *transcriptReconciler) Entries() []TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]TranscriptEntry, 0, len(r.entries))
	if err := copier.Copy(&entries, &r.entries); err != nil {
		logger.Warn("failed to copy transcript entries", "error", err)
		entries = append(entries[:0], r.entries...)
	}
	return entries
}

func (r *transcriptReconciler) lastUserEntryLocked() *TranscriptEntry {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Speaker == SpeakerUser {
			return &r.entries[i]
		}
	}
	return nil
}

func (r *transcriptReconciler) sortLocked() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Timestamp.Before(r.entries[j].Timestamp)
	})
}

var (
	annotationPattern  = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	punctuationPattern = regexp.MustCompile(`\s+([.,!?;:])`)
)

// sanitizeAssistantText strips non-spoken annotations and normalizes spacing
// so streamed deltas read as one utterance.
func sanitizeAssistantText(text string) string {
	text = annotationPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = punctuationPattern.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// normalizeUserText reduces a user utterance to its comparable form for
// duplicate suppression.
func normalizeUserText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, ".!?,;:")
	return strings.ToLower(text)
}

// extendsText reports whether candidate is a strict prefix- or
// suffix-superset of previous.
func extendsText(previous, candidate string) bool {
	if len(candidate) <= len(previous) {
		return false
	}
	return strings.HasPrefix(candidate, previous) || strings.HasSuffix(candidate, previous)
}

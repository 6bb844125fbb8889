package console

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/veliryo/avatar-core/core"
)

func TestModelRendersTranscriptEntries(t *testing.T) {
	m := New()

	model, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = model.(*Model)

	model, _ = m.Update(transcriptMsg{
		{Speaker: orchestration.SpeakerUser, Text: "hello there", Timestamp: time.Now()},
		{Speaker: orchestration.SpeakerAssistant, Text: "hi yourself", Timestamp: time.Now()},
	})
	m = model.(*Model)

	view := m.View()
	if !strings.Contains(view, "hello there") {
		t.Fatalf("expected the user entry rendered")
	}
	if !strings.Contains(view, "hi yourself") {
		t.Fatalf("expected the assistant entry rendered")
	}
}

func TestModelQuitsOnSessionEnd(t *testing.T) {
	m := New()

	_, cmd := m.Update(sessionEndedMsg{})
	if cmd == nil {
		t.Fatalf("expected a quit command on session end")
	}
	if !strings.Contains(m.View(), "Session ended") {
		t.Fatalf("expected the final view after session end")
	}
}

func TestPushNeverBlocksWhenViewIsBehind(t *testing.T) {
	m := New()

	done := make(chan struct{})
	go func() {
		for range 200 {
			m.push(statusMsg("update"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected push to drop updates instead of blocking")
	}
}

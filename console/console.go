// Package console renders a live session view in the terminal: the
// reconciled transcript, the current turn state, status messages and the
// silence coach countdown.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/veliryo/avatar-core/core"
)

type transcriptMsg []orchestration.TranscriptEntry
type statusMsg string
type turnStateMsg orchestration.TurnState
type coachMsg time.Duration
type sessionEndedMsg struct{}
type tickMsg time.Time

// Model is the bubbletea model for the session view. Orchestrator callbacks
// push messages into an internal channel; Update drains it one message per
// listen command, the usual bubbletea bridge for external event sources.
type Model struct {
	updates chan tea.Msg

	transcript viewport.Model
	spinner    spinner.Model

	entries       []orchestration.TranscriptEntry
	turnState     orchestration.TurnState
	status        string
	coachDeadline time.Time
	ended         bool
	quitting      bool

	styles styles
	width  int
	height int
}

func New() *Model {
	indicator := spinner.New()
	indicator.Spinner = spinner.Dot

	return &Model{
		updates:   make(chan tea.Msg, 64),
		spinner:   indicator,
		turnState: orchestration.TurnStateIdle,
		styles:    newStyles(),
	}
}

// CallbackOptions returns the orchestrate options that feed this view. Pass
// them to [orchestration.Orchestrator.Orchestrate] before running the
// program.
func (m *Model) CallbackOptions() []orchestration.OrchestrateOption {
	return []orchestration.OrchestrateOption{
		orchestration.WithTranscriptCallback(func(entries []orchestration.TranscriptEntry) {
			m.push(transcriptMsg(entries))
		}),
		orchestration.WithStatusCallback(func(status string) {
			m.push(statusMsg(status))
		}),
		orchestration.WithTurnStateChangedCallback(func(state orchestration.TurnState) {
			m.push(turnStateMsg(state))
		}),
		orchestration.WithCoachPromptCallback(func(countdown time.Duration) {
			m.push(coachMsg(countdown))
		}),
		orchestration.WithSessionEndCallback(func() {
			m.push(sessionEndedMsg{})
		}),
	}
}

func (m *Model) push(msg tea.Msg) {
	select {
	case m.updates <- msg:
	default:
		// Display updates are best-effort; drop instead of blocking the
		// orchestration path.
	}
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.spinner.Tick, m.tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript = viewport.New(msg.Width-4, msg.Height-7)
		m.refreshTranscript()

	case transcriptMsg:
		m.entries = msg
		m.refreshTranscript()
		cmds = append(cmds, m.listen())

	case statusMsg:
		m.status = string(msg)
		cmds = append(cmds, m.listen())

	case turnStateMsg:
		m.turnState = orchestration.TurnState(msg)
		if m.turnState != orchestration.TurnStateIdle {
			m.coachDeadline = time.Time{}
		}
		cmds = append(cmds, m.listen())

	case coachMsg:
		m.coachDeadline = time.Now().Add(time.Duration(msg))
		cmds = append(cmds, m.listen())

	case sessionEndedMsg:
		m.ended = true
		return m, tea.Quit

	case tickMsg:
		cmds = append(cmds, m.tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) refreshTranscript() {
	if m.width == 0 {
		return
	}

	lines := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		style := m.styles.assistant
		label := "avatar"
		if entry.Speaker == orchestration.SpeakerUser {
			style = m.styles.user
			label = "you"
		}
		if entry.IsInterim {
			style = m.styles.interim
		}

		line := fmt.Sprintf("%s  %s", entry.Timestamp.Format("15:04:05"), style.Render(label+": "+entry.Text))
		lines = append(lines, wordwrap.String(line, m.width-6))
	}

	m.transcript.SetContent(strings.Join(lines, "\n"))
	m.transcript.GotoBottom()
}

func (m *Model) View() string {
	if m.quitting || m.ended {
		return "Session ended.\n"
	}
	if m.width == 0 {
		return "starting..."
	}

	title := m.styles.title.Render("AVATAR SESSION")

	var state string
	switch m.turnState {
	case orchestration.TurnStateAssistantSpeaking:
		state = m.spinner.View() + " avatar speaking"
	case orchestration.TurnStateListening:
		state = "listening"
	case orchestration.TurnStateInterrupted:
		state = "interrupted"
	default:
		state = "idle"
	}

	statusLine := m.styles.status.Render(state)
	if m.status != "" {
		statusLine += "  " + m.styles.status.Render(m.status)
	}
	if !m.coachDeadline.IsZero() {
		remaining := time.Until(m.coachDeadline).Round(time.Second)
		if remaining > 0 {
			statusLine += "  " + m.styles.coach.Render(
				fmt.Sprintf("still there? session ends in %s", remaining))
		}
	}

	help := m.styles.help.Render("q/esc/ctrl+c: quit")

	return strings.Join([]string{
		title,
		m.styles.frame.Render(m.transcript.View()),
		statusLine,
		help,
	}, "\n")
}

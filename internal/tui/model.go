package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docsentry/internal/knowledge"
)

// Asker is the TUI-facing subset of the knowledge base.
type Asker interface {
	Query(ctx context.Context, question string, k int) (knowledge.Answer, error)
}

type answerMsg struct {
	question string
	answer   knowledge.Answer
	err      error
}

type turn struct {
	question string
	answer   knowledge.Answer
	err      error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx         context.Context
	kb          Asker
	topK        int
	showSources bool

	input    textinput.Model
	viewport viewport.Model
	history  []turn
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model. summary is shown under the header.
func New(ctx context.Context, kb Asker, topK int, showSources bool, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:         ctx,
		kb:          kb,
		topK:        topK,
		showSources: showSources,
		input:       ti,
		viewport:    vp,
		summary:     summary,
		status:      "Ready. Ctrl+C to quit.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.kb.Query(m.ctx, question, m.topK)
		return answerMsg{question: question, answer: ans, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, input box, input line
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.history = append(m.history, turn{question: msg.question, answer: msg.answer, err: msg.err})
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case msg.answer.Err != nil:
			m.status = "Collaborator error: " + msg.answer.Err.Error()
		default:
			m.status = fmt.Sprintf("Answered from %d source(s)", len(msg.answer.Sources))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Thinking..."
			m.input.SetValue("")
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docsentry chat")
	summary := dimStyle.Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	var sb strings.Builder
	for i, t := range m.history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(questionStyle.Render("You: " + t.question))
		sb.WriteString("\n")
		if t.err != nil {
			sb.WriteString(errorStyle.Render(t.err.Error()))
			continue
		}
		sb.WriteString(t.answer.Text)
		if m.showSources {
			for j, s := range t.answer.Sources {
				sb.WriteString("\n")
				sb.WriteString(dimStyle.Render(fmt.Sprintf("  [%d] %s #%d  distance=%.4f",
					j+1, s.Record.Filename, s.Record.ChunkIndex, s.Distance)))
			}
		}
	}
	return sb.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"echodoc/internal/domain"
	"echodoc/internal/textutil"
)

// Conversation is the TUI-facing subset of the conversation orchestrator.
type Conversation interface {
	Continue(ctx context.Context, history domain.History) (domain.History, error)
}

type answerMsg struct {
	history domain.History
	err     error
}

// Model is the Bubble Tea model of the chat client.
type Model struct {
	ctx      context.Context
	conv     Conversation
	history  domain.History
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model. summary is shown under the title.
func New(ctx context.Context, conv Conversation, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		conv:     conv,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Ready. Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// History returns the conversation so far.
func (m Model) History() domain.History { return m.history }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-ch)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			asked := m.history.Append(domain.Turn{Role: domain.RoleUser, Content: q})
			m.history = asked
			m.pending = true
			m.status = "Thinking..."
			m.input.Reset()
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(asked))
		}
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			// Drop the unanswered question so the next one starts clean.
			last := m.history[len(m.history)-1]
			m.history = m.history[:len(m.history)-1]
			m.input.SetValue(last.Content)
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = msg.history
			m.status = fmt.Sprintf("%d turns", len(m.history))
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(history domain.History) tea.Cmd {
	return func() tea.Msg {
		updated, err := m.conv.Continue(m.ctx, history)
		return answerMsg{history: updated, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("EchoDoc")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	chat := chatBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + chat + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderHistory(m.history))
	m.viewport.GotoBottom()
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func renderHistory(h domain.History) string {
	if len(h) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	var question string
	for i, t := range h {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch t.Role {
		case domain.RoleUser:
			question = t.Content
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(t.Content)
		case domain.RoleAssistant:
			b.WriteString(assistantStyle.Render("EchoDoc: "))
			b.WriteString(highlightBestSentence(t.Content, question))
		default:
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// highlightBestSentence emphasizes the sentence sharing the most content
// words with query. The rest of text is left exactly as written.
func highlightBestSentence(text, query string) string {
	q := tokenSet(query)
	if len(q) == 0 {
		return text
	}
	best, bestStart, bestScore := "", -1, 0
	cursor := 0
	for _, s := range textutil.Sentences(text) {
		at := strings.Index(text[cursor:], s)
		if at < 0 {
			return text
		}
		start := cursor + at
		cursor = start + len(s)
		if score := overlap(q, s); score > bestScore {
			best, bestStart, bestScore = s, start, score
		}
	}
	if bestStart < 0 {
		return text
	}
	return text[:bestStart] + highlightStyle.Render(best) + text[bestStart+len(best):]
}

func tokenSet(s string) map[string]struct{} {
	tokens := textutil.ContentTokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range tokenSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}

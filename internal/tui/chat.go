// Package tui is the terminal chat client for the query pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/perspectives-ai/rag/internal/domain"
)

// Asker answers questions against the corpus
type Asker interface {
	Ask(ctx context.Context, q domain.Query) (*domain.Answer, error)
}

// Message is one entry of the conversation
type Message struct {
	Role       string
	Content    string
	Sources    []domain.RetrievalResult
	Confidence float64
	Err        bool
}

type answerMsg struct {
	answer *domain.Answer
	err    error
}

// Model is the Bubble Tea model of the chat screen
type Model struct {
	asker      Asker
	maxResults int
	timeout    time.Duration

	input    textinput.Model
	viewport viewport.Model
	messages []Message
	loading  bool
	ready    bool
}

// New creates a chat model. Every question requests maxResults sources and
// is bounded by timeout.
func New(asker Asker, maxResults int, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the documents and press Enter"
	ti.CharLimit = 0
	ti.Focus()
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return Model{
		asker:      asker,
		maxResults: maxResults,
		timeout:    timeout,
		input:      ti,
		viewport:   viewport.New(0, 0),
	}
}

// Run starts the chat client on the terminal
func Run(asker Asker, maxResults int, timeout time.Duration) error {
	_, err := tea.NewProgram(New(asker, maxResults, timeout), tea.WithAltScreen()).Run()
	return err
}

// Messages returns the conversation so far
func (m Model) Messages() []Message {
	return m.messages
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := chatBoxStyle.GetFrameSize()
		_, input := inputBoxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-frame-input-3)
		m.refresh()
		return m, nil

	case answerMsg:
		m.loading = false
		if len(m.messages) == 0 {
			return m, nil
		}
		last := &m.messages[len(m.messages)-1]
		if msg.err != nil {
			last.Content = "Error: " + msg.err.Error()
			last.Err = true
		} else {
			last.Content = msg.answer.Text
			last.Sources = msg.answer.Sources
			last.Confidence = msg.answer.Confidence
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.loading {
				return m, nil
			}
			m.input.SetValue("")
			m.loading = true
			m.messages = append(m.messages,
				Message{Role: "user", Content: query},
				Message{Role: "assistant", Content: "Thinking..."},
			)
			m.refresh()
			return m, m.ask(query)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(query string) tea.Cmd {
	asker, n, timeout := m.asker, m.maxResults, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		answer, err := asker.Ask(ctx, domain.Query{Text: query, MaxResults: n, Timestamp: time.Now()})
		return answerMsg{answer: answer, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Perspectives AI")
	status := mutedStyle.Render("Enter to ask · PgUp/PgDn to scroll · Esc to quit")
	if m.loading {
		status = warnStyle.Render("Searching documents...")
	}
	return header + "\n" +
		chatBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return mutedStyle.Render("Ask a question about the ingested documents.")
	}
	var lines []string
	for _, msg := range m.messages {
		switch {
		case msg.Role == "user":
			lines = append(lines, userStyle.Render("You: ")+msg.Content)
		case msg.Err:
			lines = append(lines, errorStyle.Render(msg.Content))
		default:
			lines = append(lines, assistantStyle.Render("AI: ")+FormatMarkdown(msg.Content))
			if len(msg.Sources) > 0 {
				lines = append(lines, "", FormatSources(msg.Sources, msg.Confidence))
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// RenderAnswer formats an answer with its sources for terminal output
func RenderAnswer(a *domain.Answer) string {
	out := FormatMarkdown(a.Text)
	if len(a.Sources) > 0 {
		out += "\n\n" + FormatSources(a.Sources, a.Confidence)
	}
	return out
}

// FormatSources lists cited chunks in citation order
func FormatSources(sources []domain.RetrievalResult, confidence float64) string {
	lines := []string{warnStyle.Render(fmt.Sprintf("Sources (confidence %.2f):", confidence))}
	for i, s := range sources {
		title := s.Title
		if title == "" {
			title = s.Filename
		}
		lines = append(lines, mutedStyle.Render(
			fmt.Sprintf("  [%d] %s, page %d (%.2f)", i+1, title, s.Page, s.Similarity)))
	}
	return strings.Join(lines, "\n")
}

// FormatMarkdown styles headings, bullets and **bold** spans
func FormatMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			out = append(out, headingStyle.Render(heading))
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			out = append(out, "  "+mutedStyle.Render("•")+" "+processBold(trimmed[2:]))
		default:
			out = append(out, processBold(line))
		}
	}
	return strings.Join(out, "\n")
}

// processBold renders text between ** pairs in bold. An unclosed marker
// bolds the remainder.
func processBold(text string) string {
	parts := strings.Split(text, "**")
	if len(parts) == 1 {
		return text
	}
	var b strings.Builder
	for i, p := range parts {
		if i%2 == 1 {
			b.WriteString(boldStyle.Render(p))
		} else {
			b.WriteString(p)
		}
	}
	return b.String()
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	assistantStyle = lipgloss.NewStyle().Bold(true)
	headingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	boldStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

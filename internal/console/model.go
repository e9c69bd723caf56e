// Package console is a terminal UI for trying queries against the
// knowledge engine and seeing exactly what the injection stage would
// forward to the model.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/ranker"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
)

type mode int

const (
	modeMatches mode = iota
	modeInjected
)

// Model is the Bubble Tea model. Up and down step through matches, tab
// switches to the annotated unit.
type Model struct {
	engine    *engine.Engine
	injector  *pipeline.Injector
	stats     *analytics.Aggregator
	input     textinput.Model
	viewport  viewport.Model
	matches   []ranker.ScoredDoc
	injected  string
	mode      mode
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New builds the console. stats may be nil.
func New(eng *engine.Engine, stats *analytics.Aggregator) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Say something to Maya and press Enter"
	ti.Focus()
	return Model{
		engine:   eng,
		injector: pipeline.NewInjector(eng, pipeline.Options{}),
		stats:    stats,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   fmt.Sprintf("%d documents loaded.", eng.Index().Len()),
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// header, summary, status and a spacer
		vh := msg.Height - 4 - qh - rh
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh)
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m = m.query(q)
				m.input.Reset()
				return m, nil
			}
		case tea.KeyTab:
			if m.lastQuery != "" {
				m.mode = 1 - m.mode
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case tea.KeyDown:
			if len(m.matches) > 0 {
				m.cursor = (m.cursor + 1) % len(m.matches)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case tea.KeyUp:
			if len(m.matches) > 0 {
				m.cursor = (m.cursor - 1 + len(m.matches)) % len(m.matches)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) query(q string) Model {
	start := time.Now()
	m.matches = m.engine.Search(q, m.engine.TopN())
	m.injected = m.injector.Process(context.Background(), pipeline.NewText("console", q)).Text
	took := time.Since(start)
	m.cursor = 0
	m.lastQuery = q

	ids := make([]string, len(m.matches))
	for i, d := range m.matches {
		ids[i] = d.DocID
	}
	if m.stats != nil {
		m.stats.Record(analytics.LookupEvent{
			Type:      analytics.EventLookup,
			Query:     q,
			Found:     len(m.matches) > 0,
			Matches:   ids,
			LatencyUs: took.Microseconds(),
			Source:    analytics.SourceConsole,
			Timestamp: time.Now().UTC(),
		})
	}
	if len(m.matches) == 0 {
		m.status = fmt.Sprintf("No context for %q; the unit is forwarded unchanged.", q)
	} else {
		m.status = fmt.Sprintf("%d match(es) for %q in %s", len(m.matches), q, took.Round(time.Microsecond))
	}
	m.viewport.SetContent(m.render())
	return m
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Knowledge Console")
	summary := dimStyle.Render(m.summary())
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) summary() string {
	line := "enter: query  up/down: matches  tab: matches/annotated unit  esc: quit"
	if m.stats == nil {
		return line
	}
	s := m.stats.Stats()
	return fmt.Sprintf("%s  |  lookups %d, no-signal %d", line, s.TotalLookups, s.NoSignal)
}

func (m Model) render() string {
	if m.lastQuery == "" {
		return "No query yet."
	}
	if m.mode == modeInjected {
		return titleStyle.Render("Forwarded unit") + "\n\n" + m.injected
	}
	if len(m.matches) == 0 {
		return "Nothing scored above the threshold."
	}
	d := m.matches[m.cursor]
	title := fmt.Sprintf("Match %d/%d  %s  score=%.3f", m.cursor+1, len(m.matches), d.DocID, d.Score)
	idx := m.engine.Index()
	body := highlightTerms(idx.Text(d.Position), m.lastQuery)
	keywords := dimStyle.Render("keywords: " + strings.Join(idx.Keywords(d.Position), ", "))
	return titleStyle.Render(title) + "\n\n" + body + "\n\n" + keywords
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightTerms marks the words of text that share a term with query.
// Words are compared the way the index sees them.
func highlightTerms(text, query string) string {
	terms := make(map[string]struct{})
	for _, t := range tokenizer.Tokenize(query) {
		terms[t] = struct{}{}
	}
	if len(terms) == 0 {
		return text
	}
	words := strings.Fields(text)
	for i, w := range words {
		for _, t := range tokenizer.Tokenize(w) {
			if _, ok := terms[t]; ok {
				words[i] = highlightStyle.Render(w)
				break
			}
		}
	}
	return strings.Join(words, " ")
}

package console

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
)

func newModel(t *testing.T) (Model, *analytics.Aggregator) {
	t.Helper()
	docs, err := corpus.Default()
	require.NoError(t, err)
	idx, err := index.Build(docs)
	require.NoError(t, err)
	stats := analytics.NewAggregator(5)
	m := New(engine.New(idx, engine.DefaultOptions()), stats)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), stats
}

func typeQuery(t *testing.T, m Model, q string) Model {
	t.Helper()
	m.input.SetValue(q)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model)
}

func TestQuery_ShowsMatchesAndRecords(t *testing.T) {
	m, stats := newModel(t)
	m = typeQuery(t, m, "Who are you, Maya?")

	require.NotEmpty(t, m.matches)
	assert.Equal(t, "about_maya", m.matches[0].DocID)
	assert.Contains(t, m.injected, pipeline.ContextHeader)
	assert.Contains(t, m.render(), "about_maya")
	assert.Empty(t, m.input.Value())

	s := stats.Stats()
	assert.Equal(t, int64(1), s.TotalLookups)
	assert.Equal(t, analytics.SourceConsole, firstKey(s.BySource))
}

func TestQuery_NoSignal(t *testing.T) {
	m, stats := newModel(t)
	m = typeQuery(t, m, "xylophone")
	assert.Empty(t, m.matches)
	assert.Equal(t, "xylophone", m.injected)
	assert.Contains(t, m.status, "forwarded unchanged")
	assert.Equal(t, int64(1), stats.Stats().NoSignal)
}

func TestTabTogglesInjectedView(t *testing.T) {
	m, _ := newModel(t)
	m = typeQuery(t, m, "Who are you, Maya?")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.Equal(t, modeInjected, m.mode)
	assert.Contains(t, m.render(), "Forwarded unit")
}

func TestCursorWraps(t *testing.T) {
	m, _ := newModel(t)
	m = typeQuery(t, m, "what did he build at genxcellence with sql")
	require.Len(t, m.matches, 2)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, next.(Model).cursor)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, next.(Model).cursor)
}

func TestHighlightTerms(t *testing.T) {
	assert.Equal(t, "plain text", highlightTerms("plain text", "a b"))
	out := highlightTerms("Maya is an assistant.", "maya")
	assert.Contains(t, out, "assistant.")
}

func firstKey(m map[string]int64) string {
	for k := range m {
		return k
	}
	return ""
}

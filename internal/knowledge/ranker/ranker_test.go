package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
)

func defaultParams(limit int) Params {
	return Params{KeywordBoost: DefaultKeywordBoost, Threshold: DefaultThreshold, Limit: limit}
}

func build(t *testing.T, docs ...index.Document) *index.Index {
	t.Helper()
	idx, err := index.Build(docs)
	require.NoError(t, err)
	return idx
}

func TestRankKeywordBoostAloneClearsThreshold(t *testing.T) {
	idx := build(t,
		index.Document{ID: "maya", Text: "An assistant persona.", Keywords: []string{"maya"}},
		index.Document{ID: "other", Text: "Unrelated platform notes."},
	)
	got := Rank(idx, "Who are you, Maya?", defaultParams(2))
	require.Len(t, got, 1)
	assert.Equal(t, "maya", got[0].DocID)
	assert.InDelta(t, 0.2, got[0].Score, 1e-12)
}

func TestRankBoostIsAdditivePerKeyword(t *testing.T) {
	idx := build(t,
		index.Document{ID: "a", Text: "zzz", Keywords: []string{"sql", "voice", "agent", "open source"}},
	)
	// no query term is in the corpus, so the score is boost only:
	// "sql", "voice" and "open source" match as substrings, "agent" does not
	got := Rank(idx, "MySQL voiceover reopen sourced", Params{KeywordBoost: 0.2, Threshold: 0, Limit: 1})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Score, 1e-12)
}

func TestRankOrdersByScore(t *testing.T) {
	idx := build(t,
		index.Document{ID: "weak", Text: "pipeline voice telemetry dashboards"},
		index.Document{ID: "strong", Text: "voice agent voice agent"},
		index.Document{ID: "none", Text: "chatbot memory"},
	)
	got := Rank(idx, "voice agent", defaultParams(3))
	require.Len(t, got, 2)
	assert.Equal(t, "strong", got[0].DocID)
	assert.Equal(t, "weak", got[1].DocID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRankTiesKeepCorpusOrder(t *testing.T) {
	idx := build(t,
		index.Document{ID: "first", Text: "alpha", Keywords: []string{"shared"}},
		index.Document{ID: "second", Text: "beta", Keywords: []string{"shared"}},
		index.Document{ID: "third", Text: "gamma", Keywords: []string{"shared"}},
	)
	for i := 0; i < 20; i++ {
		got := Rank(idx, "shared topic", defaultParams(3))
		require.Len(t, got, 3)
		assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].DocID, got[1].DocID, got[2].DocID})
	}
}

func TestRankLimitAppliesBeforeThreshold(t *testing.T) {
	idx := build(t,
		index.Document{ID: "a", Text: "alpha", Keywords: []string{"alpha"}},
		index.Document{ID: "b", Text: "beta", Keywords: []string{"beta"}},
		index.Document{ID: "c", Text: "gamma", Keywords: []string{"gamma"}},
	)
	got := Rank(idx, "alpha beta gamma", defaultParams(2))
	assert.Len(t, got, 2)
}

func TestRankNoTerms(t *testing.T) {
	idx := build(t, index.Document{ID: "a", Text: "anything", Keywords: []string{"is"}})
	assert.Nil(t, Rank(idx, "a is an", defaultParams(2)))
	assert.Nil(t, Rank(idx, "", defaultParams(2)))
	assert.Nil(t, Rank(idx, "   \t", defaultParams(2)))
}

func TestRankBelowThreshold(t *testing.T) {
	idx := build(t, index.Document{ID: "a", Text: "voice agent"})
	assert.Nil(t, Rank(idx, "completely different words", defaultParams(2)))
}

func TestRankEmptyCorpus(t *testing.T) {
	idx := build(t)
	assert.Nil(t, Rank(idx, "voice agent", defaultParams(2)))
}

package ranker

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/tokenizer"
)

const (
	DefaultKeywordBoost = 0.2
	DefaultThreshold    = 0.05
)

type ScoredDoc struct {
	DocID    string  `json:"doc_id"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

type Params struct {
	KeywordBoost float64
	Threshold    float64
	Limit        int
}

// Rank scores every document against query: cosine similarity of the TF-IDF
// vectors plus KeywordBoost for each document keyword found as a substring
// of the lower-cased query. Results are sorted by score, equal scores keep
// corpus order, then cut to Limit and filtered to scores above Threshold.
// A query without terms ranks nothing.
func Rank(idx *index.Index, query string, params Params) []ScoredDoc {
	terms := tokenizer.Tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	queryVec := idx.QueryVector(terms)
	queryNorm := queryVec.Norm()
	lowered := strings.ToLower(query)

	scored := make([]ScoredDoc, idx.Len())
	for i := range scored {
		score := index.CosineWithNorms(queryVec, idx.Vector(i), queryNorm, idx.Norm(i))
		for _, kw := range idx.Keywords(i) {
			if strings.Contains(lowered, kw) {
				score += params.KeywordBoost
			}
		}
		scored[i] = ScoredDoc{
			DocID:    idx.ID(i),
			Position: i,
			Score:    score,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if params.Limit > 0 && len(scored) > params.Limit {
		scored = scored[:params.Limit]
	}
	result := scored[:0]
	for _, doc := range scored {
		if doc.Score > params.Threshold {
			result = append(result, doc)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

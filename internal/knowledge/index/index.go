// Package index builds the immutable TF-IDF index over the knowledge corpus.
// Every statistic is computed once in Build; afterwards an *Index is
// read-only and safe to share between goroutines without locking.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
)

type Index struct {
	docs        []Document
	vectors     []Vector
	norms       []float64
	docFreq     map[string]int
	idf         map[string]float64
	fingerprint string
}

// Build validates the corpus and computes document frequencies, IDF and one
// vector per document. Documents keep their order; ids must be unique and
// non-empty and every document needs text. Keywords are lower-cased, and
// blank or repeated keywords are dropped.
func Build(docs []Document) (*Index, error) {
	idx := &Index{
		docs:    make([]Document, 0, len(docs)),
		docFreq: make(map[string]int),
	}
	seen := make(map[string]int, len(docs))
	for i, doc := range docs {
		doc, err := normalize(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if prev, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("document %d %q (first at %d): %w", i, doc.ID, prev, apperrors.ErrDuplicateID)
		}
		seen[doc.ID] = i
		idx.docs = append(idx.docs, doc)
	}

	termCounts := make([]map[string]int, len(idx.docs))
	maxCounts := make([]int, len(idx.docs))
	for i, doc := range idx.docs {
		termCounts[i], maxCounts[i] = tokenizer.Frequencies(tokenizer.Tokenize(doc.indexText()))
		for term := range termCounts[i] {
			idx.docFreq[term]++
		}
	}

	n := float64(len(idx.docs))
	idx.idf = make(map[string]float64, len(idx.docFreq))
	for term, df := range idx.docFreq {
		idx.idf[term] = math.Log(n/float64(df+1)) + 1
	}

	idx.vectors = make([]Vector, len(idx.docs))
	idx.norms = make([]float64, len(idx.docs))
	for i := range idx.docs {
		idx.vectors[i] = idx.weigh(termCounts[i], maxCounts[i])
		idx.norms[i] = idx.vectors[i].Norm()
	}
	idx.fingerprint = fingerprint(idx.docs)
	return idx, nil
}

func normalize(doc Document) (Document, error) {
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return Document{}, fmt.Errorf("%w: missing id", apperrors.ErrMalformedCorpus)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, fmt.Errorf("%w: document %q has no text", apperrors.ErrMalformedCorpus, doc.ID)
	}
	keywords := make([]string, 0, len(doc.Keywords))
	for _, kw := range doc.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || slices.Contains(keywords, kw) {
			continue
		}
		keywords = append(keywords, kw)
	}
	doc.Keywords = keywords
	return doc, nil
}

// weigh turns term counts into a TF-IDF vector: count/maxCount scaled by
// the corpus IDF. Terms the corpus has never seen are left out, which is
// the same as weighing them zero.
func (x *Index) weigh(counts map[string]int, maxCount int) Vector {
	vec := make(Vector, len(counts))
	if maxCount == 0 {
		return vec
	}
	for term, count := range counts {
		idf, ok := x.idf[term]
		if !ok {
			continue
		}
		vec[term] = float64(count) / float64(maxCount) * idf
	}
	return vec
}

// QueryVector weighs already tokenized query terms against the corpus IDF.
// The result belongs to the caller.
func (x *Index) QueryVector(terms []string) Vector {
	counts, maxCount := tokenizer.Frequencies(terms)
	return x.weigh(counts, maxCount)
}

// Len reports the number of documents.
func (x *Index) Len() int {
	return len(x.docs)
}

// Document returns a copy of the i-th document in corpus order.
func (x *Index) Document(i int) Document {
	doc := x.docs[i]
	doc.Keywords = slices.Clone(doc.Keywords)
	return doc
}

// Documents returns a copy of the corpus in order.
func (x *Index) Documents() []Document {
	out := make([]Document, len(x.docs))
	for i := range x.docs {
		out[i] = x.Document(i)
	}
	return out
}

// Vector returns the i-th document vector. Callers must not modify it.
func (x *Index) Vector(i int) Vector {
	return x.vectors[i]
}

// Norm returns the precomputed norm of the i-th document vector.
func (x *Index) Norm(i int) float64 {
	return x.norms[i]
}

// Text returns the i-th document's text without copying keywords.
func (x *Index) Text(i int) string {
	return x.docs[i].Text
}

// ID returns the i-th document's id.
func (x *Index) ID(i int) string {
	return x.docs[i].ID
}

// Keywords returns the i-th document's normalized keywords. Callers must
// not modify the slice.
func (x *Index) Keywords(i int) []string {
	return x.docs[i].Keywords
}

// IDF returns the inverse document frequency of term.
func (x *Index) IDF(term string) (float64, bool) {
	idf, ok := x.idf[term]
	return idf, ok
}

// DocFreq returns how many documents contain term at least once.
func (x *Index) DocFreq(term string) int {
	return x.docFreq[term]
}

// Vocabulary reports the number of distinct terms in the corpus.
func (x *Index) Vocabulary() int {
	return len(x.idf)
}

// Fingerprint identifies the corpus content. Two indexes built from equal
// corpora share a fingerprint.
func (x *Index) Fingerprint() string {
	return x.fingerprint
}

func fingerprint(docs []Document) string {
	h := sha256.New()
	for _, doc := range docs {
		h.Write([]byte(doc.ID))
		h.Write([]byte{0})
		h.Write([]byte(doc.Text))
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(doc.Keywords, "\x1f")))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

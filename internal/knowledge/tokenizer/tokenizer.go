// Package tokenizer turns knowledge documents and spoken queries into terms.
// It lower-cases input, treats "." as a separator, splits on whitespace and
// drops words shorter than three characters. Other punctuation stays
// attached to its word, so "maya?" and "maya" are different terms.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// MinTermLength is the shortest word, in characters, kept as a term.
const MinTermLength = 3

// Tokenize returns the terms of text in order of appearance. It is pure:
// the same input always yields the same sequence.
func Tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), ".", " ")
	words := strings.Fields(text)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < MinTermLength {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// Frequencies counts each term and reports the highest count. maxCount is
// zero only when terms is empty.
func Frequencies(terms []string) (counts map[string]int, maxCount int) {
	counts = make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
		if counts[term] > maxCount {
			maxCount = counts[term]
		}
	}
	return counts, maxCount
}

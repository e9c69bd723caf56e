// Package corpus supplies the knowledge documents the index is built from:
// the embedded default knowledge base, a YAML file, or a Postgres table.
package corpus

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
)

//go:embed default.yaml
var defaultCorpus []byte

type file struct {
	Documents []index.Document `yaml:"documents"`
}

// Default returns the embedded knowledge base.
func Default() ([]index.Document, error) {
	docs, err := Parse(defaultCorpus)
	if err != nil {
		return nil, fmt.Errorf("embedded corpus: %w", err)
	}
	return docs, nil
}

// LoadFile reads a YAML corpus of the form documents: [{id, text, keywords}].
func LoadFile(path string) ([]index.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file %s: %w", path, err)
	}
	docs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("corpus file %s: %w", path, err)
	}
	return docs, nil
}

// Parse decodes a YAML corpus. Unknown fields are rejected so a typo such
// as "keyword:" cannot silently drop a document's boost terms.
func Parse(data []byte) ([]index.Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedCorpus, err)
	}
	return f.Documents, nil
}

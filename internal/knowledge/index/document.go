package index

// Document is one knowledge snippet. Text is returned verbatim on a match;
// Keywords only boost ranking and never identify the document.
type Document struct {
	ID       string   `json:"id" yaml:"id"`
	Text     string   `json:"text" yaml:"text"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// indexText is what gets tokenized for a document: its text followed by its
// keywords.
func (d Document) indexText() string {
	text := d.Text
	for _, kw := range d.Keywords {
		text += " " + kw
	}
	return text
}

package pipeline

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
)

// Kind tags what a Unit carries.
type Kind string

const (
	KindText   Kind = "text"
	KindOpaque Kind = "opaque"
)

// Direction is the way a unit travels through the session pipeline.
type Direction string

const (
	Downstream Direction = "downstream"
	Upstream   Direction = "upstream"
)

// Unit is one item flowing through a session pipeline. Only text units
// carry Text; every other unit carries an opaque Data payload the stage
// never inspects.
type Unit struct {
	ID        string          `json:"id,omitempty"`
	Session   string          `json:"session,omitempty"`
	Kind      Kind            `json:"kind"`
	Direction Direction       `json:"direction,omitempty"`
	Text      string          `json:"text,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewText(id, text string) Unit {
	return Unit{ID: id, Kind: KindText, Direction: Downstream, Text: text}
}

func NewOpaque(id string, data json.RawMessage) Unit {
	return Unit{ID: id, Kind: KindOpaque, Direction: Downstream, Data: data}
}

// TextPayload returns the text and true for text units.
func (u Unit) TextPayload() (string, bool) {
	if u.Kind != KindText {
		return "", false
	}
	return u.Text, true
}

// WithText returns a copy of u carrying text instead of its current
// payload. Every other field is preserved.
func (u Unit) WithText(text string) Unit {
	u.Text = text
	return u
}

// Validate checks the tag is known. Direction defaults to downstream.
func (u *Unit) Validate() error {
	switch u.Kind {
	case KindText, KindOpaque:
	default:
		return fmt.Errorf("%w: unknown unit kind %q", apperrors.ErrInvalidInput, u.Kind)
	}
	switch u.Direction {
	case "":
		u.Direction = Downstream
	case Downstream, Upstream:
	default:
		return fmt.Errorf("%w: unknown unit direction %q", apperrors.ErrInvalidInput, u.Direction)
	}
	return nil
}

// DecodeUnit parses and validates a JSON unit.
func DecodeUnit(data []byte) (Unit, error) {
	var u Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return Unit{}, fmt.Errorf("%w: decoding unit: %v", apperrors.ErrInvalidInput, err)
	}
	if err := u.Validate(); err != nil {
		return Unit{}, err
	}
	return u, nil
}

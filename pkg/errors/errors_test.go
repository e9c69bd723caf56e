package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad top_n"), http.StatusUnprocessableEntity},
		{"wrapped invalid input", fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"unavailable", fmt.Errorf("redis: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestDuplicateIDIsMalformedCorpus(t *testing.T) {
	err := fmt.Errorf("document %q: %w", "about_maya", ErrDuplicateID)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.ErrorIs(t, err, ErrMalformedCorpus)
}

func TestAppErrorMessage(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "top_n must be >= 1, got %d", 0)
	assert.Equal(t, "invalid input: top_n must be >= 1, got 0", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

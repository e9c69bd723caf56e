package analytics

import "time"

type EventType string

const (
	EventLookup EventType = "lookup"
)

// Sources a lookup can come from.
const (
	SourceHTTP    = "http"
	SourceStream  = "stream"
	SourceMCP     = "mcp"
	SourceConsole = "console"
)

// LookupEvent describes one knowledge lookup.
type LookupEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Found     bool      `json:"found"`
	Matches   []string  `json:"matches,omitempty"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Source    string    `json:"source"`
	Session   string    `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

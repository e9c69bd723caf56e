// Package mcpserver exposes knowledge lookup as an MCP tool, so an agent
// framework can pull context on demand instead of through the injection
// stage.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
)

const (
	ToolName = "knowledge_lookup"
	version  = "0.1.0"
)

// Resolver is satisfied by the cache and, through ResolverFunc, the
// engine.
type Resolver interface {
	Resolve(ctx context.Context, text string, topN int) (engine.Result, bool, error)
}

type ResolverFunc func(ctx context.Context, text string, topN int) (engine.Result, bool, error)

func (f ResolverFunc) Resolve(ctx context.Context, text string, topN int) (engine.Result, bool, error) {
	return f(ctx, text, topN)
}

// EngineResolver adapts an engine that has no cache in front of it.
func EngineResolver(eng *engine.Engine) Resolver {
	return ResolverFunc(func(_ context.Context, text string, topN int) (engine.Result, bool, error) {
		return eng.Resolve(text, topN), false, nil
	})
}

type Tracker interface {
	Track(event analytics.LookupEvent)
}

type toolResult struct {
	Found   bool     `json:"found"`
	Context string   `json:"context,omitempty"`
	Matches []string `json:"matches,omitempty"`
}

// LookupTool handles knowledge_lookup calls.
type LookupTool struct {
	resolver Resolver
	tracker  Tracker
	topN     int
	maxTopN  int
	logger   *slog.Logger
}

// NewLookupTool serves lookups with topN as the default. Requested top_n
// values above maxTopN, normally the corpus size, are clamped to it; zero
// disables the clamp. tracker may be nil.
func NewLookupTool(resolver Resolver, topN, maxTopN int, tracker Tracker) *LookupTool {
	return &LookupTool{
		resolver: resolver,
		tracker:  tracker,
		topN:     topN,
		maxTopN:  maxTopN,
		logger:   slog.Default().With("component", "mcp-lookup"),
	}
}

func (t *LookupTool) Tool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Look up background knowledge about Prajwal and his projects for what the caller just said. Returns found=false when nothing relevant is known."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The caller's utterance or question"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Maximum number of documents to join"),
		),
	)
}

func (t *LookupTool) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topN := request.GetInt("top_n", t.topN)
	if topN < 1 {
		return mcp.NewToolResultError("top_n must be a positive integer"), nil
	}
	if t.maxTopN > 0 && topN > t.maxTopN {
		topN = t.maxTopN
	}

	start := time.Now()
	res, cacheHit, err := t.resolver.Resolve(ctx, q, topN)
	if err != nil {
		t.logger.Error("lookup failed", "query", q, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := toolResult{Found: res.Found, Context: res.Context}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, m.DocID)
	}
	if t.tracker != nil {
		t.tracker.Track(analytics.LookupEvent{
			Type:      analytics.EventLookup,
			Query:     q,
			Found:     res.Found,
			Matches:   out.Matches,
			LatencyUs: time.Since(start).Microseconds(),
			CacheHit:  cacheHit,
			Source:    analytics.SourceMCP,
			Timestamp: time.Now().UTC(),
		})
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// New builds an MCP server with the lookup tool registered.
func New(tool *LookupTool) *server.MCPServer {
	srv := server.NewMCPServer("voice-context-engine", version, server.WithToolCapabilities(false))
	srv.AddTool(tool.Tool(), tool.Handle)
	return srv
}

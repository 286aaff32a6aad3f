package mcp

import (
	"context"
	"encoding/json"
	"time"

	"issuemetrics/internal/config"
	"issuemetrics/internal/metrics"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

const (
	serverName    = "issuemetrics"
	serverVersion = "0.1.0"
)

// Server exposes the analysis engines as MCP tools over a record store.
type Server struct {
	store *metrics.Store
	cfg   *config.AppConfig
	now   func() time.Time
}

// NewServer creates a new MCP server over store. cfg supplies the analysis profile and records file.
func NewServer(store *metrics.Store, cfg *config.AppConfig) *Server {
	return &Server{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Serve runs the MCP protocol over stdio until the client disconnects or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	log.Info().
		Int("records", s.store.Count()).
		Str("recordsFile", s.cfg.RecordsFile).
		Msg("Starting MCP server on stdio")
	return s.build().Run(ctx, &sdk.StdioTransport{})
}

// build assembles the SDK server with every tool registered.
func (s *Server) build() *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: serverVersion}, nil)
	s.registerTools(server)
	return server
}

func (s *Server) formatResult(data any) string {
	out, _ := json.MarshalIndent(data, "", "  ")
	return string(out)
}

// textResult wraps data as the JSON text content of a tool result.
func (s *Server) textResult(data any) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: s.formatResult(data)}},
	}
}

// errorResult reports a failed tool call to the client without failing the protocol exchange.
func errorResult(tool string, err error) *sdk.CallToolResult {
	log.Warn().Err(err).Str("tool", tool).Msg("Tool call failed")
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
	}
}

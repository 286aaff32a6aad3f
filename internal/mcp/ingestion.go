package mcp

import (
	"context"
	"fmt"

	"issuemetrics/internal/metrics"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleReload(_ context.Context, _ *sdk.CallToolRequest, in ReloadInput) (*sdk.CallToolResult, any, error) {
	path := in.Path
	if path == "" {
		path = s.cfg.RecordsFile
	}

	// A failed read must leave the served records untouched.
	fresh := metrics.NewStore()
	if err := fresh.Load(path); err != nil {
		return errorResult("reload_records", err), nil, nil
	}
	loaded := fresh.Records()
	added := s.store.Append(loaded)

	// The merged set becomes the records file read on the next start.
	if err := s.store.Save(s.cfg.RecordsFile); err != nil {
		return errorResult("reload_records", fmt.Errorf("records merged but not persisted: %w", err)), nil, nil
	}
	log.Info().
		Str("path", path).
		Int("added", added).
		Str("recordsFile", s.cfg.RecordsFile).
		Msg("Records reloaded and persisted")

	return s.textResult(map[string]any{
		"path":     path,
		"loaded":   len(loaded),
		"added":    added,
		"replaced": len(loaded) - added,
		"total":    s.store.Count(),
		"savedTo":  s.cfg.RecordsFile,
	}), nil, nil
}

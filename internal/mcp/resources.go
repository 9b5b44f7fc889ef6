package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
)

const recentResultsLimit = 20

var errNoCatalog = errors.New("no exercise catalog configured")

func (h *handlers) recentResults(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rows, err := h.ds.RecentResults(ctx, recentResultsLimit)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, rows)
}

func (h *handlers) exerciseCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.exercises == nil {
		return nil, errNoCatalog
	}
	c, err := h.exercises.Exercises(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, c)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/storage"
)

const defaultResultLimit = 50

// --- Tool definitions ---

var toolListResults = mcp.NewTool("list_results",
	mcp.WithDescription("List stored exercise attempts in the order they were recorded. Each result carries the achieved angle in degrees, pain angles, and game score fields for game exercises."),
	mcp.WithString("exercise_id", mcp.Description("Only results of this exercise id")),
	mcp.WithString("user_key", mcp.Description("Only results of this kiosk session key")),
	mcp.WithNumber("limit", mcp.Description("Maximum number of results. Defaults to 50.")),
)

var toolGetExerciseResults = mcp.NewTool("get_exercise_results",
	mcp.WithDescription("All attempts of one exercise plus a summary: attempt count, maximum and average achieved angle, best game score and number of pain marks."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise id (see list_exercises)")),
)

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List the configured exercises with their type, tracked joint and goal."),
)

// exerciseResults is the get_exercise_results payload.
type exerciseResults struct {
	ExerciseID string                   `json:"exercise_id"`
	Summary    *storage.ExerciseSummary `json:"summary"`
	Results    []models.ResultRow       `json:"results"`
}

// --- Tool handlers ---

func (h *handlers) listResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultResultLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	rows, err := h.ds.QueryResults(ctx, storage.ResultFilter{
		ExerciseID: req.GetString("exercise_id", ""),
		UserKey:    req.GetString("user_key", ""),
		Limit:      limit,
	})
	if err != nil {
		h.log.Error("mcp list_results", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("exercise_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}

	rows, err := h.ds.QueryResults(ctx, storage.ResultFilter{ExerciseID: id})
	if err != nil {
		h.log.Error("mcp get_exercise_results", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	sums, err := h.ds.ResultSummaries(ctx, id)
	if err != nil {
		h.log.Error("mcp get_exercise_results summary", "error", err)
		return mcp.NewToolResultError("summary failed: " + err.Error()), nil
	}

	out := exerciseResults{ExerciseID: id, Results: rows}
	if len(sums) > 0 {
		out.Summary = &sums[0]
	}
	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.exercises == nil {
		return mcp.NewToolResultError(errNoCatalog.Error()), nil
	}
	c, err := h.exercises.Exercises(ctx)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(c)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

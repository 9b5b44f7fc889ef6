package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
// exercises may be nil when no catalog is available.
func New(ds DataSource, exercises ExerciseSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("romkiosk", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Range-of-motion kiosk results. List stored exercise attempts, summarize the angles reached per exercise, and read the exercise catalog. Angles are in degrees; pain angles are the angles at which the patient signalled pain."),
	)

	h := &handlers{ds: ds, exercises: exercises, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListResults, Handler: h.listResults},
		server.ServerTool{Tool: toolGetExerciseResults, Handler: h.getExerciseResults},
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRecentResults, Handler: h.recentResults},
		server.ServerResource{Resource: resExerciseCatalog, Handler: h.exerciseCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds        DataSource
	exercises ExerciseSource
	log       *slog.Logger
}

// --- Resource definitions ---

var resRecentResults = mcp.NewResource(
	"romkiosk://recent_results",
	"Recent Results",
	mcp.WithResourceDescription("The 20 most recent exercise attempts, newest first"),
	mcp.WithMIMEType("application/json"),
)

var resExerciseCatalog = mcp.NewResource(
	"romkiosk://exercise_catalog",
	"Exercise Catalog",
	mcp.WithResourceDescription("All configured exercises with their joints, goals and instructions"),
	mcp.WithMIMEType("application/json"),
)

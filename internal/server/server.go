package server

import (
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/claude/romkiosk/internal/metrics"
	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/remote"
	"github.com/claude/romkiosk/internal/session"
	"github.com/claude/romkiosk/internal/storage"
	"github.com/claude/romkiosk/internal/tracking"
)

// Kiosk is the running kiosk as seen by HTTP and websocket clients.
type Kiosk interface {
	Snapshot() session.Snapshot
	Command(name, arg string) error
	Navigate(path string) (reason string, reset bool)
	Press(key string) (remote.Action, bool)
	Exercises() models.ExerciseCollection
	Deliver(r tracking.Result)
	ReportGameResult(g models.GameResult)
	Subscribe() (<-chan []byte, func())
	WriteOverlayPNG(w io.Writer) (bool, error)
}

// Options configures a Server. Kiosk is nil on a central results server,
// which then serves only the results API.
type Options struct {
	DB      *storage.DB
	Kiosk   Kiosk
	Metrics *metrics.Metrics
	APIKey  string

	// FrameRate caps inbound landmark frames per websocket connection.
	FrameRate float64
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db        *storage.DB
	kiosk     Kiosk
	metrics   *metrics.Metrics
	log       *slog.Logger
	apiKey    string
	frameRate float64
	upgrader  websocket.Upgrader
	router    chi.Router
}

// New creates a new Server with all routes configured.
func New(opts Options, log *slog.Logger) *Server {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}
	s := &Server{
		db:        opts.DB,
		kiosk:     opts.Kiosk,
		metrics:   opts.Metrics,
		log:       log,
		apiKey:    opts.APIKey,
		frameRate: opts.FrameRate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The kiosk UI is served from the same box; browsers on the
			// tailnet may use another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
		s.router.Handle("/metrics", s.metrics.Handler())
	}
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Writes need the API key when one is configured.
		r.Group(func(r chi.Router) {
			if s.apiKey != "" {
				r.Use(APIKeyAuth(s.apiKey))
			}
			r.Post("/results", s.handleCreateResult)
			r.Post("/users", s.handleCreateUser)
		})
		r.Get("/results", s.handleQueryResults)
		r.Get("/results/summary", s.handleResultSummary)
		r.Get("/results/chart", s.handleResultsChart)
		r.Get("/users", s.handleQueryUsers)
		r.Get("/stats", s.handleStats)

		if s.kiosk == nil {
			return
		}
		r.Get("/session", s.handleSession)
		r.Post("/session/goto/{index}", s.handleSessionGoto)
		r.Post("/session/select/{id}", s.handleSessionSelect)
		r.Post("/session/game", s.handleGameResult)
		r.Post("/session/{action}", s.handleSessionCommand)
		r.Post("/navigate", s.handleNavigate)
		r.Post("/keys", s.handleKey)
		r.Get("/exercises", s.handleExercises)
		r.Get("/overlay.png", s.handleOverlay)
	})

	if s.kiosk != nil {
		s.router.Get("/ws", s.handleWS)
	}
}

// SetFrontend mounts the kiosk UI filesystem.
// Unmatched routes serve index.html for client-side routing.
func (s *Server) SetFrontend(webFS fs.FS) {
	fileServer := http.FileServerFS(webFS)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		f, err := webFS.Open(r.URL.Path[1:])
		if err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

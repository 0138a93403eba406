package api

import (
	"net/http"

	"github.com/openmusicplayer/bilimusic/internal/auth"
	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
	"github.com/openmusicplayer/bilimusic/internal/health"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/logger"
	"github.com/openmusicplayer/bilimusic/internal/lyrics"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
	"github.com/openmusicplayer/bilimusic/internal/middleware"
	"github.com/openmusicplayer/bilimusic/internal/validators"
	"github.com/openmusicplayer/bilimusic/internal/websocket"
)

// RouterConfig collects the services behind the control API. Library,
// Lyrics, History, Hub and Health are optional; their routes are left out
// when nil. A nil Auth disables authentication.
type RouterConfig struct {
	Jobs        Jobs
	DownloadDir string
	Library     *library.Library
	Lyrics      *lyrics.Matcher
	History     HistoryStore
	Auth        *auth.Service
	Hub         *websocket.Hub
	Health      *health.Checker
	Metrics     *metrics.Metrics
	Validators  *validators.Registry
	CORSOrigins []string
}

type Router struct {
	mux         *http.ServeMux
	authService *auth.Service
	handler     http.Handler
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}

	r := &Router{
		mux:         http.NewServeMux(),
		authService: cfg.Auth,
	}
	r.setupRoutes(cfg)

	r.handler = middleware.Chain(r.mux,
		apperrors.RequestIDMiddleware,
		logger.RecoveryMiddleware,
		logger.LoggingMiddleware,
		metrics.MetricsMiddleware(cfg.Metrics),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Timing,
		middleware.Gzip,
		middleware.ETag,
	)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) setupRoutes(cfg RouterConfig) {
	// Health and metrics are unauthenticated so probes can reach them
	if cfg.Health != nil {
		h := health.NewHandler(cfg.Health)
		r.mux.HandleFunc("GET /health", h.HealthHandler)
		r.mux.HandleFunc("GET /health/live", h.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", h.ReadinessHandler)
	}
	r.mux.Handle("GET /metrics", cfg.Metrics.Handler())

	authHandlers := auth.NewHandlers(cfg.Auth)
	r.mux.HandleFunc("POST /api/v1/auth/token", apperrors.HandleFunc(authHandlers.IssueToken))

	downloads := NewDownloadHandlers(cfg.Jobs, cfg.DownloadDir)
	r.handle("POST /api/v1/downloads", downloads.CreateDownload)
	r.handle("GET /api/v1/downloads", downloads.ListDownloads)
	r.handle("GET /api/v1/downloads/{id}", downloads.GetDownload)
	r.handle("DELETE /api/v1/downloads/{id}", downloads.CancelDownload)
	r.handle("POST /api/v1/downloads/pause", downloads.PauseAll)
	r.handle("POST /api/v1/downloads/resume", downloads.ResumeAll)
	r.handle("POST /api/v1/downloads/cancel", downloads.CancelAll)
	r.handle("POST /api/v1/downloads/clear", downloads.ClearFinished)

	v := validators.NewHandlers(cfg.Validators)
	r.handle("GET /api/v1/validate", v.ValidateURLQuery)
	r.handle("POST /api/v1/validate", v.ValidateURL)
	r.handle("GET /api/v1/validate/sources", v.GetSupportedSources)

	if cfg.Library != nil {
		lib := NewLibraryHandlers(cfg.Library)
		r.handle("GET /api/v1/library", lib.GetLibrary)
		r.handle("POST /api/v1/library/rename", lib.Rename)
		r.handle("POST /api/v1/library/move", lib.Move)
		r.handle("POST /api/v1/library/delete", lib.Delete)
		r.handle("PUT /api/v1/library/tags", lib.UpdateTags)

		if cfg.Lyrics != nil {
			ly := NewLyricsHandlers(cfg.Lyrics, cfg.Library)
			r.handle("GET /api/v1/lyrics", ly.Search)
			r.handle("POST /api/v1/lyrics", ly.Save)
		}
	}

	if cfg.History != nil {
		hist := NewHistoryHandlers(cfg.History)
		r.handle("GET /api/v1/history", hist.ListHistory)
		r.handle("GET /api/v1/history/{id}", hist.GetHistory)
		r.handle("DELETE /api/v1/history", hist.PruneHistory)
	}

	// Browsers cannot set headers on a websocket handshake, so /ws takes
	// the token from the query string
	if cfg.Hub != nil {
		ws := websocket.NewHandler(cfg.Hub)
		r.mux.Handle("GET /ws", auth.QueryTokenMiddleware(r.authService)(ws.ServeWSHandler()))
	}
}

// handle registers an error-returning handler behind authentication
func (r *Router) handle(pattern string, h apperrors.Handler) {
	r.mux.Handle(pattern, auth.Middleware(r.authService)(apperrors.HandleFunc(h)))
}

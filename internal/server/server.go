// Package server wires the HTTP surface: asset catalogue, marker
// persistence, share links and playback analytics.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reelpoint/reelpoint/internal/analytics"
	"github.com/reelpoint/reelpoint/internal/asset"
	"github.com/reelpoint/reelpoint/internal/database"
	"github.com/reelpoint/reelpoint/internal/httputil"
	"github.com/reelpoint/reelpoint/internal/marker"
	"github.com/reelpoint/reelpoint/internal/ratelimit"
	"github.com/reelpoint/reelpoint/internal/validate"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB      database.DBTX
	Pinger  Pinger
	Storage asset.ObjectStorage
	Geo     *analytics.GeoResolver
	// SigningSecret signs playback grants for password-protected share links.
	SigningSecret string
	BaseURL       string
}

type Server struct {
	router           chi.Router
	pinger           Pinger
	assetHandler     *asset.Handler
	markerHandler    *marker.Handler
	analyticsHandler *analytics.Handler
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware)
	r.Use(securityHeaders(cfg.BaseURL))

	s := &Server{router: r, pinger: cfg.Pinger}

	if cfg.DB != nil {
		s.assetHandler = asset.NewHandler(cfg.DB, cfg.Storage, cfg.SigningSecret)
		s.markerHandler = marker.NewHandler(cfg.DB)
		s.analyticsHandler = analytics.NewHandler(cfg.DB, cfg.Geo)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)

	if s.assetHandler != nil {
		apiLimiter := ratelimit.NewLimiter(10, 30)
		s.router.Route("/api/assets", func(r chi.Router) {
			r.Use(apiLimiter.Middleware)
			r.Get("/", s.assetHandler.List)
			r.Get("/{id}", s.assetHandler.Get)
			r.Patch("/{id}", s.assetHandler.Update)
			r.Delete("/{id}", s.assetHandler.Delete)
			r.Get("/{id}/playback", s.assetHandler.Playback)
			r.Get("/{id}/stats", s.analyticsHandler.Stats)

			r.Get("/{id}/markers", s.markerHandler.GetUserMarkers)
			r.Put("/{id}/markers", s.markerHandler.PutUserMarkers)
			r.Delete("/{id}/markers", s.markerHandler.ClearMarkers)
			r.Get("/{id}/overrides", s.markerHandler.GetOverrides)
			r.Put("/{id}/overrides", s.markerHandler.PutOverrides)
		})

		s.router.Route("/api/player", func(r chi.Router) {
			r.Use(apiLimiter.Middleware)
			r.Get("/threshold", s.markerHandler.GetThreshold)
			r.Put("/threshold", s.markerHandler.PutThreshold)
		})

		// The share surface is public; keep its limiter tighter.
		shareLimiter := ratelimit.NewLimiter(2, 10)
		s.router.Route("/api/share/{shareToken}", func(r chi.Router) {
			r.Use(shareLimiter.Middleware)
			r.Get("/", s.assetHandler.Share)
			r.Post("/unlock", s.assetHandler.Unlock)
			r.Post("/events", s.analyticsHandler.RecordEvent)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleLimits publishes field length limits so clients can validate before
// submitting.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
}

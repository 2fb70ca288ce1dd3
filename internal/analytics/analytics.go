// Package analytics records playback events from the player and answers the
// dashboard's aggregate queries.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"
	"github.com/reelpoint/reelpoint/internal/database"
	"github.com/reelpoint/reelpoint/internal/httputil"
	"github.com/reelpoint/reelpoint/internal/validate"
)

var eventTypes = map[string]bool{
	"play":     true,
	"pause":    true,
	"seek":     true,
	"complete": true,
}

type Handler struct {
	db  database.DBTX
	geo *GeoResolver
}

func NewHandler(db database.DBTX, geo *GeoResolver) *Handler {
	return &Handler{db: db, geo: geo}
}

type eventRequest struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
}

// RecordEvent ingests one playback event from a share-link viewer. The
// insert happens off the request path; a failed write costs a data point,
// not a playback.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	shareToken := chi.URLParam(r, "shareToken")

	var req eventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.EventType(req.Type); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if !eventTypes[req.Type] {
		httputil.WriteError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if req.Position < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "position must not be negative")
		return
	}

	var assetID string
	err := h.db.QueryRow(r.Context(),
		`SELECT id FROM assets WHERE share_token = $1 AND status = 'ready'`,
		shareToken,
	).Scan(&assetID)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}

	ip := clientIP(r)
	hash := viewerHash(ip, r.UserAgent())
	browser, device := parseUserAgent(r.UserAgent())
	country := h.geo.Country(ip)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := h.db.Exec(ctx,
			`INSERT INTO playback_events (asset_id, event_type, position, viewer_hash, browser, device, country)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			assetID, req.Type, req.Position, hash, browser, device, country,
		); err != nil {
			slog.Error("analytics: failed to record event", "asset_id", assetID, "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func viewerHash(ip, ua string) string {
	sum := sha256.Sum256([]byte(ip + "|" + ua))
	return hex.EncodeToString(sum[:16])
}

func parseUserAgent(raw string) (browser, device string) {
	if raw == "" {
		return "", ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	device = "desktop"
	if ua.Bot() {
		device = "bot"
	} else if ua.Mobile() {
		device = "mobile"
	}
	return name, device
}

package asset

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelpoint/reelpoint/internal/database"
	"github.com/reelpoint/reelpoint/internal/httputil"
	"github.com/reelpoint/reelpoint/internal/marker"
	"github.com/reelpoint/reelpoint/internal/validate"
)

const playbackURLExpiry = 1 * time.Hour

// ObjectStorage is the slice of the media store the asset handlers need.
type ObjectStorage interface {
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

type Handler struct {
	db            database.DBTX
	storage       ObjectStorage
	signingSecret string
}

func NewHandler(db database.DBTX, storage ObjectStorage, signingSecret string) *Handler {
	return &Handler{db: db, storage: storage, signingSecret: signingSecret}
}

type listItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Status    string  `json:"status"`
	PosterURL string  `json:"posterUrl,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(r.Context(),
		`SELECT id, title, duration, status, poster_key, created_at
		 FROM assets WHERE status != 'deleted' ORDER BY created_at DESC`)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	defer rows.Close()

	items := make([]listItem, 0)
	for rows.Next() {
		var item listItem
		var posterKey *string
		var createdAt time.Time
		if err := rows.Scan(&item.ID, &item.Title, &item.Duration, &item.Status, &posterKey, &createdAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to scan asset")
			return
		}
		item.CreatedAt = createdAt.Format(time.RFC3339)
		if posterKey != nil {
			if url, err := h.storage.GenerateDownloadURL(r.Context(), *posterKey, playbackURLExpiry); err == nil {
				item.PosterURL = url
			}
		}
		items = append(items, item)
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

type detailResponse struct {
	Asset
	FPS   float64       `json:"fps"`
	Clips []marker.Clip `json:"clips"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	a, err := h.loadAsset(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}

	clips, err := h.loadClips(r.Context(), assetID)
	if err != nil {
		// The detail page still works without clips; semantic markers just
		// will not derive.
		slog.Warn("asset: failed to load clips", "asset_id", assetID, "error", err)
		clips = []marker.Clip{}
	}

	httputil.WriteJSON(w, http.StatusOK, detailResponse{
		Asset: *a,
		FPS:   ResolveFrameRate(0, a),
		Clips: clips,
	})
}

type playbackResponse struct {
	URL       string  `json:"url"`
	PosterURL string  `json:"posterUrl,omitempty"`
	FPS       float64 `json:"fps"`
}

func (h *Handler) Playback(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	a, err := h.loadAsset(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}
	if a.Status != "ready" {
		httputil.WriteError(w, http.StatusConflict, "asset is not ready for playback")
		return
	}

	url, err := h.storage.GenerateDownloadURL(r.Context(), a.FileKey, playbackURLExpiry)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate playback URL")
		return
	}
	resp := playbackResponse{URL: url, FPS: ResolveFrameRate(0, a)}
	if a.PosterKey != "" {
		if posterURL, err := h.storage.GenerateDownloadURL(r.Context(), a.PosterKey, playbackURLExpiry); err == nil {
			resp.PosterURL = posterURL
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type updateRequest struct {
	Title string `json:"title"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	var req updateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		httputil.WriteError(w, http.StatusBadRequest, "title must not be empty")
		return
	}
	if msg := validate.AssetTitle(req.Title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE assets SET title = $1, updated_at = now() WHERE id = $2 AND status != 'deleted'`,
		req.Title, assetID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update asset")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	var fileKey string
	var posterKey *string
	err := h.db.QueryRow(r.Context(),
		`UPDATE assets SET status = 'deleted', updated_at = now()
		 WHERE id = $1 AND status != 'deleted' RETURNING file_key, poster_key`,
		assetID,
	).Scan(&fileKey, &posterKey)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := h.storage.DeleteObject(ctx, fileKey); err != nil {
			slog.Error("asset: failed to delete media object", "asset_id", assetID, "error", err)
		}
		if posterKey != nil {
			if err := h.storage.DeleteObject(ctx, *posterKey); err != nil {
				slog.Error("asset: failed to delete poster object", "asset_id", assetID, "error", err)
			}
		}
	}()

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	var frameRate, metadataFrameRate, posterKey *string
	var createdAt time.Time
	err := h.db.QueryRow(ctx,
		`SELECT id, title, file_key, poster_key, content_type, duration, frame_rate, metadata_frame_rate, status, created_at
		 FROM assets WHERE id = $1 AND status != 'deleted'`,
		assetID,
	).Scan(&a.ID, &a.Title, &a.FileKey, &posterKey, &a.ContentType, &a.Duration, &frameRate, &metadataFrameRate, &a.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	if posterKey != nil {
		a.PosterKey = *posterKey
	}
	if frameRate != nil {
		a.FrameRate = *frameRate
	}
	if metadataFrameRate != nil {
		a.MetadataFrameRate = *metadataFrameRate
	}
	a.CreatedAt = createdAt.Format(time.RFC3339)
	return &a, nil
}

func (h *Handler) loadClips(ctx context.Context, assetID string) ([]marker.Clip, error) {
	rows, err := h.db.Query(ctx,
		`SELECT start_timecode, end_timecode, start_seconds, end_seconds, score, embedding_type
		 FROM clips WHERE asset_id = $1 ORDER BY start_seconds NULLS LAST, start_timecode`,
		assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips := make([]marker.Clip, 0)
	for rows.Next() {
		var c marker.Clip
		var startTC, endTC, embeddingType *string
		if err := rows.Scan(&startTC, &endTC, &c.Start, &c.End, &c.Score, &embeddingType); err != nil {
			return nil, err
		}
		if startTC != nil {
			c.StartTimecode = *startTC
		}
		if endTC != nil {
			c.EndTimecode = *endTC
		}
		if embeddingType != nil {
			c.EmbeddingType = *embeddingType
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

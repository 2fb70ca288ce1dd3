package asset

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelpoint/reelpoint/internal/httputil"
	"github.com/reelpoint/reelpoint/internal/validate"
)

type shareResponse struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Duration         float64 `json:"duration"`
	FPS              float64 `json:"fps"`
	URL              string  `json:"url,omitempty"`
	PosterURL        string  `json:"posterUrl,omitempty"`
	PasswordRequired bool    `json:"passwordRequired,omitempty"`
}

// Share resolves a share link. Password-protected links return only the
// title until the caller presents a playback grant from Unlock.
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	shareToken := chi.URLParam(r, "shareToken")

	a, sharePassword, err := h.loadShared(r, shareToken)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}

	resp := shareResponse{
		ID:       a.ID,
		Title:    a.Title,
		Duration: a.Duration,
		FPS:      ResolveFrameRate(0, a),
	}

	if sharePassword != nil && !h.grantCovers(r, a.ID) {
		resp.PasswordRequired = true
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	url, err := h.storage.GenerateDownloadURL(r.Context(), a.FileKey, playbackURLExpiry)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate playback URL")
		return
	}
	resp.URL = url
	if a.PosterKey != "" {
		if posterURL, err := h.storage.GenerateDownloadURL(r.Context(), a.PosterKey, playbackURLExpiry); err == nil {
			resp.PosterURL = posterURL
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type unlockRequest struct {
	Password string `json:"password"`
}

type unlockResponse struct {
	Grant string `json:"grant"`
}

// Unlock checks a share link's password and issues a time-limited playback
// grant for the asset.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	shareToken := chi.URLParam(r, "shareToken")

	var req unlockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.SharePassword(req.Password); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	a, sharePassword, err := h.loadShared(r, shareToken)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}

	if sharePassword == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !CheckSharePassword(*sharePassword, req.Password) {
		httputil.WriteError(w, http.StatusForbidden, "incorrect password")
		return
	}

	grant, err := SignPlaybackGrant(h.signingSecret, a.ID, GrantDuration)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to issue grant")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, unlockResponse{Grant: grant})
}

func (h *Handler) loadShared(r *http.Request, shareToken string) (*Asset, *string, error) {
	var a Asset
	var sharePassword, posterKey, frameRate, metadataFrameRate *string
	var createdAt time.Time
	err := h.db.QueryRow(r.Context(),
		`SELECT id, title, file_key, poster_key, content_type, duration, frame_rate, metadata_frame_rate, status, share_password, created_at
		 FROM assets WHERE share_token = $1 AND status = 'ready'`,
		shareToken,
	).Scan(&a.ID, &a.Title, &a.FileKey, &posterKey, &a.ContentType, &a.Duration, &frameRate, &metadataFrameRate, &a.Status, &sharePassword, &createdAt)
	if err != nil {
		return nil, nil, err
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
	return &a, sharePassword, nil
}

func (h *Handler) grantCovers(r *http.Request, assetID string) bool {
	grant := r.URL.Query().Get("grant")
	if grant == "" {
		return false
	}
	granted, err := VerifyPlaybackGrant(h.signingSecret, grant)
	return err == nil && granted == assetID
}

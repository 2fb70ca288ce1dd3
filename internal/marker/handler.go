package marker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reelpoint/reelpoint/internal/database"
	"github.com/reelpoint/reelpoint/internal/httputil"
	"github.com/reelpoint/reelpoint/internal/validate"
)

// maxMarkersPerAsset bounds the snapshot a client may persist in one call.
const maxMarkersPerAsset = 200

// Handler exposes the persisted marker state over REST so player hosts can
// sync their engines.
type Handler struct {
	store *PGStore
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{store: NewPGStore(db)}
}

func (h *Handler) GetUserMarkers(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	markers, err := h.store.LoadUserMarkers(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load markers")
		return
	}
	if markers == nil {
		markers = []Marker{}
	}
	httputil.WriteJSON(w, http.StatusOK, markers)
}

func (h *Handler) PutUserMarkers(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	var markers []Marker
	if err := httputil.DecodeJSON(r, &markers); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(markers) > maxMarkersPerAsset {
		httputil.WriteError(w, http.StatusBadRequest, "too many markers (max 200)")
		return
	}
	seen := make(map[string]bool, len(markers))
	for _, m := range markers {
		if m.ID == "" {
			httputil.WriteError(w, http.StatusBadRequest, "marker id must not be empty")
			return
		}
		if seen[m.ID] {
			httputil.WriteError(w, http.StatusBadRequest, "duplicate marker id "+m.ID)
			return
		}
		seen[m.ID] = true
		if msg := validate.MarkerName(m.Name); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		if m.Origin != OriginUser {
			httputil.WriteError(w, http.StatusBadRequest, "snapshot may only contain user markers")
			return
		}
		if !m.Time.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, "marker start must precede end")
			return
		}
	}

	// An empty snapshot clears the stored row instead of persisting [].
	if len(markers) == 0 {
		if err := h.store.ClearUserMarkers(r.Context(), assetID); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to clear markers")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.store.SaveUserMarkers(r.Context(), assetID, markers); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save markers")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearMarkers(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	if err := h.store.Clear(r.Context(), assetID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to clear marker state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetOverrides(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	overrides, err := h.store.LoadOverrides(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load overrides")
		return
	}
	if overrides == nil {
		overrides = map[string]Override{}
	}
	httputil.WriteJSON(w, http.StatusOK, overrides)
}

func (h *Handler) PutOverrides(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	var overrides map[string]Override
	if err := httputil.DecodeJSON(r, &overrides); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(overrides) > maxMarkersPerAsset {
		httputil.WriteError(w, http.StatusBadRequest, "too many overrides (max 200)")
		return
	}
	for id, ov := range overrides {
		if ov.Time != nil && !ov.Time.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, "override for "+id+" has start >= end")
			return
		}
	}

	if err := h.store.SaveOverrides(r.Context(), assetID, overrides); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save overrides")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type thresholdBody struct {
	Threshold float64 `json:"threshold"`
}

func (h *Handler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.store.Threshold(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load threshold")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, thresholdBody{Threshold: threshold})
}

func (h *Handler) PutThreshold(w http.ResponseWriter, r *http.Request) {
	var body thresholdBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Threshold < 0 || body.Threshold > 1 {
		httputil.WriteError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
		return
	}
	if err := h.store.SetThreshold(r.Context(), body.Threshold); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save threshold")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

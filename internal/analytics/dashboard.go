package analytics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelpoint/reelpoint/internal/httputil"
)

type statsSummary struct {
	TotalPlays    int64 `json:"totalPlays"`
	UniqueViewers int64 `json:"uniqueViewers"`
	PlaysToday    int64 `json:"playsToday"`
	Completions   int64 `json:"completions"`
}

type breakdownItem struct {
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type statsResponse struct {
	Summary   statsSummary    `json:"summary"`
	Browsers  []breakdownItem `json:"browsers"`
	Devices   []breakdownItem `json:"devices"`
	Countries []breakdownItem `json:"countries"`
}

// Stats answers the numbers behind the asset dashboard widgets.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	var exists bool
	if err := h.db.QueryRow(r.Context(),
		`SELECT EXISTS (SELECT 1 FROM assets WHERE id = $1 AND status != 'deleted')`,
		assetID,
	).Scan(&exists); err != nil || !exists {
		httputil.WriteError(w, http.StatusNotFound, "asset not found")
		return
	}

	resp := statsResponse{
		Browsers:  []breakdownItem{},
		Devices:   []breakdownItem{},
		Countries: []breakdownItem{},
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	err := h.db.QueryRow(r.Context(),
		`SELECT
			COUNT(*) FILTER (WHERE event_type = 'play'),
			COUNT(DISTINCT viewer_hash),
			COUNT(*) FILTER (WHERE event_type = 'play' AND created_at >= $2),
			COUNT(*) FILTER (WHERE event_type = 'complete')
		 FROM playback_events WHERE asset_id = $1`,
		assetID, today,
	).Scan(&resp.Summary.TotalPlays, &resp.Summary.UniqueViewers, &resp.Summary.PlaysToday, &resp.Summary.Completions)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	for _, dim := range []struct {
		column string
		target *[]breakdownItem
	}{
		{"browser", &resp.Browsers},
		{"device", &resp.Devices},
		{"country", &resp.Countries},
	} {
		items, err := h.breakdown(r, assetID, dim.column)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
			return
		}
		*dim.target = items
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) breakdown(r *http.Request, assetID, column string) ([]breakdownItem, error) {
	// column is one of three fixed names above, never user input.
	rows, err := h.db.Query(r.Context(),
		`SELECT `+column+`, COUNT(*) FROM playback_events
		 WHERE asset_id = $1 AND `+column+` != ''
		 GROUP BY `+column+` ORDER BY COUNT(*) DESC LIMIT 10`,
		assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]breakdownItem, 0)
	var total int64
	for rows.Next() {
		var item breakdownItem
		if err := rows.Scan(&item.Name, &item.Count); err != nil {
			return nil, err
		}
		total += item.Count
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		if total > 0 {
			items[i].Percentage = float64(items[i].Count) / float64(total) * 100
		}
	}
	return items, nil
}

package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func newAnalyticsRouter(mock pgxmock.PgxPoolIface) http.Handler {
	h := NewHandler(mock, NewGeoResolver(""))
	r := chi.NewRouter()
	r.Post("/api/share/{shareToken}/events", h.RecordEvent)
	r.Get("/api/assets/{id}/stats", h.Stats)
	return r
}

func TestRecordEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id FROM assets`).
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("asset-1"))
	mock.ExpectExec(`INSERT INTO playback_events`).
		WithArgs("asset-1", "play", 12.5, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	req := httptest.NewRequest(http.MethodPost, "/api/share/tok-1/events", strings.NewReader(`{"type":"play","position":12.5}`))
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	rec := httptest.NewRecorder()
	newAnalyticsRouter(mock).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	// The insert runs off the request path.
	deadline := time.Now().Add(2 * time.Second)
	for mock.ExpectationsWereMet() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("insert never happened: %v", mock.ExpectationsWereMet())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecordEvent_UnknownType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	defer mock.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/share/tok-1/events", strings.NewReader(`{"type":"rewind","position":1}`))
	rec := httptest.NewRecorder()
	newAnalyticsRouter(mock).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestRecordEvent_NegativePosition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	defer mock.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/share/tok-1/events", strings.NewReader(`{"type":"seek","position":-3}`))
	rec := httptest.NewRecorder()
	newAnalyticsRouter(mock).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestRecordEvent_UnknownShareToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id FROM assets`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	req := httptest.NewRequest(http.MethodPost, "/api/share/nope/events", strings.NewReader(`{"type":"play","position":0}`))
	rec := httptest.NewRecorder()
	newAnalyticsRouter(mock).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestParseUserAgent(t *testing.T) {
	browser, device := parseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	if browser != "Safari" {
		t.Errorf("expected Safari, got %q", browser)
	}
	if device != "mobile" {
		t.Errorf("expected mobile, got %q", device)
	}

	_, device = parseUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	if device != "bot" {
		t.Errorf("expected bot, got %q", device)
	}

	browser, device = parseUserAgent("")
	if browser != "" || device != "" {
		t.Errorf("expected empty results for empty agent, got %q/%q", browser, device)
	}
}

func TestViewerHash_StableAndDistinct(t *testing.T) {
	a := viewerHash("10.0.0.1", "agent-a")
	if a != viewerHash("10.0.0.1", "agent-a") {
		t.Error("expected stable hash for same viewer")
	}
	if a == viewerHash("10.0.0.2", "agent-a") {
		t.Error("expected distinct hash for different IP")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Errorf("expected remote addr host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Errorf("expected first forwarded hop, got %q", got)
	}
}

func TestStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("asset-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM playback_events WHERE asset_id`).
		WithArgs("asset-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"plays", "viewers", "today", "completions"}).
			AddRow(int64(42), int64(17), int64(3), int64(9)))
	mock.ExpectQuery(`SELECT browser, COUNT`).
		WithArgs("asset-1").
		WillReturnRows(pgxmock.NewRows([]string{"browser", "count"}).
			AddRow("Chrome", int64(30)).AddRow("Safari", int64(10)))
	mock.ExpectQuery(`SELECT device, COUNT`).
		WithArgs("asset-1").
		WillReturnRows(pgxmock.NewRows([]string{"device", "count"}).AddRow("desktop", int64(40)))
	mock.ExpectQuery(`SELECT country, COUNT`).
		WithArgs("asset-1").
		WillReturnRows(pgxmock.NewRows([]string{"country", "count"}))

	req := httptest.NewRequest(http.MethodGet, "/api/assets/asset-1/stats", nil)
	rec := httptest.NewRecorder()
	newAnalyticsRouter(mock).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary.TotalPlays != 42 || resp.Summary.UniqueViewers != 17 {
		t.Errorf("unexpected summary: %+v", resp.Summary)
	}
	if len(resp.Browsers) != 2 || resp.Browsers[0].Percentage != 75 {
		t.Errorf("unexpected browser breakdown: %+v", resp.Browsers)
	}
	if len(resp.Countries) != 0 {
		t.Errorf("expected empty countries, got %+v", resp.Countries)
	}
}

func TestStats_UnknownAsset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	req := httptest.NewRequest(http.MethodGet, "/api/assets/missing/stats", nil)
	rec := httptest.NewRecorder()
	newAnalyticsRouter(mock).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

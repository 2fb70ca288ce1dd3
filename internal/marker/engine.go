package marker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// userMarkerSpan is the initial length of a marker dropped at the
	// playhead.
	userMarkerSpan = 5.0

	defaultSettleDelay = 300 * time.Millisecond
	defaultSaveDelay   = 150 * time.Millisecond
	storeTimeout       = 5 * time.Second
)

type Config struct {
	AssetID string
	Lane    Lane
	Store   Store
	// FPS is the asset's resolved frame rate, used when deriving intervals
	// from clip timecodes.
	FPS    float64
	Policy DerivePolicy
	Logger *slog.Logger
	// SettleDelay is how long the reset guard suppresses lane change
	// notifications after a programmatic interval reset.
	SettleDelay time.Duration
	// SaveDelay batches persistence writes so they never sit on the
	// playback path. Zero means write synchronously.
	SaveDelay time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

// Engine is the single source of truth for an asset view's markers. It keeps
// three representations consistent: the in-memory set, the timeline lane's
// marker objects (an owned id-to-handle map), and the persisted store.
type Engine struct {
	mu      sync.Mutex
	assetID string
	lane    Lane
	store   Store
	fps     float64
	policy  DerivePolicy
	log     *slog.Logger
	now     func() time.Time

	markers       map[string]*Marker
	handles       map[string]Handle
	cancels       map[string]func()
	overrides     map[string]Override
	nameOverrides map[string]string
	sources       map[string]Clip
	shown         map[string]bool

	// resetGuard suppresses the lane's change notification for ids the
	// engine itself just rewrote, so a programmatic reset is not re-recorded
	// as a user edit.
	resetGuard map[string]struct{}

	created      bool
	retriesLeft  int
	showUser     bool
	showSemantic bool
	threshold    float64

	settleDelay    time.Duration
	saveDelay      time.Duration
	saveTimer      *time.Timer
	retryTimer     *time.Timer
	dirtyUsers     bool
	dirtyOverrides bool
	closed         bool
}

func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	if cfg.Policy.MaxRetries == 0 {
		cfg.Policy = DefaultDerivePolicy()
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		assetID:       cfg.AssetID,
		lane:          cfg.Lane,
		store:         cfg.Store,
		fps:           cfg.FPS,
		policy:        cfg.Policy,
		log:           cfg.Logger.With("asset_id", cfg.AssetID),
		now:           cfg.Now,
		markers:       make(map[string]*Marker),
		handles:       make(map[string]Handle),
		cancels:       make(map[string]func()),
		overrides:     make(map[string]Override),
		nameOverrides: make(map[string]string),
		sources:       make(map[string]Clip),
		shown:         make(map[string]bool),
		resetGuard:    make(map[string]struct{}),
		retriesLeft:   cfg.Policy.MaxRetries,
		showUser:      true,
		showSemantic:  true,
		threshold:     DefaultThreshold,
		settleDelay:   cfg.SettleDelay,
		saveDelay:     cfg.SaveDelay,
	}
}

// Load pulls the persisted user markers, semantic overrides and global
// threshold into memory. Store failures downgrade to empty state with a log
// line; Load itself never fails.
func (e *Engine) Load(ctx context.Context) {
	users, err := e.store.LoadUserMarkers(ctx, e.assetID)
	if err != nil {
		e.log.Warn("markers: load user markers failed, starting empty", "error", err)
		users = nil
	}
	overrides, err := e.store.LoadOverrides(ctx, e.assetID)
	if err != nil {
		e.log.Warn("markers: load overrides failed, starting empty", "error", err)
		overrides = nil
	}
	threshold, err := e.store.Threshold(ctx)
	if err != nil {
		e.log.Warn("markers: load threshold failed, using default", "error", err)
		threshold = DefaultThreshold
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range users {
		m := users[i]
		if !m.Time.Valid() {
			e.log.Warn("markers: dropping persisted marker with invalid interval", "marker_id", m.ID)
			continue
		}
		m.Origin = OriginUser
		e.markers[m.ID] = &m
		e.shown[m.ID] = true
	}
	if overrides != nil {
		e.overrides = overrides
	}
	e.threshold = threshold
	e.reconcileLaneLocked()
}

// DeriveFromClips runs the one-shot semantic derivation pass. Re-renders may
// call it repeatedly; only the first call per asset view does anything. When
// the lane is not ready yet it retries on a fixed delay up to the policy's
// ceiling, then gives up and logs.
func (e *Engine) DeriveFromClips(clips []Clip) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.created || e.closed {
		return
	}
	e.created = true
	e.deriveLocked(clips)
}

func (e *Engine) deriveLocked(clips []Clip) {
	if !e.lane.Ready() {
		if e.retriesLeft <= 0 {
			e.log.Error("markers: timeline lane never became ready, semantic markers disabled")
			return
		}
		e.retriesLeft--
		e.retryTimer = time.AfterFunc(e.policy.RetryDelay, func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.closed {
				return
			}
			e.deriveLocked(clips)
		})
		return
	}

	candidates := selectClips(clips, e.policy, e.fps)
	for i, c := range candidates {
		id := semanticID(c.time, e.fps, i)
		if _, exists := e.markers[id]; exists {
			continue
		}
		score := c.score
		m := &Marker{
			ID:        id,
			Name:      fmt.Sprintf("Clip %.0f%%", score*100),
			Time:      c.time,
			Style:     Style{Color: RandomColor()},
			Origin:    OriginSemantic,
			Score:     &score,
			CreatedAt: e.now(),
		}
		if ov, ok := e.overrides[id]; ok && ov.Time != nil && ov.Time.Valid() {
			m.Time = *ov.Time
		}
		if name, ok := e.nameOverrides[id]; ok {
			m.Name = name
		}
		e.markers[id] = m
		e.sources[id] = c.clip
		e.shown[id] = true
	}
	e.reconcileLaneLocked()
	e.log.Info("markers: derived semantic markers", "count", len(candidates))
}

// AddUserMarker drops a marker spanning five seconds from the playhead.
func (e *Engine) AddUserMarker(currentTime float64) *Marker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	count := e.userCountLocked()
	now := e.now()
	m := &Marker{
		ID:        fmt.Sprintf("usr:%d:%d", now.UnixMilli(), count),
		Name:      fmt.Sprintf("Marker %d", count+1),
		Time:      TimeObservation{Start: currentTime, End: currentTime + userMarkerSpan},
		Style:     Style{Color: RandomColor()},
		Origin:    OriginUser,
		CreatedAt: now,
	}
	e.markers[m.ID] = m
	e.shown[m.ID] = true
	e.attachLocked(m)
	e.scheduleSaveLocked(true, false)
	return m
}

// UpdateMarkerTime mutates one endpoint of a marker's interval. An edit that
// would leave start >= end is rejected without touching any store.
func (e *Engine) UpdateMarkerTime(id, field string, seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markers[id]
	if !ok {
		return fmt.Errorf("marker %s not found", id)
	}

	updated := m.Time
	switch field {
	case "start":
		updated.Start = seconds
	case "end":
		updated.End = seconds
	default:
		return fmt.Errorf("unknown interval field %q", field)
	}
	if !updated.Valid() {
		e.log.Warn("markers: rejecting interval edit, start must precede end",
			"marker_id", id, "start", updated.Start, "end", updated.End)
		return fmt.Errorf("invalid interval [%v, %v]", updated.Start, updated.End)
	}

	m.Time = updated
	e.pushToLaneLocked(id, updated)
	e.recordMutationLocked(m)
	return nil
}

// RenameMarker relabels a marker. User marker names live in the snapshot;
// semantic names are kept as an in-memory override only.
func (e *Engine) RenameMarker(id, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markers[id]
	if !ok {
		return fmt.Errorf("marker %s not found", id)
	}
	m.Name = name
	if m.Origin == OriginUser {
		e.scheduleSaveLocked(true, false)
	} else {
		e.nameOverrides[id] = name
	}
	return nil
}

// ResetSemanticMarker discards a semantic marker's stored override and
// recomputes its interval from the original source clip. The lane's own
// change notification for this rewrite is suppressed so the reset is not
// re-recorded as an edit.
func (e *Engine) ResetSemanticMarker(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markers[id]
	if !ok || m.Origin != OriginSemantic {
		return fmt.Errorf("semantic marker %s not found", id)
	}
	clip, ok := e.sources[id]
	if !ok {
		return fmt.Errorf("semantic marker %s has no source clip", id)
	}
	original, err := clip.ResolveInterval(e.fps)
	if err != nil {
		return fmt.Errorf("recompute interval: %w", err)
	}

	e.resetGuard[id] = struct{}{}
	m.Time = original
	e.pushToLaneLocked(id, original)
	delete(e.overrides, id)
	e.scheduleSaveLocked(false, true)

	time.AfterFunc(e.settleDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.resetGuard, id)
	})
	return nil
}

// DeleteMarker removes a marker from the lane, the in-memory set and the
// name-override map. Deleting the last user marker clears the persisted
// snapshot outright instead of saving an empty list.
func (e *Engine) DeleteMarker(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markers[id]
	if !ok {
		return
	}
	e.detachLocked(id)
	delete(e.markers, id)
	delete(e.nameOverrides, id)
	delete(e.shown, id)
	delete(e.sources, id)
	switch m.Origin {
	case OriginUser:
		e.scheduleSaveLocked(true, false)
	case OriginSemantic:
		if _, had := e.overrides[id]; had {
			delete(e.overrides, id)
			e.scheduleSaveLocked(false, true)
		}
	}
}

// SetVisibility toggles a single marker's show/hide flag. Semantic markers
// additionally stay subject to the confidence threshold.
func (e *Engine) SetVisibility(id string, visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markers[id]; !ok {
		return
	}
	e.shown[id] = visible
	e.reconcileLaneLocked()
}

// SetShowUser and SetShowSemantic flip the per-origin display toggles.
func (e *Engine) SetShowUser(show bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.showUser = show
	e.reconcileLaneLocked()
}

func (e *Engine) SetShowSemantic(show bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.showSemantic = show
	e.reconcileLaneLocked()
}

// ApplyThreshold sets the global confidence threshold, persists it, and
// walks every known marker adding or removing it from the lane to match.
func (e *Engine) ApplyThreshold(threshold float64) {
	e.mu.Lock()
	e.threshold = threshold
	e.reconcileLaneLocked()
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.store.SetThreshold(ctx, threshold); err != nil {
		e.log.Warn("markers: persist threshold failed", "error", err)
	}
}

func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// Markers returns a display-ordered copy of the in-memory set.
func (e *Engine) Markers() []Marker {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Marker, 0, len(e.markers))
	for _, m := range e.markers {
		out = append(out, *m)
	}
	SortForDisplay(out)
	return out
}

// Visible reports a marker's effective visibility.
func (e *Engine) Visible(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markers[id]
	if !ok {
		return false
	}
	return e.visibleLocked(m)
}

// Close tears down subscriptions and timers and flushes any pending writes.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.saveTimer != nil {
		e.saveTimer.Stop()
	}
	if e.retryTimer != nil {
		e.retryTimer.Stop()
	}
	for id, cancel := range e.cancels {
		cancel()
		delete(e.cancels, id)
	}
	e.flushLocked()
}

func (e *Engine) userCountLocked() int {
	n := 0
	for _, m := range e.markers {
		if m.Origin == OriginUser {
			n++
		}
	}
	return n
}

func (e *Engine) visibleLocked(m *Marker) bool {
	if !e.shown[m.ID] {
		return false
	}
	if m.Origin == OriginUser {
		return e.showUser
	}
	return e.showSemantic && score(*m) >= e.threshold
}

// reconcileLaneLocked is the idempotent "apply to widget" projection: every
// marker that should be visible gets a lane object, every one that should
// not is removed. Already-present and already-absent are non-errors.
func (e *Engine) reconcileLaneLocked() {
	for id, m := range e.markers {
		if e.visibleLocked(m) {
			e.attachLocked(m)
		} else if _, ok := e.handles[id]; ok {
			e.detachLocked(id)
		}
	}
}

func (e *Engine) attachLocked(m *Marker) {
	if _, ok := e.handles[m.ID]; ok {
		return
	}
	h, err := e.lane.AddMarker(*m)
	if err != nil {
		e.log.Warn("markers: add to lane failed", "marker_id", m.ID, "error", err)
		return
	}
	id := m.ID
	e.handles[id] = h
	e.cancels[id] = h.OnChange(func(t TimeObservation) {
		e.onLaneChange(id, t)
	})
}

func (e *Engine) detachLocked(id string) {
	if cancel, ok := e.cancels[id]; ok {
		cancel()
		delete(e.cancels, id)
	}
	delete(e.handles, id)
	if err := e.lane.RemoveMarker(id); err != nil {
		e.log.Warn("markers: remove from lane failed", "marker_id", id, "error", err)
	}
}

func (e *Engine) pushToLaneLocked(id string, t TimeObservation) {
	h, ok := e.handles[id]
	if !ok {
		return
	}
	if err := h.SetTimeObservation(t); err != nil {
		e.log.Warn("markers: push interval to lane failed", "marker_id", id, "error", err)
	}
}

// onLaneChange receives widget-originated edits. Per-marker failures are
// contained here so one disposed marker never disturbs its siblings.
func (e *Engine) onLaneChange(id string, t TimeObservation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if _, guarded := e.resetGuard[id]; guarded {
		return
	}
	m, ok := e.markers[id]
	if !ok {
		return
	}
	if !t.Valid() {
		e.log.Warn("markers: ignoring lane edit with invalid interval",
			"marker_id", id, "start", t.Start, "end", t.End)
		return
	}
	m.Time = t
	e.recordMutationLocked(m)
}

// recordMutationLocked routes an interval change to the right persisted
// collection: the user snapshot, or the semantic override map.
func (e *Engine) recordMutationLocked(m *Marker) {
	switch m.Origin {
	case OriginUser:
		e.scheduleSaveLocked(true, false)
	case OriginSemantic:
		t := m.Time
		e.overrides[m.ID] = Override{Time: &t}
		e.scheduleSaveLocked(false, true)
	}
}

func (e *Engine) scheduleSaveLocked(users, overrides bool) {
	e.dirtyUsers = e.dirtyUsers || users
	e.dirtyOverrides = e.dirtyOverrides || overrides
	if e.saveDelay <= 0 {
		e.flushLocked()
		return
	}
	if e.saveTimer == nil {
		e.saveTimer = time.AfterFunc(e.saveDelay, func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.flushLocked()
		})
		return
	}
	e.saveTimer.Reset(e.saveDelay)
}

// flushLocked writes dirty collections through to the store. Failures are
// logged and dropped: persistence is best-effort by design.
func (e *Engine) flushLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if e.dirtyUsers {
		e.dirtyUsers = false
		snapshot := make([]Marker, 0)
		for _, m := range e.markers {
			if m.Origin == OriginUser {
				snapshot = append(snapshot, *m)
			}
		}
		SortForDisplay(snapshot)
		if len(snapshot) == 0 {
			if err := e.store.ClearUserMarkers(ctx, e.assetID); err != nil {
				e.log.Warn("markers: clear user snapshot failed", "error", err)
			}
		} else {
			if err := e.store.SaveUserMarkers(ctx, e.assetID, snapshot); err != nil {
				e.log.Warn("markers: save user snapshot failed", "error", err)
			}
		}
	}

	if e.dirtyOverrides {
		e.dirtyOverrides = false
		overrides := make(map[string]Override, len(e.overrides))
		for id, ov := range e.overrides {
			overrides[id] = ov
		}
		if err := e.store.SaveOverrides(ctx, e.assetID, overrides); err != nil {
			e.log.Warn("markers: save overrides failed", "error", err)
		}
	}
}

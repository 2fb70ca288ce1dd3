// Package transport layers shuttle, jog and frame-step control over a video
// player's primitive transport operations. Native players cannot play in
// reverse, so negative shuttle speeds are simulated with a timed sequence of
// backward frame seeks behind the same interface as forward playback.
package transport

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Player is the underlying video element. A single-frame seek requires the
// player to be paused first.
type Player interface {
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetRate(rate float64) error
	Position() float64
	Duration() float64
	Volume() float64
	SetVolume(v float64) error
	Muted() bool
	SetMuted(muted bool) error
	ToggleFullscreen() error
}

// Cue is a marker position used for next/previous navigation, usually fed
// from the timeline lane's current marker set.
type Cue struct {
	ID    string
	Start float64
}

// SpeedLadder is the discrete shuttle ladder accepted by SetSpeed. The
// sub-1x entries are jog speeds reached from the on-screen shuttle wheel;
// the J/L keys bump along bumpLadder, which skips them.
var SpeedLadder = []float64{-16, -8, -4, -2, -1, -0.5, -0.25, 0, 0.25, 0.5, 1, 2, 4, 8, 16}

var bumpLadder = []float64{-16, -8, -4, -2, -1, 0, 1, 2, 4, 8, 16}

const (
	defaultDoubleTapWindow = 250 * time.Millisecond
	defaultDebounceWindow  = 150 * time.Millisecond

	seekStep   = 5.0
	volumeStep = 0.1
)

type Config struct {
	Player Player
	// FPS drives frame-step size and the reverse-shuttle tick interval.
	FPS float64
	// Cues supplies the current marker set for next/previous navigation.
	Cues   func() []Cue
	Logger *slog.Logger
	// DoubleTapWindow and DebounceWindow tune the play/pause key behavior;
	// zero values take the defaults.
	DoubleTapWindow time.Duration
	DebounceWindow  time.Duration
	Now             func() time.Time
}

type Controller struct {
	mu     sync.Mutex
	player Player
	fps    float64
	cues   func() []Cue
	log    *slog.Logger
	now    func() time.Time

	speed       float64
	reverseStop chan struct{}

	lastToggle time.Time
	doubleTap  time.Duration
	debounce   time.Duration
}

func NewController(cfg Config) *Controller {
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DoubleTapWindow == 0 {
		cfg.DoubleTapWindow = defaultDoubleTapWindow
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = defaultDebounceWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cues == nil {
		cfg.Cues = func() []Cue { return nil }
	}
	return &Controller{
		player:    cfg.Player,
		fps:       cfg.FPS,
		cues:      cfg.Cues,
		log:       cfg.Logger,
		now:       cfg.Now,
		doubleTap: cfg.DoubleTapWindow,
		debounce:  cfg.DebounceWindow,
	}
}

// Speed returns the current ladder speed. Zero is stopped; negative values
// are reverse-simulated.
func (c *Controller) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// TogglePlay implements the play/pause key. Any active shuttle stops first;
// a second tap inside the double-tap window resets to forward 1x; taps
// inside the debounce window are dropped as duplicate key events.
func (c *Controller) TogglePlay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	since := now.Sub(c.lastToggle)
	if since < c.debounce {
		return
	}
	c.lastToggle = now

	if since < c.doubleTap {
		c.setSpeedLocked(1)
		return
	}
	if c.speed != 0 {
		c.setSpeedLocked(0)
		return
	}
	c.setSpeedLocked(1)
}

// Bump moves one step along the shuttle ladder: +1 toward fast-forward,
// -1 toward fast-reverse.
func (c *Controller) Bump(direction int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := ladderIndex(bumpLadder, c.speed)
	switch {
	case direction > 0 && i < len(bumpLadder)-1:
		i++
	case direction < 0 && i > 0:
		i--
	}
	c.setSpeedLocked(bumpLadder[i])
}

// SetSpeed jumps straight to a shuttle speed, snapped to the nearest ladder
// entry.
func (c *Controller) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSpeedLocked(SpeedLadder[ladderIndex(SpeedLadder, speed)])
}

// StepFrame seeks by n frames. Transport stops first: the player can only
// perform a single-frame seek while paused.
func (c *Controller) StepFrame(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSpeedLocked(0)
	c.seekLocked(c.player.Position() + float64(n)/c.fps)
}

// SeekBy moves the playhead by delta seconds, clamped to the asset bounds.
func (c *Controller) SeekBy(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekLocked(c.player.Position() + delta)
}

// VolumeBy nudges the volume, clamped to [0, 1].
func (c *Controller) VolumeBy(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := math.Min(1, math.Max(0, c.player.Volume()+delta))
	if err := c.player.SetVolume(v); err != nil {
		c.log.Warn("transport: set volume failed", "error", err)
	}
}

func (c *Controller) ToggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.player.SetMuted(!c.player.Muted()); err != nil {
		c.log.Warn("transport: toggle mute failed", "error", err)
	}
}

func (c *Controller) ToggleFullscreen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.player.ToggleFullscreen(); err != nil {
		c.log.Warn("transport: toggle fullscreen failed", "error", err)
	}
}

// NextMarker seeks to the next marker start after the playhead, wrapping to
// the first when none follows.
func (c *Controller) NextMarker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cues := sortedCues(c.cues())
	if len(cues) == 0 {
		return
	}
	pos := c.player.Position()
	for _, cue := range cues {
		if cue.Start > pos+0.01 {
			c.seekLocked(cue.Start)
			return
		}
	}
	c.seekLocked(cues[0].Start)
}

// PreviousMarker seeks to the closest marker start before the playhead,
// wrapping to the last when none precedes.
func (c *Controller) PreviousMarker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cues := sortedCues(c.cues())
	if len(cues) == 0 {
		return
	}
	pos := c.player.Position()
	for i := len(cues) - 1; i >= 0; i-- {
		if cues[i].Start < pos-0.01 {
			c.seekLocked(cues[i].Start)
			return
		}
	}
	c.seekLocked(cues[len(cues)-1].Start)
}

// Close stops any simulated reverse playback.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSpeedLocked(0)
}

func (c *Controller) setSpeedLocked(speed float64) {
	c.stopReverseLocked()
	c.speed = speed

	switch {
	case speed > 0:
		if err := c.player.SetRate(speed); err != nil {
			c.log.Warn("transport: set rate failed", "rate", speed, "error", err)
			return
		}
		if err := c.player.Play(); err != nil {
			c.log.Warn("transport: play failed", "error", err)
		}
	case speed == 0:
		if err := c.player.Pause(); err != nil {
			c.log.Warn("transport: pause failed", "error", err)
		}
		if err := c.player.SetRate(1); err != nil {
			c.log.Warn("transport: reset rate failed", "error", err)
		}
	default:
		if err := c.player.Pause(); err != nil {
			c.log.Warn("transport: pause for reverse failed", "error", err)
		}
		if err := c.player.SetRate(1); err != nil {
			c.log.Warn("transport: reset rate failed", "error", err)
		}
		c.startReverseLocked(speed)
	}
}

// startReverseLocked drives reverse playback with discrete backward seeks.
// Below 1x one frame moves per tick with a stretched interval; at 1x and
// above each tick moves |speed| frames at the frame interval.
func (c *Controller) startReverseLocked(speed float64) {
	mag := -speed
	frame := 1.0 / c.fps
	var interval time.Duration
	var step float64
	if mag < 1 {
		interval = time.Duration(float64(time.Second) * frame / mag)
		step = frame
	} else {
		interval = time.Duration(float64(time.Second) * frame)
		step = frame * mag
	}

	stop := make(chan struct{})
	c.reverseStop = stop
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.reverseTick(step, stop)
			}
		}
	}()
}

func (c *Controller) reverseTick(step float64, stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A stale ticker may fire once after the shuttle changed; ignore it.
	if c.reverseStop != stop {
		return
	}
	next := c.player.Position() - step
	if next <= 0 {
		c.seekLocked(0)
		c.setSpeedLocked(0)
		return
	}
	c.seekLocked(next)
}

func (c *Controller) stopReverseLocked() {
	if c.reverseStop != nil {
		close(c.reverseStop)
		c.reverseStop = nil
	}
}

func (c *Controller) seekLocked(seconds float64) {
	seconds = math.Max(0, seconds)
	if d := c.player.Duration(); d > 0 {
		seconds = math.Min(seconds, d)
	}
	if err := c.player.Seek(seconds); err != nil {
		c.log.Warn("transport: seek failed", "position", seconds, "error", err)
	}
}

func ladderIndex(ladder []float64, speed float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, s := range ladder {
		if d := math.Abs(s - speed); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func sortedCues(cues []Cue) []Cue {
	out := make([]Cue, len(cues))
	copy(out, cues)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

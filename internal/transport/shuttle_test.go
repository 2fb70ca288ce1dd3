package transport

import (
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	mu         sync.Mutex
	playing    bool
	rate       float64
	pos        float64
	dur        float64
	vol        float64
	muted      bool
	fullscreen bool
	seeks      []float64
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{rate: 1, dur: 120, vol: 0.5}
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *fakePlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = seconds
	p.seeks = append(p.seeks, seconds)
	return nil
}

func (p *fakePlayer) SetRate(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	return nil
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dur
}

func (p *fakePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vol
}

func (p *fakePlayer) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vol = v
	return nil
}

func (p *fakePlayer) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *fakePlayer) SetMuted(muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	return nil
}

func (p *fakePlayer) ToggleFullscreen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullscreen = !p.fullscreen
	return nil
}

func (p *fakePlayer) isPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) lastSeek() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seeks) == 0 {
		return 0, false
	}
	return p.seeks[len(p.seeks)-1], true
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestController(t *testing.T, p *fakePlayer, clk *fakeClock) *Controller {
	t.Helper()
	cfg := Config{Player: p, FPS: 25}
	if clk != nil {
		cfg.Now = clk.now
	}
	c := NewController(cfg)
	t.Cleanup(c.Close)
	return c
}

func TestTogglePlay_StartsAndStops(t *testing.T) {
	p := newFakePlayer()
	clk := newFakeClock()
	c := newTestController(t, p, clk)

	c.TogglePlay()
	if c.Speed() != 1 || !p.isPlaying() {
		t.Errorf("expected forward 1x playback, speed %v playing %v", c.Speed(), p.isPlaying())
	}

	clk.advance(2 * time.Second)
	c.TogglePlay()
	if c.Speed() != 0 || p.isPlaying() {
		t.Errorf("expected stopped transport, speed %v playing %v", c.Speed(), p.isPlaying())
	}
}

func TestTogglePlay_DoubleTapResumesForward(t *testing.T) {
	p := newFakePlayer()
	clk := newFakeClock()
	c := newTestController(t, p, clk)

	c.SetSpeed(4)
	clk.advance(2 * time.Second)

	c.TogglePlay()
	if c.Speed() != 0 {
		t.Fatalf("expected first tap to stop the shuttle, got speed %v", c.Speed())
	}

	clk.advance(200 * time.Millisecond)
	c.TogglePlay()
	if c.Speed() != 1 {
		t.Errorf("expected double-tap to resume forward 1x, got speed %v", c.Speed())
	}
}

func TestTogglePlay_DebounceDropsDuplicateEvents(t *testing.T) {
	p := newFakePlayer()
	clk := newFakeClock()
	c := newTestController(t, p, clk)

	c.TogglePlay()
	clk.advance(50 * time.Millisecond)
	c.TogglePlay()
	if c.Speed() != 1 {
		t.Errorf("expected duplicate event dropped, got speed %v", c.Speed())
	}
}

func TestBump_WalksTheLadder(t *testing.T) {
	p := newFakePlayer()
	p.pos = 60
	c := newTestController(t, p, nil)

	c.SetSpeed(1)
	c.Bump(-1)
	c.Bump(-1)
	c.Bump(-1)
	if c.Speed() != -2 {
		t.Fatalf("expected three reverse bumps from 1x to land on -2, got %v", c.Speed())
	}

	c.TogglePlay()
	if c.Speed() != 0 {
		t.Errorf("expected play key to stop the shuttle, got %v", c.Speed())
	}
}

func TestBump_ClampsAtLadderEnds(t *testing.T) {
	p := newFakePlayer()
	p.pos = 60
	c := newTestController(t, p, nil)

	c.SetSpeed(16)
	c.Bump(+1)
	if c.Speed() != 16 {
		t.Errorf("expected top of ladder held, got %v", c.Speed())
	}
	c.SetSpeed(-16)
	c.Bump(-1)
	if c.Speed() != -16 {
		t.Errorf("expected bottom of ladder held, got %v", c.Speed())
	}
}

func TestSetSpeed_SnapsToLadder(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)

	c.SetSpeed(0.3)
	if c.Speed() != 0.25 {
		t.Errorf("expected snap to 0.25, got %v", c.Speed())
	}
	c.SetSpeed(5)
	if c.Speed() != 4 {
		t.Errorf("expected snap to 4, got %v", c.Speed())
	}
	c.SetSpeed(0)
	if c.Speed() != 0 || p.isPlaying() {
		t.Errorf("expected stop, speed %v playing %v", c.Speed(), p.isPlaying())
	}
}

func TestStepFrame_StopsThenSeeks(t *testing.T) {
	p := newFakePlayer()
	p.pos = 10
	c := newTestController(t, p, nil)

	c.SetSpeed(1)
	c.StepFrame(1)
	if p.isPlaying() {
		t.Error("expected transport stopped before the frame seek")
	}
	got, ok := p.lastSeek()
	if !ok || got != 10+1.0/25 {
		t.Errorf("expected seek to 10.04, got %v", got)
	}

	c.StepFrame(-1)
	got, _ = p.lastSeek()
	if got != 10 {
		t.Errorf("expected seek back to 10, got %v", got)
	}
}

func TestSeekBy_ClampsToAssetBounds(t *testing.T) {
	p := newFakePlayer()
	p.pos = 2
	c := newTestController(t, p, nil)

	c.SeekBy(-5)
	if got, _ := p.lastSeek(); got != 0 {
		t.Errorf("expected clamp at 0, got %v", got)
	}

	p.pos = 118
	c.SeekBy(5)
	if got, _ := p.lastSeek(); got != 120 {
		t.Errorf("expected clamp at duration, got %v", got)
	}
}

func TestVolumeBy_Clamps(t *testing.T) {
	p := newFakePlayer()
	p.vol = 0.95
	c := newTestController(t, p, nil)

	c.VolumeBy(0.1)
	if p.Volume() != 1 {
		t.Errorf("expected volume clamped to 1, got %v", p.Volume())
	}
	for i := 0; i < 12; i++ {
		c.VolumeBy(-0.1)
	}
	if p.Volume() != 0 {
		t.Errorf("expected volume clamped to 0, got %v", p.Volume())
	}
}

func TestToggleMute(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)

	c.ToggleMute()
	if !p.Muted() {
		t.Error("expected muted")
	}
	c.ToggleMute()
	if p.Muted() {
		t.Error("expected unmuted")
	}
}

func TestMarkerNavigation(t *testing.T) {
	p := newFakePlayer()
	cues := []Cue{{ID: "b", Start: 20}, {ID: "a", Start: 10}, {ID: "c", Start: 30}}
	c := NewController(Config{Player: p, FPS: 25, Cues: func() []Cue { return cues }})
	defer c.Close()

	p.pos = 15
	c.NextMarker()
	if got, _ := p.lastSeek(); got != 20 {
		t.Errorf("expected next marker at 20, got %v", got)
	}

	p.pos = 20
	c.PreviousMarker()
	if got, _ := p.lastSeek(); got != 10 {
		t.Errorf("expected previous marker at 10, got %v", got)
	}

	p.pos = 35
	c.NextMarker()
	if got, _ := p.lastSeek(); got != 10 {
		t.Errorf("expected wrap to first marker, got %v", got)
	}

	p.pos = 5
	c.PreviousMarker()
	if got, _ := p.lastSeek(); got != 30 {
		t.Errorf("expected wrap to last marker, got %v", got)
	}
}

func TestMarkerNavigation_NoCues(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)

	c.NextMarker()
	c.PreviousMarker()
	if _, ok := p.lastSeek(); ok {
		t.Error("expected no seek without cues")
	}
}

func TestReverseShuttle_MovesBackward(t *testing.T) {
	p := newFakePlayer()
	p.pos = 1.0
	c := NewController(Config{Player: p, FPS: 100})
	defer c.Close()

	c.SetSpeed(-1)
	if p.isPlaying() {
		t.Error("expected player paused while reverse is simulated")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if p.Position() < 0.9 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reverse shuttle never moved the playhead backward")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReverseShuttle_StopsAtZero(t *testing.T) {
	p := newFakePlayer()
	p.pos = 0.05
	c := NewController(Config{Player: p, FPS: 100})
	defer c.Close()

	c.SetSpeed(-8)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if c.Speed() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reverse shuttle never stopped at the asset head")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := p.Position(); got != 0 {
		t.Errorf("expected playhead parked at 0, got %v", got)
	}
}

func TestSetSpeed_ForwardAfterReverseStopsSimulation(t *testing.T) {
	p := newFakePlayer()
	p.pos = 50
	c := NewController(Config{Player: p, FPS: 100})
	defer c.Close()

	c.SetSpeed(-2)
	time.Sleep(30 * time.Millisecond)
	c.SetSpeed(2)
	if !p.isPlaying() {
		t.Error("expected forward playback after leaving reverse")
	}

	pos := p.Position()
	time.Sleep(50 * time.Millisecond)
	if p.Position() < pos {
		t.Error("expected backward seeks to stop once forward playback resumed")
	}
}

package effects

import (
	"encoding/json"
	"testing"
	"time"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/spatial"
)

func testWorld(t *testing.T) (*Manager, *pool.Manager, *spatial.Registry) {
	t.Helper()
	reg := spatial.NewRegistry(spatial.RegistryConfig{}, nil, nil)
	if _, err := reg.CreateZone("main", "", spatial.Vec3{}, spatial.Vec3{X: 10, Y: 5, Z: 10}, 0); err != nil {
		t.Fatalf("create zone: %v", err)
	}
	pools := pool.NewManager(pool.Config{}, reg, nil)
	if _, err := pools.EnsurePool("main", 5, pool.KindBlock, ""); err != nil {
		t.Fatalf("init pool: %v", err)
	}
	return NewManager(DefaultRegistry(), reg, pools, nil), pools, reg
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", newBandWave); err == nil {
		t.Fatal("empty id should be rejected")
	}
	if err := r.Register("x", nil); err == nil {
		t.Fatal("nil factory should be rejected")
	}
	if err := r.Register("x", newBandWave); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("x", newBandWave); err == nil {
		t.Fatal("duplicate id should be rejected")
	}
	if _, err := r.New("nope", nil); err == nil {
		t.Fatal("unknown id should be rejected")
	}
}

func TestBandWave_TickDrivesHeightAndBrightness(t *testing.T) {
	m, pools, _ := testWorld(t)
	if err := m.Attach("main", "band_wave", nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	pools.TakeFrames() // drop the creation delta

	st := audio.State{Bands: [5]float64{1, 0, 0, 0, 0}, Amplitude: 0.5}
	m.TickAll(st, 50*time.Millisecond)

	frames := pools.TakeFrames()
	if len(frames) != 1 || len(frames[0].Entities) != 5 {
		t.Fatalf("tick should touch the whole pool, got %+v", frames)
	}
	// First proxy rides the hot band, the rest stay at base height.
	hot := frames[0].Entities[0]
	cold := frames[0].Entities[1]
	if hot.Pos[1] <= cold.Pos[1] {
		t.Fatalf("hot band should sit higher: %v vs %v", hot.Pos[1], cold.Pos[1])
	}
	if hot.Brightness <= cold.Brightness {
		t.Fatalf("hot band should be brighter: %d vs %d", hot.Brightness, cold.Brightness)
	}
}

func TestBeatFlash_DecaysAfterBeat(t *testing.T) {
	m, pools, _ := testWorld(t)
	cfg, _ := json.Marshal(map[string]any{"decay_ticks": 2})
	if err := m.Attach("main", "beat_flash", cfg); err != nil {
		t.Fatalf("attach: %v", err)
	}
	pools.TakeFrames()

	// No beat yet: no output.
	m.TickAll(audio.State{}, time.Millisecond)
	if frames := pools.TakeFrames(); len(frames) != 0 {
		t.Fatalf("idle flash should emit nothing, got %+v", frames)
	}

	m.OnBeat("main", audio.Beat{Intensity: 1})
	m.TickAll(audio.State{}, time.Millisecond)
	frames := pools.TakeFrames()
	if len(frames) != 1 || !frames[0].Entities[0].Glow {
		t.Fatalf("first tick after beat should glow, got %+v", frames)
	}

	m.TickAll(audio.State{}, time.Millisecond)
	frames = pools.TakeFrames()
	if len(frames) != 1 {
		t.Fatal("decay tick should still update")
	}
	if frames[0].Entities[0].Glow || frames[0].Entities[0].Brightness != 0 {
		t.Fatalf("flash should fully decay, got %+v", frames[0].Entities[0])
	}

	m.TickAll(audio.State{}, time.Millisecond)
	if frames := pools.TakeFrames(); len(frames) != 0 {
		t.Fatal("decayed flash should go quiet")
	}
}

func TestAmpPulse_ScalesWithAmplitude(t *testing.T) {
	m, pools, _ := testWorld(t)
	if err := m.Attach("main", "amp_pulse", nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	pools.TakeFrames()

	m.TickAll(audio.State{Amplitude: 1}, time.Millisecond)
	frames := pools.TakeFrames()
	if len(frames) != 1 {
		t.Fatal("tick should emit scale updates")
	}
	if got := frames[0].Entities[0].Scale; got != [3]float64{2, 2, 2} {
		t.Fatalf("full amplitude should hit max scale, got %v", got)
	}
}

func TestTextTicker_ScrollsAndWraps(t *testing.T) {
	m, pools, _ := testWorld(t)
	if err := m.Attach("main", "text_ticker", nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	pools.TakeFrames()

	m.TickAll(audio.State{}, 100*time.Millisecond)
	first := pools.TakeFrames()
	if len(first) != 1 || len(first[0].Entities) != 5 {
		t.Fatalf("tick should reposition the whole pool, got %+v", first)
	}

	m.TickAll(audio.State{}, 100*time.Millisecond)
	second := pools.TakeFrames()
	if second[0].Entities[0].Pos[0] <= first[0].Entities[0].Pos[0] {
		t.Fatalf("ticker should advance: %v then %v",
			first[0].Entities[0].Pos[0], second[0].Entities[0].Pos[0])
	}
	// Zone is 10 wide, so wrapped positions stay inside [0,10).
	for _, e := range second[0].Entities {
		if e.Pos[0] < 0 || e.Pos[0] >= 10 {
			t.Fatalf("position should stay inside the zone, got %v", e.Pos[0])
		}
	}

	// Loud frames scroll further than quiet ones.
	quiet := second[0].Entities[0].Pos[0] - first[0].Entities[0].Pos[0]
	m.TickAll(audio.State{Amplitude: 1}, 100*time.Millisecond)
	third := pools.TakeFrames()
	loud := third[0].Entities[0].Pos[0] - second[0].Entities[0].Pos[0]
	if loud <= quiet {
		t.Fatalf("amplitude should speed the scroll: quiet %v, loud %v", quiet, loud)
	}
}

func TestManager_DetachZoneStopsTicking(t *testing.T) {
	m, pools, _ := testWorld(t)
	if err := m.Attach("main", "amp_pulse", nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	pools.TakeFrames()

	m.DetachZone("main")
	m.DetachZone("main") // repeat is fine
	m.TickAll(audio.State{Amplitude: 1}, time.Millisecond)
	if frames := pools.TakeFrames(); len(frames) != 0 {
		t.Fatalf("detached zone should not tick, got %+v", frames)
	}
	if zs := m.BoundZones(); len(zs) != 0 {
		t.Fatalf("bound zones = %v", zs)
	}
}

func TestAttach_UnknownZone(t *testing.T) {
	m, _, _ := testWorld(t)
	if err := m.Attach("nowhere", "amp_pulse", nil); err == nil {
		t.Fatal("unknown zone should be rejected")
	}
}

package effects

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/protocol"
	"beatcraft.ai/internal/spatial"
)

func decodeConfig(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("effect config: %w", err)
	}
	return nil
}

// band_wave: spreads the pool across the zone's X axis and drives each
// proxy's height and brightness from its frequency band.

type bandWaveConfig struct {
	// BaseHeight is the resting normalized Y for every proxy.
	BaseHeight float64 `json:"base_height"`
	// Gain scales band energy into normalized height above BaseHeight.
	Gain float64 `json:"gain"`
	// MinBrightness keeps silent bands from going fully dark.
	MinBrightness int `json:"min_brightness"`
}

type bandWave struct {
	cfg bandWaveConfig
	ids []string
}

func newBandWave(raw json.RawMessage) (Effect, error) {
	cfg := bandWaveConfig{BaseHeight: 0.1, Gain: 0.8, MinBrightness: 4}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.BaseHeight = protocol.ClampFloat(cfg.BaseHeight, 0, 1)
	cfg.Gain = protocol.ClampFloat(cfg.Gain, 0, 1)
	cfg.MinBrightness = protocol.ClampInt(cfg.MinBrightness, pool.MinBrightness, pool.MaxBrightness)
	return &bandWave{cfg: cfg}, nil
}

func (e *bandWave) Activate(_ *spatial.Zone, proxyIDs []string) error {
	if len(proxyIDs) == 0 {
		return fmt.Errorf("band_wave needs a non-empty pool")
	}
	e.ids = proxyIDs
	return nil
}

func (e *bandWave) Deactivate()         { e.ids = nil }
func (e *bandWave) OnBeat(_ audio.Beat) {}

func (e *bandWave) Tick(st audio.State, _ time.Duration) []pool.Update {
	n := len(e.ids)
	if n == 0 {
		return nil
	}
	out := make([]pool.Update, 0, n)
	for i, id := range e.ids {
		band := st.Bands[i*protocol.NumBands/n]
		u := float64(i) / float64(max(n-1, 1))
		y := protocol.ClampFloat(e.cfg.BaseHeight+band*e.cfg.Gain, 0, 1)
		pos := [3]float64{u, y, 0.5}
		br := e.cfg.MinBrightness + int(band*float64(pool.MaxBrightness-e.cfg.MinBrightness))
		out = append(out, pool.Update{ID: id, Pos: &pos, Brightness: &br})
	}
	return out
}

// beat_flash: glows the whole pool on a beat and decays back over DecayTicks.

type beatFlashConfig struct {
	DecayTicks int `json:"decay_ticks"`
	// MinIntensity gates weak beats out entirely.
	MinIntensity float64 `json:"min_intensity"`
}

type beatFlash struct {
	cfg       beatFlashConfig
	ids       []string
	remaining int
	intensity float64
}

func newBeatFlash(raw json.RawMessage) (Effect, error) {
	cfg := beatFlashConfig{DecayTicks: 6, MinIntensity: 0.05}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.DecayTicks = protocol.ClampInt(cfg.DecayTicks, 1, 100)
	cfg.MinIntensity = protocol.ClampFloat(cfg.MinIntensity, 0, 1)
	return &beatFlash{cfg: cfg}, nil
}

func (e *beatFlash) Activate(_ *spatial.Zone, proxyIDs []string) error {
	e.ids = proxyIDs
	return nil
}

func (e *beatFlash) Deactivate() { e.ids = nil }

func (e *beatFlash) OnBeat(b audio.Beat) {
	if b.Intensity < e.cfg.MinIntensity {
		return
	}
	e.remaining = e.cfg.DecayTicks
	e.intensity = b.Intensity
}

func (e *beatFlash) Tick(_ audio.State, _ time.Duration) []pool.Update {
	if e.remaining <= 0 || len(e.ids) == 0 {
		return nil
	}
	e.remaining--
	frac := float64(e.remaining) / float64(e.cfg.DecayTicks)
	br := int(math.Round(e.intensity * frac * pool.MaxBrightness))
	glow := e.remaining > 0
	out := make([]pool.Update, 0, len(e.ids))
	for _, id := range e.ids {
		b := br
		g := glow
		out = append(out, pool.Update{ID: id, Brightness: &b, Glow: &g})
	}
	return out
}

// amp_pulse: scales every proxy with the overall amplitude.

type ampPulseConfig struct {
	MinScale float64 `json:"min_scale"`
	MaxScale float64 `json:"max_scale"`
}

type ampPulse struct {
	cfg ampPulseConfig
	ids []string
}

func newAmpPulse(raw json.RawMessage) (Effect, error) {
	cfg := ampPulseConfig{MinScale: 0.5, MaxScale: 2.0}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.MinScale <= 0 {
		cfg.MinScale = 0.5
	}
	if cfg.MaxScale < cfg.MinScale {
		cfg.MaxScale = cfg.MinScale
	}
	return &ampPulse{cfg: cfg}, nil
}

func (e *ampPulse) Activate(_ *spatial.Zone, proxyIDs []string) error {
	e.ids = proxyIDs
	return nil
}

func (e *ampPulse) Deactivate()         { e.ids = nil }
func (e *ampPulse) OnBeat(_ audio.Beat) {}

func (e *ampPulse) Tick(st audio.State, _ time.Duration) []pool.Update {
	if len(e.ids) == 0 {
		return nil
	}
	s := e.cfg.MinScale + st.Amplitude*(e.cfg.MaxScale-e.cfg.MinScale)
	tf := protocol.Transform{Scale: [3]float64{s, s, s}}
	out := make([]pool.Update, 0, len(e.ids))
	for _, id := range e.ids {
		t := tf
		out = append(out, pool.Update{ID: id, Transform: &t})
	}
	return out
}

// text_ticker: scrolls the pool across the zone's X axis, marquee style,
// speeding up with amplitude. Meant for text-kind pools.

type textTickerConfig struct {
	// Speed is full zone widths per second at zero amplitude.
	Speed float64 `json:"speed"`
	// AmpBoost adds further widths per second at full amplitude.
	AmpBoost float64 `json:"amp_boost"`
	Height   float64 `json:"height"`
}

type textTicker struct {
	cfg    textTickerConfig
	ids    []string
	offset float64
}

func newTextTicker(raw json.RawMessage) (Effect, error) {
	cfg := textTickerConfig{Speed: 0.25, AmpBoost: 0.5, Height: 0.5}
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.Speed = protocol.ClampFloat(cfg.Speed, 0, 5)
	cfg.AmpBoost = protocol.ClampFloat(cfg.AmpBoost, 0, 5)
	cfg.Height = protocol.ClampFloat(cfg.Height, 0, 1)
	return &textTicker{cfg: cfg}, nil
}

func (e *textTicker) Activate(_ *spatial.Zone, proxyIDs []string) error {
	if len(proxyIDs) == 0 {
		return fmt.Errorf("text_ticker needs a non-empty pool")
	}
	e.ids = proxyIDs
	e.offset = 0
	return nil
}

func (e *textTicker) Deactivate()         { e.ids = nil }
func (e *textTicker) OnBeat(_ audio.Beat) {}

func (e *textTicker) Tick(st audio.State, dt time.Duration) []pool.Update {
	n := len(e.ids)
	if n == 0 {
		return nil
	}
	speed := e.cfg.Speed + st.Amplitude*e.cfg.AmpBoost
	e.offset = math.Mod(e.offset+speed*dt.Seconds(), 1)
	spacing := 1.0 / float64(n)
	out := make([]pool.Update, 0, n)
	for i, id := range e.ids {
		u := math.Mod(e.offset+float64(i)*spacing, 1)
		pos := [3]float64{u, e.cfg.Height, 0.5}
		out = append(out, pool.Update{ID: id, Pos: &pos})
	}
	return out
}

// Package effects is the closed set of audio-reactive effect variants that
// animate a zone's proxy pool. Effects are constructed through a validated
// factory registry keyed by stable id strings; there is no implementation
// inheritance, only the Effect interface.
package effects

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/spatial"
)

// Effect is one active audio-reactive behavior bound to a single zone.
// Tick runs on the stage-host goroutine once per render tick and returns the
// proxy updates to feed into the pool's batched apply.
type Effect interface {
	Activate(zone *spatial.Zone, proxyIDs []string) error
	Deactivate()
	OnBeat(b audio.Beat)
	Tick(st audio.State, dt time.Duration) []pool.Update
}

// Factory builds an effect from its raw JSON config. Each factory decodes
// into its own typed config struct and resolves defaults once, at load time.
type Factory func(raw json.RawMessage) (Effect, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(id string, f Factory) error {
	if id == "" {
		return fmt.Errorf("effect id must not be empty")
	}
	if f == nil {
		return fmt.Errorf("effect %q: nil factory", id)
	}
	if _, dup := r.factories[id]; dup {
		return fmt.Errorf("effect %q registered twice", id)
	}
	r.factories[id] = f
	return nil
}

func (r *Registry) New(id string, raw json.RawMessage) (Effect, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("unknown effect %q", id)
	}
	return f(raw)
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns the built-in effect set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration of built-ins cannot collide; ignore the nil errors.
	_ = r.Register("band_wave", newBandWave)
	_ = r.Register("beat_flash", newBeatFlash)
	_ = r.Register("amp_pulse", newAmpPulse)
	_ = r.Register("text_ticker", newTextTicker)
	return r
}

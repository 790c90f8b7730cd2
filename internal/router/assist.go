package router

import (
	"strings"
	"sync"
	"time"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/protocol"
)

// AssistConfig tunes the beat-phase assist heuristic. Zero values fall back
// to the documented defaults.
type AssistConfig struct {
	// ConfidenceMin is the tempo confidence floor below which the assist
	// never fires.
	ConfidenceMin float64
	// PhaseEdge is the start of the phase-wrap window; a phase at or past it
	// counts as "about to beat".
	PhaseEdge float64
	// FrameInterval is the expected spacing of audio frames, used to project
	// whether the phase wraps before the next frame arrives.
	FrameInterval time.Duration
	// Cooldown gates assist fires per zone so phase jitter around the wrap
	// boundary cannot synthesize several beats for one real beat.
	Cooldown time.Duration
}

func (c *AssistConfig) normalize() {
	if c.ConfidenceMin <= 0 {
		c.ConfidenceMin = 0.7
	}
	if c.PhaseEdge <= 0 {
		c.PhaseEdge = 0.95
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 50 * time.Millisecond
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 250 * time.Millisecond
	}
}

// Assist compensates for a capture-side beat detector that under-reports:
// when no beat flag arrives but the tempo tracker is confident and the beat
// phase is about to wrap, it synthesizes a projected beat for the effect
// dispatch path.
type Assist struct {
	cfg AssistConfig
	now func() time.Time

	// mu guards lastFired; Consider and Forget run on network goroutines.
	mu        sync.Mutex
	lastFired map[string]time.Time
}

func NewAssist(cfg AssistConfig, now func() time.Time) *Assist {
	cfg.normalize()
	if now == nil {
		now = time.Now
	}
	return &Assist{cfg: cfg, now: now, lastFired: map[string]time.Time{}}
}

// Consider decides whether a projected beat should fire for one zone. The
// snapshot itself is recorded upstream regardless of the outcome; Consider
// only answers the dispatch question.
func (a *Assist) Consider(zone string, st audio.State) (audio.Beat, bool) {
	if st.IsBeat {
		return audio.Beat{}, false
	}
	if st.TempoConfidence < a.cfg.ConfidenceMin || !st.HasBPM {
		return audio.Beat{}, false
	}
	if !a.nearWrap(st) {
		return audio.Beat{}, false
	}
	k := strings.ToLower(strings.TrimSpace(zone))
	now := a.now()
	a.mu.Lock()
	if last, ok := a.lastFired[k]; ok && now.Sub(last) < a.cfg.Cooldown {
		a.mu.Unlock()
		return audio.Beat{}, false
	}
	a.lastFired[k] = now
	a.mu.Unlock()
	return audio.Beat{
		Intensity: protocol.ClampFloat(st.Amplitude, 0, 1),
		Projected: true,
		Frame:     st.Frame,
	}, true
}

// nearWrap is true when the phase sits in the edge window or is projected to
// cross the wrap before the next frame at the current tempo.
func (a *Assist) nearWrap(st audio.State) bool {
	if st.BeatPhase >= a.cfg.PhaseEdge {
		return true
	}
	advance := st.BPM / 60 * a.cfg.FrameInterval.Seconds()
	return st.BeatPhase+advance >= 1
}

// Forget clears the cooldown bookkeeping for a removed zone.
func (a *Assist) Forget(zone string) {
	a.mu.Lock()
	delete(a.lastFired, strings.ToLower(strings.TrimSpace(zone)))
	a.mu.Unlock()
}

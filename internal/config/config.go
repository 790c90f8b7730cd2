// Package config loads the render-host configuration from YAML with sane
// defaults for every knob, so an empty file (or none at all) starts a
// working host.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	ViewerListenAddr string `yaml:"viewer_listen_addr"`
	World            string `yaml:"world"`
	TickRateHz       int    `yaml:"tick_rate_hz"`

	Limits  LimitsSpec  `yaml:"limits"`
	Assist  AssistSpec  `yaml:"assist"`
	Link    LinkSpec    `yaml:"link"`
	Storage StorageSpec `yaml:"storage"`

	Zones  []ZoneSpec  `yaml:"zones,omitempty"`
	Stages []StageSpec `yaml:"stages,omitempty"`
}

type LimitsSpec struct {
	MaxZones            int `yaml:"max_zones"`
	MaxStages           int `yaml:"max_stages"`
	MaxProxiesPerZone   int `yaml:"max_proxies_per_zone"`
	MaxParticlesPerTick int `yaml:"max_particles_per_tick"`
}

type AssistSpec struct {
	ConfidenceMin float64 `yaml:"confidence_min"`
	PhaseEdge     float64 `yaml:"phase_edge"`
	FrameMS       int     `yaml:"frame_ms"`
	CooldownMS    int     `yaml:"cooldown_ms"`
}

type LinkSpec struct {
	URL              string  `yaml:"url,omitempty"`
	BackoffFloorMS   int     `yaml:"backoff_floor_ms"`
	BackoffCeilingMS int     `yaml:"backoff_ceiling_ms"`
	BackoffFactor    float64 `yaml:"backoff_factor"`
	BackoffJitter    float64 `yaml:"backoff_jitter"`
	HeartbeatMS      int     `yaml:"heartbeat_ms"`
	HandshakeMS      int     `yaml:"handshake_ms"`
	MissThreshold    int     `yaml:"miss_threshold"`
	QueueCap         int     `yaml:"queue_cap"`
}

type StorageSpec struct {
	LayoutDB   string `yaml:"layout_db"`
	JournalDir string `yaml:"journal_dir"`
}

// ZoneSpec declares a zone that exists from startup, optionally with effects
// already bound.
type ZoneSpec struct {
	Name     string       `yaml:"name"`
	Origin   [3]float64   `yaml:"origin"`
	Size     [3]float64   `yaml:"size"`
	Rotation float64      `yaml:"rotation"`
	Effects  []EffectSpec `yaml:"effects,omitempty"`
}

type EffectSpec struct {
	ID     string         `yaml:"id"`
	Config map[string]any `yaml:"config,omitempty"`
}

type StageSpec struct {
	Name     string            `yaml:"name"`
	Anchor   [3]float64        `yaml:"anchor"`
	Rotation float64           `yaml:"rotation"`
	Members  []StageMemberSpec `yaml:"members,omitempty"`
}

type StageMemberSpec struct {
	Role   string     `yaml:"role"`
	Zone   string     `yaml:"zone"`
	Offset [3]float64 `yaml:"offset"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddr:       ":8765",
		ViewerListenAddr: ":8766",
		World:            "main",
		TickRateHz:       20,
		Limits: LimitsSpec{
			MaxZones:            64,
			MaxStages:           16,
			MaxProxiesPerZone:   512,
			MaxParticlesPerTick: 200,
		},
		Assist: AssistSpec{
			ConfidenceMin: 0.7,
			PhaseEdge:     0.95,
			FrameMS:       50,
			CooldownMS:    250,
		},
		Link: LinkSpec{
			BackoffFloorMS:   500,
			BackoffCeilingMS: 30000,
			BackoffFactor:    1.5,
			BackoffJitter:    0.1,
			HeartbeatMS:      5000,
			HandshakeMS:      2500,
			MissThreshold:    3,
			QueueCap:         256,
		},
		Storage: StorageSpec{
			LayoutDB:   "data/layout.db",
			JournalDir: "data/journal",
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.World) == "" {
		c.World = "main"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.TickRateHz > 100 {
		c.TickRateHz = 100
	}
	if c.Limits.MaxZones <= 0 {
		c.Limits.MaxZones = 64
	}
	if c.Limits.MaxStages <= 0 {
		c.Limits.MaxStages = 16
	}
	if c.Limits.MaxProxiesPerZone <= 0 {
		c.Limits.MaxProxiesPerZone = 512
	}
	if c.Limits.MaxParticlesPerTick <= 0 {
		c.Limits.MaxParticlesPerTick = 200
	}
	if c.Assist.ConfidenceMin <= 0 || c.Assist.ConfidenceMin > 1 {
		c.Assist.ConfidenceMin = 0.7
	}
	if c.Assist.PhaseEdge <= 0 || c.Assist.PhaseEdge >= 1 {
		c.Assist.PhaseEdge = 0.95
	}
	if c.Assist.FrameMS <= 0 {
		c.Assist.FrameMS = 50
	}
	if c.Assist.CooldownMS <= 0 {
		c.Assist.CooldownMS = 250
	}
	if c.Link.BackoffFloorMS <= 0 {
		c.Link.BackoffFloorMS = 500
	}
	if c.Link.BackoffCeilingMS < c.Link.BackoffFloorMS {
		c.Link.BackoffCeilingMS = 30000
	}
	if c.Link.BackoffFactor <= 1 {
		c.Link.BackoffFactor = 1.5
	}
	if c.Link.BackoffJitter < 0 || c.Link.BackoffJitter >= 1 {
		c.Link.BackoffJitter = 0.1
	}
	if c.Link.HeartbeatMS <= 0 {
		c.Link.HeartbeatMS = 5000
	}
	if c.Link.HandshakeMS <= 0 {
		c.Link.HandshakeMS = 2500
	}
	if c.Link.MissThreshold <= 1 {
		c.Link.MissThreshold = 3
	}
	if c.Link.QueueCap <= 0 {
		c.Link.QueueCap = 256
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	seen := map[string]bool{}
	for _, z := range c.Zones {
		name := strings.ToLower(strings.TrimSpace(z.Name))
		if name == "" {
			return fmt.Errorf("zone name must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate zone: %s", z.Name)
		}
		seen[name] = true
		for _, e := range z.Effects {
			if strings.TrimSpace(e.ID) == "" {
				return fmt.Errorf("zone %s: effect id must not be empty", z.Name)
			}
		}
	}
	stageSeen := map[string]bool{}
	for _, s := range c.Stages {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			return fmt.Errorf("stage name must not be empty")
		}
		if stageSeen[name] {
			return fmt.Errorf("duplicate stage: %s", s.Name)
		}
		stageSeen[name] = true
		for _, m := range s.Members {
			if !seen[strings.ToLower(strings.TrimSpace(m.Zone))] {
				return fmt.Errorf("stage %s: member zone %q not declared", s.Name, m.Zone)
			}
		}
	}
	return nil
}

func (l LinkSpec) BackoffFloor() time.Duration      { return time.Duration(l.BackoffFloorMS) * time.Millisecond }
func (l LinkSpec) BackoffCeiling() time.Duration    { return time.Duration(l.BackoffCeilingMS) * time.Millisecond }
func (l LinkSpec) HeartbeatInterval() time.Duration { return time.Duration(l.HeartbeatMS) * time.Millisecond }
func (l LinkSpec) HandshakeTimeout() time.Duration  { return time.Duration(l.HandshakeMS) * time.Millisecond }

func (a AssistSpec) FrameInterval() time.Duration { return time.Duration(a.FrameMS) * time.Millisecond }
func (a AssistSpec) Cooldown() time.Duration      { return time.Duration(a.CooldownMS) * time.Millisecond }

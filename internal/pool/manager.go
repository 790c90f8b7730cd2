package pool

import (
	"fmt"
	"log"
	"math"
	"strings"

	"beatcraft.ai/internal/protocol"
	"beatcraft.ai/internal/spatial"
)

type Config struct {
	// MaxPerZone is the hard proxy cap per zone. init_pool requests beyond
	// it are clamped with a warning, never refused.
	MaxPerZone int
	// MaxParticlesPerTick bounds buffered particle spawns per zone per tick.
	MaxParticlesPerTick int
}

func (c *Config) normalize() {
	if c.MaxPerZone <= 0 {
		c.MaxPerZone = 512
	}
	if c.MaxParticlesPerTick <= 0 {
		c.MaxParticlesPerTick = 200
	}
}

type zonePool struct {
	zone    string
	kind    Kind
	hint    string
	mode    string
	visible bool

	// proxies keeps creation order so an incremental resize preserves the
	// first N entries; byID is the apply-path index.
	proxies []*Proxy
	byID    map[string]*Proxy

	dirty     map[string]struct{}
	removed   []string
	particles []protocol.ParticleSpawn
}

// Manager owns every zone's proxy pool. Like the registry it is single-owner
// state: every method must run on the stage-host loop goroutine. The loop's
// command queue is the only crossing from network goroutines, and a whole
// batch travels as one command.
type Manager struct {
	cfg Config
	reg *spatial.Registry
	log *log.Logger

	pools map[string]*zonePool // key: lowercase zone name
}

func NewManager(cfg Config, reg *spatial.Registry, logger *log.Logger) *Manager {
	cfg.normalize()
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:   cfg,
		reg:   reg,
		log:   logger,
		pools: map[string]*zonePool{},
	}
}

func key(zone string) string { return strings.ToLower(strings.TrimSpace(zone)) }

// EnsurePool creates or resizes the pool for a zone incrementally: only the
// count delta is created or destroyed, never a full teardown. Proxy creation
// is the most expensive operation in the pipeline; growing a pool by one must
// cost one proxy, not count+1.
func (m *Manager) EnsurePool(zone string, count int, kind Kind, hint string) (total int, err error) {
	z, ok := m.reg.Zone(zone)
	if !ok {
		return 0, fmt.Errorf("zone %q: %w", zone, spatial.ErrNotFound)
	}
	if count < 0 {
		count = 0
	}
	if count > m.cfg.MaxPerZone {
		m.log.Printf("pool %s: requested %d proxies, clamped to cap %d", z.Name, count, m.cfg.MaxPerZone)
		count = m.cfg.MaxPerZone
	}

	p := m.pools[key(zone)]
	if p == nil {
		p = &zonePool{
			zone:    z.Name,
			kind:    kind,
			hint:    hint,
			visible: true,
			byID:    map[string]*Proxy{},
			dirty:   map[string]struct{}{},
		}
		m.pools[key(zone)] = p
	} else {
		if kind != "" && kind != p.kind {
			// A kind change cannot be incremental; rebuild from zero.
			m.destroyRange(p, 0)
			p.kind = kind
		}
		if hint != "" {
			p.hint = hint
		}
	}

	switch {
	case count > len(p.proxies):
		for i := len(p.proxies); i < count; i++ {
			pr := &Proxy{
				ID:         fmt.Sprintf("p%d", i),
				Kind:       p.kind,
				Pos:        z.LocalToWorld(0.5, 0, 0.5),
				Transform:  protocol.Transform{Scale: [3]float64{1, 1, 1}},
				Brightness: MaxBrightness,
			}
			p.proxies = append(p.proxies, pr)
			p.byID[pr.ID] = pr
			p.dirty[pr.ID] = struct{}{}
		}
	case count < len(p.proxies):
		m.destroyRange(p, count)
	}
	return len(p.proxies), nil
}

func (m *Manager) destroyRange(p *zonePool, keep int) {
	for _, pr := range p.proxies[keep:] {
		delete(p.byID, pr.ID)
		delete(p.dirty, pr.ID)
		p.removed = append(p.removed, pr.ID)
	}
	p.proxies = p.proxies[:keep]
}

// Cleanup destroys the zone's pool. Calling it again for the same zone is a
// no-op.
func (m *Manager) Cleanup(zone string) {
	p, ok := m.pools[key(zone)]
	if !ok {
		return
	}
	m.destroyRange(p, 0)
	delete(m.pools, key(zone))
	m.log.Printf("pool %s: cleaned up", p.zone)
}

// ApplyBatch applies many proxy property changes in one pass. Unknown proxy
// IDs are skipped (a concurrent shrink may have removed them); a transform
// identical to the last-applied one is not rewritten; brightness and glow
// clamp to their valid ranges. Property writes are independent per proxy: a
// failure on one entry is logged and the rest of the batch continues.
func (m *Manager) ApplyBatch(zone string, updates []Update) (applied int, err error) {
	z, ok := m.reg.Zone(zone)
	if !ok {
		return 0, fmt.Errorf("zone %q: %w", zone, spatial.ErrNotFound)
	}
	p, ok := m.pools[key(zone)]
	if !ok {
		return 0, fmt.Errorf("pool for zone %q: %w", zone, spatial.ErrNotFound)
	}
	for _, u := range updates {
		pr, ok := p.byID[u.ID]
		if !ok {
			continue
		}
		if err := applyOne(z, pr, u); err != nil {
			m.log.Printf("pool %s: apply %s: %v", p.zone, u.ID, err)
			continue
		}
		p.dirty[pr.ID] = struct{}{}
		applied++
	}
	return applied, nil
}

func applyOne(z *spatial.Zone, pr *Proxy, u Update) error {
	if u.Pos != nil {
		x, y, w := u.Pos[0], u.Pos[1], u.Pos[2]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(w) ||
			math.IsInf(x, 0) || math.IsInf(y, 0) || math.IsInf(w, 0) {
			return fmt.Errorf("non-finite position")
		}
		pr.Pos = z.LocalToWorld(
			protocol.ClampFloat(x, 0, 1),
			protocol.ClampFloat(y, 0, 1),
			protocol.ClampFloat(w, 0, 1),
		)
	}
	if u.Transform != nil && *u.Transform != pr.Transform {
		pr.Transform = *u.Transform
	}
	if u.Brightness != nil {
		pr.Brightness = protocol.ClampInt(*u.Brightness, MinBrightness, MaxBrightness)
	}
	if u.Glow != nil {
		pr.Glow = *u.Glow
	}
	if u.InterpolationTicks != nil {
		pr.InterpolationTicks = protocol.ClampInt(*u.InterpolationTicks, 0, 100)
	}
	return nil
}

// AddParticles buffers particle spawns for the current tick, clamped to the
// per-tick ceiling so one oversized batch cannot stall the frame.
func (m *Manager) AddParticles(zone string, spawns []protocol.ParticleSpawn) {
	p, ok := m.pools[key(zone)]
	if !ok {
		return
	}
	room := m.cfg.MaxParticlesPerTick - len(p.particles)
	if room <= 0 {
		return
	}
	if len(spawns) > room {
		m.log.Printf("pool %s: particle spawns clamped to %d this tick", p.zone, m.cfg.MaxParticlesPerTick)
		spawns = spawns[:room]
	}
	p.particles = append(p.particles, spawns...)
}

func (m *Manager) SetVisible(zone string, visible bool) error {
	p, ok := m.pools[key(zone)]
	if !ok {
		return fmt.Errorf("pool for zone %q: %w", zone, spatial.ErrNotFound)
	}
	if p.visible == visible {
		return nil
	}
	p.visible = visible
	for id := range p.byID {
		p.dirty[id] = struct{}{}
	}
	return nil
}

func (m *Manager) SetRenderMode(zone, mode string) error {
	p, ok := m.pools[key(zone)]
	if !ok {
		return fmt.Errorf("pool for zone %q: %w", zone, spatial.ErrNotFound)
	}
	p.mode = mode
	return nil
}

// Count reports the live proxy count for a zone (0 when no pool exists).
func (m *Manager) Count(zone string) int {
	p, ok := m.pools[key(zone)]
	if !ok {
		return 0
	}
	return len(p.proxies)
}

// IDs returns the proxy IDs for a zone in creation order.
func (m *Manager) IDs(zone string) []string {
	p, ok := m.pools[key(zone)]
	if !ok {
		return nil
	}
	out := make([]string, len(p.proxies))
	for i, pr := range p.proxies {
		out[i] = pr.ID
	}
	return out
}

package effects

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/spatial"
)

// Manager tracks which effects are active on which zones and drives them
// once per render tick. Owned by the stage-host goroutine.
type Manager struct {
	registry *Registry
	zones    *spatial.Registry
	pools    *pool.Manager
	log      *log.Logger

	bound map[string]map[string]Effect // zone key -> effect id -> instance
}

func NewManager(registry *Registry, zones *spatial.Registry, pools *pool.Manager, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		registry: registry,
		zones:    zones,
		pools:    pools,
		log:      logger,
		bound:    map[string]map[string]Effect{},
	}
}

func zkey(zone string) string { return strings.ToLower(strings.TrimSpace(zone)) }

// Attach builds an effect from the registry and activates it on a zone.
// Re-attaching an id replaces the previous instance.
func (m *Manager) Attach(zone, effectID string, raw json.RawMessage) error {
	z, ok := m.zones.Zone(zone)
	if !ok {
		return fmt.Errorf("zone %q: %w", zone, spatial.ErrNotFound)
	}
	e, err := m.registry.New(effectID, raw)
	if err != nil {
		return err
	}
	if err := e.Activate(z, m.pools.IDs(zone)); err != nil {
		return fmt.Errorf("activate %s on %s: %w", effectID, z.Name, err)
	}
	k := zkey(zone)
	if m.bound[k] == nil {
		m.bound[k] = map[string]Effect{}
	}
	if old, ok := m.bound[k][effectID]; ok {
		old.Deactivate()
	}
	m.bound[k][effectID] = e
	return nil
}

func (m *Manager) Detach(zone, effectID string) {
	k := zkey(zone)
	if e, ok := m.bound[k][effectID]; ok {
		e.Deactivate()
		delete(m.bound[k], effectID)
		if len(m.bound[k]) == 0 {
			delete(m.bound, k)
		}
	}
}

// DetachZone deactivates everything bound to a zone. Runs from the zone
// cleanup path, so it must tolerate repeat calls.
func (m *Manager) DetachZone(zone string) {
	k := zkey(zone)
	for _, e := range m.bound[k] {
		e.Deactivate()
	}
	delete(m.bound, k)
}

// OnBeat forwards a beat event to every effect bound to the zone. Real and
// assist-projected beats arrive through this same path.
func (m *Manager) OnBeat(zone string, b audio.Beat) {
	for _, e := range m.bound[zkey(zone)] {
		e.OnBeat(b)
	}
}

// BoundZones lists zones with at least one active effect, sorted.
func (m *Manager) BoundZones() []string {
	out := make([]string, 0, len(m.bound))
	for k := range m.bound {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TickAll advances every bound effect and applies the resulting updates to
// each zone's pool in one batch per zone.
func (m *Manager) TickAll(st audio.State, dt time.Duration) {
	for _, zone := range m.BoundZones() {
		var updates []pool.Update
		for _, id := range sortedIDs(m.bound[zone]) {
			updates = append(updates, m.bound[zone][id].Tick(st, dt)...)
		}
		if len(updates) == 0 {
			continue
		}
		if _, err := m.pools.ApplyBatch(zone, updates); err != nil {
			m.log.Printf("effects: apply %s: %v", zone, err)
		}
	}
}

func sortedIDs(es map[string]Effect) []string {
	out := make([]string, 0, len(es))
	for id := range es {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

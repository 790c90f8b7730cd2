package pool

import (
	"sort"

	"beatcraft.ai/internal/viewerproto"
)

// TakeFrames drains every pool's dirty state into per-zone frame deltas for
// the viewer fan-out. Called once per render tick by the stage host.
func (m *Manager) TakeFrames() []viewerproto.ZoneFrame {
	var out []viewerproto.ZoneFrame
	for _, p := range m.pools {
		if len(p.dirty) == 0 && len(p.removed) == 0 && len(p.particles) == 0 {
			continue
		}
		zf := viewerproto.ZoneFrame{
			Zone:    p.zone,
			Visible: p.visible,
			Mode:    p.mode,
			Hint:    p.hint,
		}
		ids := make([]string, 0, len(p.dirty))
		for id := range p.dirty {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			pr, ok := p.byID[id]
			if !ok {
				continue
			}
			zf.Entities = append(zf.Entities, viewerproto.EntityState{
				ID:         pr.ID,
				Kind:       string(pr.Kind),
				Pos:        pr.Pos.Array(),
				Scale:      pr.Transform.Scale,
				Yaw:        pr.Transform.Yaw,
				Brightness: pr.Brightness,
				Glow:       pr.Glow,
				Interp:     pr.InterpolationTicks,
			})
		}
		// A proxy destroyed and recreated under the same id within one tick
		// ships only as an entity; its state fully supersedes the removal.
		for _, id := range p.removed {
			if _, ok := p.byID[id]; ok {
				continue
			}
			zf.Removed = append(zf.Removed, id)
		}
		for _, sp := range p.particles {
			zf.Particles = append(zf.Particles, viewerproto.ParticleSpawn{
				Effect: sp.Effect,
				Pos:    sp.Pos,
				Count:  sp.Count,
			})
		}
		p.dirty = map[string]struct{}{}
		p.removed = nil
		p.particles = nil
		out = append(out, zf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out
}

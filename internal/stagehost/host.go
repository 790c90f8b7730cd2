// Package stagehost runs the render thread: a single goroutine that owns the
// zone registry, the proxy pools and the effect instances, and that is the
// only writer of any of them. Everything else in the process talks to it
// through the command channel or the audio inbox.
package stagehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/effects"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/protocol"
	"beatcraft.ai/internal/router"
	"beatcraft.ai/internal/spatial"
)

var ErrStopped = errors.New("stage host stopped")

type Config struct {
	TickRateHz int
	World      string
}

func (c *Config) normalize() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.TickRateHz > 100 {
		c.TickRateHz = 100
	}
}

type audioEvent struct {
	state audio.State
	beats []router.ZoneBeat
}

// Host implements the render-thread boundary. All state mutation happens on
// the Run goroutine; public methods marshal onto it and wait for the reply.
type Host struct {
	cfg     Config
	log     *log.Logger
	zones   *spatial.Registry
	pools   *pool.Manager
	effects *effects.Manager
	hub     *Hub

	cmds    chan func()
	audioCh chan audioEvent
	stop    chan struct{}
	done    chan struct{}

	tick      atomic.Uint64
	state     audio.State
	haveState bool

	// active is the lock-free zones-with-pools snapshot read by network
	// goroutines. Holds []string.
	active atomic.Value
}

func New(cfg Config, zones *spatial.Registry, pools *pool.Manager, fx *effects.Manager, hub *Hub, logger *log.Logger) *Host {
	cfg.normalize()
	if logger == nil {
		logger = log.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	h := &Host{
		cfg:     cfg,
		log:     logger,
		zones:   zones,
		pools:   pools,
		effects: fx,
		hub:     hub,
		cmds:    make(chan func(), 64),
		audioCh: make(chan audioEvent, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	h.active.Store([]string{})
	// Pool teardown and effect unbinding must run before the zone record
	// disappears, on the loop goroutine.
	zones.SetZoneRemovedHook(func(name string) {
		fx.DetachZone(name)
		pools.Cleanup(name)
	})
	return h
}

func (h *Host) Hub() *Hub { return h.hub }

// Run owns the tick loop until ctx is canceled or Stop is called. Commands
// execute as they arrive; audio accumulates and is consumed once per tick,
// newest snapshot wins, every beat is delivered.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)
	interval := time.Second / time.Duration(h.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.refreshActive()
	last := time.Now()

	var pendingAudio []audioEvent
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case fn := <-h.cmds:
			fn()
		case ev := <-h.audioCh:
			pendingAudio = append(pendingAudio, ev)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			h.step(pendingAudio, dt)
			pendingAudio = pendingAudio[:0]
		}
	}
}

func (h *Host) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

func (h *Host) step(events []audioEvent, dt time.Duration) {
	tick := h.tick.Add(1)
	for _, ev := range events {
		h.state = ev.state
		h.haveState = true
		for _, zb := range ev.beats {
			h.effects.OnBeat(zb.Zone, zb.Beat)
		}
	}
	// Effects keep ticking on the last snapshot between audio frames so
	// decays finish even when the capture stream stalls.
	if h.haveState {
		h.effects.TickAll(h.state, dt)
	}
	frames := h.pools.TakeFrames()
	h.hub.Broadcast(tick, protocol.Version, frames)
}

// Tick is the last completed tick number; safe from any goroutine.
func (h *Host) Tick() uint64 { return h.tick.Load() }

// submit runs fn on the loop goroutine and waits for it.
func (h *Host) submit(fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case h.cmds <- wrapped:
	case <-h.done:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// refreshActive rebuilds the lock-free active-zone snapshot. Names are
// canonicalized to lower case so a zone bound through both a pool and an
// effect yields a single entry regardless of the caller's casing.
func (h *Host) refreshActive() {
	zones := h.effects.BoundZones()
	seen := make(map[string]bool, len(zones))
	for _, z := range zones {
		seen[z] = true
	}
	for _, z := range h.zones.Zones() {
		if h.pools.Count(z.Name) > 0 {
			seen[strings.ToLower(z.Name)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for z := range seen {
		out = append(out, z)
	}
	sort.Strings(out)
	h.active.Store(out)
}

// ActiveZones is safe to call from any goroutine.
func (h *Host) ActiveZones() []string {
	return h.active.Load().([]string)
}

// ApplyAudio never blocks the caller: when the inbox is full the oldest
// pending event is discarded to make room.
func (h *Host) ApplyAudio(st audio.State, beats []router.ZoneBeat) error {
	ev := audioEvent{state: st, beats: beats}
	for {
		select {
		case <-h.done:
			return ErrStopped
		case h.audioCh <- ev:
			return nil
		default:
		}
		select {
		case <-h.audioCh:
		default:
		}
	}
}

func (h *Host) InitPool(zone string, count int, kind pool.Kind, hint string) (total int, err error) {
	serr := h.submit(func() {
		total, err = h.pools.EnsurePool(zone, count, kind, hint)
		h.refreshActive()
	})
	if serr != nil {
		return 0, serr
	}
	return total, err
}

func (h *Host) ApplyBatch(zone string, updates []pool.Update, particles []protocol.ParticleSpawn) (applied int, err error) {
	serr := h.submit(func() {
		applied, err = h.pools.ApplyBatch(zone, updates)
		if err == nil && len(particles) > 0 {
			h.pools.AddParticles(zone, particles)
		}
	})
	if serr != nil {
		return 0, serr
	}
	return applied, err
}

func (h *Host) CreateZone(rec spatial.ZoneRecord) (protocol.ZoneInfo, error) {
	var (
		info protocol.ZoneInfo
		err  error
	)
	serr := h.submit(func() {
		world := rec.World
		if world == "" {
			world = h.cfg.World
		}
		var z *spatial.Zone
		z, err = h.zones.CreateZone(rec.Name, world, spatial.FromArray(rec.Origin), spatial.FromArray(rec.Size), rec.Rotation)
		if err == nil {
			info = h.zoneInfo(z)
		}
	})
	if serr != nil {
		return protocol.ZoneInfo{}, serr
	}
	return info, err
}

func (h *Host) RemoveZone(name string) error {
	var err error
	serr := h.submit(func() {
		err = h.zones.DeleteZone(name)
		h.refreshActive()
	})
	if serr != nil {
		return serr
	}
	return err
}

func (h *Host) SetZoneConfig(name string, origin, size *[3]float64, rotation *float64) (protocol.ZoneInfo, error) {
	var (
		info protocol.ZoneInfo
		err  error
	)
	serr := h.submit(func() {
		var o, s *spatial.Vec3
		if origin != nil {
			v := spatial.FromArray(*origin)
			o = &v
		}
		if size != nil {
			v := spatial.FromArray(*size)
			s = &v
		}
		var z *spatial.Zone
		z, err = h.zones.SetZoneConfig(name, o, s, rotation)
		if err == nil {
			info = h.zoneInfo(z)
		}
	})
	if serr != nil {
		return protocol.ZoneInfo{}, serr
	}
	return info, err
}

func (h *Host) ZoneInfos() []protocol.ZoneInfo {
	var out []protocol.ZoneInfo
	if err := h.submit(func() {
		zs := h.zones.Zones()
		out = make([]protocol.ZoneInfo, 0, len(zs))
		for _, z := range zs {
			out = append(out, h.zoneInfo(z))
		}
	}); err != nil {
		return nil
	}
	return out
}

func (h *Host) ZoneInfo(name string) (protocol.ZoneInfo, error) {
	var (
		info protocol.ZoneInfo
		err  error
	)
	serr := h.submit(func() {
		z, ok := h.zones.Zone(name)
		if !ok {
			err = fmt.Errorf("zone %q: %w", name, spatial.ErrNotFound)
			return
		}
		info = h.zoneInfo(z)
	})
	if serr != nil {
		return protocol.ZoneInfo{}, serr
	}
	return info, err
}

func (h *Host) CreateStage(rec spatial.StageRecord) error {
	var err error
	serr := h.submit(func() {
		world := rec.World
		if world == "" {
			world = h.cfg.World
		}
		_, err = h.zones.CreateStage(rec.Name, world, spatial.FromArray(rec.Anchor), rec.Rotation, rec.Members)
	})
	if serr != nil {
		return serr
	}
	return err
}

func (h *Host) RemoveStage(name string) error {
	var err error
	serr := h.submit(func() {
		err = h.zones.DeleteStage(name)
		h.refreshActive()
	})
	if serr != nil {
		return serr
	}
	return err
}

func (h *Host) SetRenderMode(zone, mode string) error {
	var err error
	serr := h.submit(func() { err = h.pools.SetRenderMode(zone, mode) })
	if serr != nil {
		return serr
	}
	return err
}

func (h *Host) SetVisible(zone string, visible bool) error {
	var err error
	serr := h.submit(func() { err = h.pools.SetVisible(zone, visible) })
	if serr != nil {
		return serr
	}
	return err
}

// AttachEffect binds an effect instance to a zone. Not a wire operation;
// driven by configuration at startup and by tests.
func (h *Host) AttachEffect(zone, effectID string, raw json.RawMessage) error {
	var err error
	serr := h.submit(func() {
		err = h.effects.Attach(zone, effectID, raw)
		h.refreshActive()
	})
	if serr != nil {
		return serr
	}
	return err
}

func (h *Host) DetachEffect(zone, effectID string) error {
	return h.submit(func() {
		h.effects.Detach(zone, effectID)
		h.refreshActive()
	})
}

func (h *Host) zoneInfo(z *spatial.Zone) protocol.ZoneInfo {
	return protocol.ZoneInfo{
		Name:        z.Name,
		World:       z.World,
		Origin:      z.Origin.Array(),
		Size:        z.Size.Array(),
		Rotation:    z.Rotation,
		EntityCount: h.pools.Count(z.Name),
	}
}

// Package router decodes inbound wire messages, sanitizes their numeric
// payloads, and dispatches them to the stage host. Decoding runs on network
// goroutines; every message crosses into the render thread as at most one
// host submission, and an empty batch crosses not at all.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"beatcraft.ai/internal/audio"
	"beatcraft.ai/internal/pool"
	"beatcraft.ai/internal/protocol"
	"beatcraft.ai/internal/spatial"
)

// ZoneBeat targets one zone's effect-dispatch path with a beat event.
type ZoneBeat struct {
	Zone string
	Beat audio.Beat
}

// Host is the render-thread boundary. Every method marshals onto the stage
// host loop and counts as exactly one handoff.
type Host interface {
	// ApplyAudio publishes a new audio snapshot and delivers beat events to
	// the effect layer. Fire-and-forget: audio has no wire reply.
	ApplyAudio(st audio.State, beats []ZoneBeat) error
	// ActiveZones is a read-only snapshot of zones with live pools; safe to
	// call from network goroutines.
	ActiveZones() []string

	InitPool(zone string, count int, kind pool.Kind, hint string) (total int, err error)
	ApplyBatch(zone string, updates []pool.Update, particles []protocol.ParticleSpawn) (applied int, err error)

	CreateZone(rec spatial.ZoneRecord) (protocol.ZoneInfo, error)
	RemoveZone(name string) error
	SetZoneConfig(name string, origin, size *[3]float64, rotation *float64) (protocol.ZoneInfo, error)
	ZoneInfos() []protocol.ZoneInfo
	ZoneInfo(name string) (protocol.ZoneInfo, error)
	CreateStage(rec spatial.StageRecord) error
	RemoveStage(name string) error
	SetRenderMode(zone, mode string) error
	SetVisible(zone string, visible bool) error
}

// FrameSink receives every accepted audio_state for journaling.
type FrameSink interface {
	Write(v any) error
}

type Router struct {
	host    Host
	assist  *Assist
	journal FrameSink
	log     *log.Logger

	mu    sync.RWMutex
	state audio.State
}

func New(host Host, assist *Assist, journal FrameSink, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	if assist == nil {
		assist = NewAssist(AssistConfig{}, nil)
	}
	return &Router{host: host, assist: assist, journal: journal, log: logger}
}

// State returns the latest accepted audio snapshot.
func (r *Router) State() audio.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Handle decodes and dispatches one wire message. Replies (including every
// structured error) go through reply; a nil reply func drops them, which the
// capture direction uses. Handle never panics on malformed input and never
// returns an error to tear down the connection.
func (r *Router) Handle(msg []byte, reply func(v any)) {
	if reply == nil {
		reply = func(any) {}
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		reply(errReply(protocol.ErrBadRequest, "malformed JSON"))
		return
	}
	if !protocol.IsSupportedVersion(base.V) {
		reply(errReply(protocol.ErrBadVersion, fmt.Sprintf("unsupported protocol version %q", base.V)))
		return
	}

	switch base.Type {
	case protocol.TypeAudioState:
		r.handleAudioState(msg, reply)
	case protocol.TypeBatchUpdate:
		r.handleBatchUpdate(msg, reply)
	case protocol.TypeInitPool:
		r.handleInitPool(msg, reply)
	case protocol.TypeSetZoneConfig:
		r.handleSetZoneConfig(msg, reply)
	case protocol.TypeSetRenderMode:
		r.handleSetRenderMode(msg, reply)
	case protocol.TypeSetVisible:
		r.handleSetVisible(msg, reply)
	case protocol.TypeCreateZone:
		r.handleCreateZone(msg, reply)
	case protocol.TypeRemoveZone:
		r.handleRemoveZone(msg, reply)
	case protocol.TypeListZones:
		reply(protocol.ZonesMsg{Type: protocol.TypeZones, V: protocol.Version, Zones: r.host.ZoneInfos()})
	case protocol.TypeGetZone:
		r.handleGetZone(msg, reply)
	case protocol.TypeCreateStage:
		r.handleCreateStage(msg, reply)
	case protocol.TypeRemoveStage:
		r.handleRemoveStage(msg, reply)
	case protocol.TypePing:
		var ping protocol.PingMsg
		_ = json.Unmarshal(msg, &ping)
		reply(protocol.PongMsg{Type: protocol.TypePong, V: protocol.Version, TS: ping.TS})
	default:
		reply(errReply(protocol.ErrUnknownType, fmt.Sprintf("unknown message type %q", base.Type)))
	}
}

func (r *Router) handleAudioState(msg []byte, reply func(v any)) {
	var m protocol.AudioStateMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "audio_state: "+err.Error()))
		return
	}
	st := audio.FromWire(m)

	// The snapshot is recorded whether or not any beat fires so effect
	// layers can read raw phase and confidence.
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Write(m); err != nil {
			r.log.Printf("journal: %v", err)
		}
	}

	var beats []ZoneBeat
	for _, zone := range r.host.ActiveZones() {
		if st.IsBeat {
			beats = append(beats, ZoneBeat{Zone: zone, Beat: audio.Beat{
				Intensity: st.BeatIntensity,
				Frame:     st.Frame,
			}})
			continue
		}
		if b, ok := r.assist.Consider(zone, st); ok {
			beats = append(beats, ZoneBeat{Zone: zone, Beat: b})
		}
	}
	if err := r.host.ApplyAudio(st, beats); err != nil {
		r.log.Printf("apply audio: %v", err)
	}
}

func (r *Router) handleBatchUpdate(msg []byte, reply func(v any)) {
	var m protocol.BatchUpdateMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "batch_update: "+err.Error()))
		return
	}
	if m.Zone == "" {
		reply(errReply(protocol.ErrBadRequest, "batch_update: missing zone"))
		return
	}
	// An empty batch is a wire-level no-op: zero host handoffs.
	if len(m.Entities) == 0 && len(m.Particles) == 0 {
		reply(protocol.BatchUpdatedMsg{Type: protocol.TypeBatchUpdated, V: protocol.Version, Zone: m.Zone})
		return
	}
	updates := make([]pool.Update, len(m.Entities))
	for i, e := range m.Entities {
		updates[i] = pool.FromWire(e)
	}
	applied, err := r.host.ApplyBatch(m.Zone, updates, m.Particles)
	if err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.BatchUpdatedMsg{Type: protocol.TypeBatchUpdated, V: protocol.Version, Zone: m.Zone, Updated: applied})
}

func (r *Router) handleInitPool(msg []byte, reply func(v any)) {
	var m protocol.InitPoolMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "init_pool: "+err.Error()))
		return
	}
	if m.Zone == "" {
		reply(errReply(protocol.ErrBadRequest, "init_pool: missing zone"))
		return
	}
	kind, err := pool.ParseKind(m.Kind)
	if err != nil {
		reply(errReply(protocol.ErrBadRequest, err.Error()))
		return
	}
	total, err := r.host.InitPool(m.Zone, m.Count, kind, m.Hint)
	if err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.PoolInitializedMsg{
		Type:  protocol.TypePoolInitialized,
		V:     protocol.Version,
		Zone:  m.Zone,
		Count: total,
		Kind:  string(kind),
	})
}

func (r *Router) handleSetZoneConfig(msg []byte, reply func(v any)) {
	var m protocol.SetZoneConfigMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "set_zone_config: "+err.Error()))
		return
	}
	if m.Zone == "" {
		reply(errReply(protocol.ErrBadRequest, "set_zone_config: missing zone"))
		return
	}
	info, err := r.host.SetZoneConfig(m.Zone, m.Origin, m.Size, m.Rotation)
	if err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.ZoneMsg{Type: protocol.TypeZoneConfigUpdated, V: protocol.Version, Zone: info})
}

func (r *Router) handleSetRenderMode(msg []byte, reply func(v any)) {
	var m protocol.SetRenderModeMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "set_render_mode: "+err.Error()))
		return
	}
	if m.Zone == "" {
		reply(errReply(protocol.ErrBadRequest, "set_render_mode: missing zone"))
		return
	}
	if err := r.host.SetRenderMode(m.Zone, m.Mode); err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.AckMsg{Type: protocol.TypeRenderModeUpdated, V: protocol.Version, Name: m.Zone})
}

func (r *Router) handleSetVisible(msg []byte, reply func(v any)) {
	var m protocol.SetVisibleMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "set_visible: "+err.Error()))
		return
	}
	if m.Zone == "" {
		reply(errReply(protocol.ErrBadRequest, "set_visible: missing zone"))
		return
	}
	if err := r.host.SetVisible(m.Zone, m.Visible); err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.VisibilityUpdatedMsg{Type: protocol.TypeVisibilityUpdated, V: protocol.Version, Zone: m.Zone, Visible: m.Visible})
}

func (r *Router) handleCreateZone(msg []byte, reply func(v any)) {
	var m protocol.CreateZoneMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "create_zone: "+err.Error()))
		return
	}
	if m.Name == "" {
		reply(errReply(protocol.ErrBadRequest, "create_zone: missing name"))
		return
	}
	info, err := r.host.CreateZone(spatial.ZoneRecord{
		Name:     m.Name,
		World:    m.World,
		Origin:   m.Origin,
		Size:     m.Size,
		Rotation: m.Rotation,
	})
	if err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.ZoneMsg{Type: protocol.TypeZoneCreated, V: protocol.Version, Zone: info})
}

func (r *Router) handleRemoveZone(msg []byte, reply func(v any)) {
	var m protocol.RemoveZoneMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "remove_zone: "+err.Error()))
		return
	}
	if m.Name == "" {
		reply(errReply(protocol.ErrBadRequest, "remove_zone: missing name"))
		return
	}
	if err := r.host.RemoveZone(m.Name); err != nil {
		reply(hostErr(err))
		return
	}
	r.assist.Forget(m.Name)
	reply(protocol.AckMsg{Type: protocol.TypeZoneRemoved, V: protocol.Version, Name: m.Name})
}

func (r *Router) handleGetZone(msg []byte, reply func(v any)) {
	var m protocol.GetZoneMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "get_zone: "+err.Error()))
		return
	}
	info, err := r.host.ZoneInfo(m.Name)
	if err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.ZoneMsg{Type: protocol.TypeZone, V: protocol.Version, Zone: info})
}

func (r *Router) handleCreateStage(msg []byte, reply func(v any)) {
	var m protocol.CreateStageMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "create_stage: "+err.Error()))
		return
	}
	if m.Name == "" {
		reply(errReply(protocol.ErrBadRequest, "create_stage: missing name"))
		return
	}
	rec := spatial.StageRecord{
		Name:     m.Name,
		World:    m.World,
		Anchor:   m.Anchor,
		Rotation: m.Rotation,
	}
	for _, mem := range m.Members {
		rec.Members = append(rec.Members, spatial.StageMemberRecord{
			Role:   mem.Role,
			Zone:   mem.Zone,
			Offset: mem.Offset,
		})
	}
	if err := r.host.CreateStage(rec); err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.AckMsg{Type: protocol.TypeStageCreated, V: protocol.Version, Name: m.Name})
}

func (r *Router) handleRemoveStage(msg []byte, reply func(v any)) {
	var m protocol.RemoveStageMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		reply(errReply(protocol.ErrBadRequest, "remove_stage: "+err.Error()))
		return
	}
	if m.Name == "" {
		reply(errReply(protocol.ErrBadRequest, "remove_stage: missing name"))
		return
	}
	if err := r.host.RemoveStage(m.Name); err != nil {
		reply(hostErr(err))
		return
	}
	reply(protocol.AckMsg{Type: protocol.TypeStageRemoved, V: protocol.Version, Name: m.Name})
}

func errReply(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, V: protocol.Version, Code: code, Message: message}
}

// hostErr maps host-side failures onto the wire error taxonomy. Unknown
// targets survive the connection as structured replies; nothing here may
// terminate the link.
func hostErr(err error) protocol.ErrorMsg {
	switch {
	case errors.Is(err, spatial.ErrNotFound):
		return errReply(protocol.ErrNotFound, err.Error())
	case errors.Is(err, spatial.ErrExists):
		return errReply(protocol.ErrBadRequest, err.Error())
	case errors.Is(err, spatial.ErrCapacity):
		return errReply(protocol.ErrCapacity, err.Error())
	default:
		return errReply(protocol.ErrBadRequest, err.Error())
	}
}

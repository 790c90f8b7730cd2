package spatial

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrCapacity = errors.New("capacity reached")
)

// ZoneRecord and StageRecord are the persisted layout shapes handed to the
// LayoutStore collaborator.
type ZoneRecord struct {
	Name     string     `json:"name"`
	World    string     `json:"world,omitempty"`
	Origin   [3]float64 `json:"origin"`
	Size     [3]float64 `json:"size"`
	Rotation float64    `json:"rotation"`
}

type StageMemberRecord struct {
	Role   string     `json:"role"`
	Zone   string     `json:"zone"`
	Offset [3]float64 `json:"offset"`
}

type StageRecord struct {
	Name     string              `json:"name"`
	World    string              `json:"world,omitempty"`
	Anchor   [3]float64          `json:"anchor"`
	Rotation float64             `json:"rotation"`
	Members  []StageMemberRecord `json:"members,omitempty"`
}

// LayoutStore is the external key-value collaborator that persists zone and
// stage layout. The registry reads it once at startup (via Restore) and
// writes through on every mutation. Store errors are logged, never fatal:
// the in-memory layout stays authoritative for the running process.
type LayoutStore interface {
	SaveZone(ZoneRecord) error
	DeleteZone(name string) error
	SaveStage(StageRecord) error
	DeleteStage(name string) error
}

type RegistryConfig struct {
	MaxZones  int
	MaxStages int
}

// Registry owns every zone and stage. It is not safe for concurrent use:
// like the rest of the render-host state it must only be touched from the
// stage-host loop goroutine.
type Registry struct {
	cfg   RegistryConfig
	store LayoutStore
	log   *log.Logger

	zones  map[string]*Zone  // key: lowercase name
	stages map[string]*Stage // key: lowercase name

	// onZoneRemoved runs before a zone leaves the registry so its proxy pool
	// can be torn down first. No orphan proxies.
	onZoneRemoved func(name string)
}

func NewRegistry(cfg RegistryConfig, store LayoutStore, logger *log.Logger) *Registry {
	if cfg.MaxZones <= 0 {
		cfg.MaxZones = 64
	}
	if cfg.MaxStages <= 0 {
		cfg.MaxStages = 16
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		cfg:    cfg,
		store:  store,
		log:    logger,
		zones:  map[string]*Zone{},
		stages: map[string]*Stage{},
	}
}

func (r *Registry) SetZoneRemovedHook(fn func(name string)) { r.onZoneRemoved = fn }

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Restore seeds the registry from persisted records without writing back to
// the store. Records that fail validation are skipped with a log line.
func (r *Registry) Restore(zones []ZoneRecord, stages []StageRecord) {
	for _, zr := range zones {
		if key(zr.Name) == "" {
			continue
		}
		z := &Zone{
			ID:       uuid.NewString(),
			Name:     strings.TrimSpace(zr.Name),
			World:    zr.World,
			Origin:   FromArray(zr.Origin),
			Size:     clampSize(FromArray(zr.Size)),
			Rotation: NormalizeDegrees(zr.Rotation),
		}
		r.zones[key(zr.Name)] = z
	}
	for _, sr := range stages {
		if key(sr.Name) == "" {
			continue
		}
		st := &Stage{
			ID:       uuid.NewString(),
			Name:     strings.TrimSpace(sr.Name),
			World:    sr.World,
			Anchor:   FromArray(sr.Anchor),
			Rotation: NormalizeDegrees(sr.Rotation),
			Members:  map[StageRole]StageBinding{},
		}
		for _, m := range sr.Members {
			role, err := ParseRole(m.Role)
			if err != nil {
				r.log.Printf("restore stage %s: %v (member dropped)", sr.Name, err)
				continue
			}
			st.Members[role] = StageBinding{Zone: m.Zone, Offset: FromArray(m.Offset)}
		}
		r.stages[key(sr.Name)] = st
	}
	r.log.Printf("layout restored: %d zones, %d stages", len(r.zones), len(r.stages))
}

func (r *Registry) Zone(name string) (*Zone, bool) {
	z, ok := r.zones[key(name)]
	return z, ok
}

func (r *Registry) Zones() []*Zone {
	out := make([]*Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) CreateZone(name, world string, origin, size Vec3, rotation float64) (*Zone, error) {
	k := key(name)
	if k == "" {
		return nil, fmt.Errorf("zone name must not be empty")
	}
	if _, ok := r.zones[k]; ok {
		return nil, fmt.Errorf("zone %q: %w", name, ErrExists)
	}
	if len(r.zones) >= r.cfg.MaxZones {
		return nil, fmt.Errorf("zone cap (%d): %w", r.cfg.MaxZones, ErrCapacity)
	}
	z := &Zone{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(name),
		World:    world,
		Origin:   origin,
		Size:     clampSize(size),
		Rotation: NormalizeDegrees(rotation),
	}
	r.zones[k] = z
	r.persistZone(z)
	return z, nil
}

// SetZoneConfig applies a partial move/resize/rotate. Nil fields keep the
// current value.
func (r *Registry) SetZoneConfig(name string, origin, size *Vec3, rotation *float64) (*Zone, error) {
	z, ok := r.zones[key(name)]
	if !ok {
		return nil, fmt.Errorf("zone %q: %w", name, ErrNotFound)
	}
	if origin != nil {
		z.Origin = *origin
	}
	if size != nil {
		z.Size = clampSize(*size)
	}
	if rotation != nil {
		z.Rotation = NormalizeDegrees(*rotation)
	}
	r.persistZone(z)
	return z, nil
}

func (r *Registry) DeleteZone(name string) error {
	k := key(name)
	z, ok := r.zones[k]
	if !ok {
		return fmt.Errorf("zone %q: %w", name, ErrNotFound)
	}
	if r.onZoneRemoved != nil {
		r.onZoneRemoved(z.Name)
	}
	delete(r.zones, k)
	// Unbind from any stage that referenced it.
	for _, st := range r.stages {
		for role, b := range st.Members {
			if key(b.Zone) == k {
				delete(st.Members, role)
				r.persistStage(st)
			}
		}
	}
	if r.store != nil {
		if err := r.store.DeleteZone(z.Name); err != nil {
			r.log.Printf("layout store: delete zone %s: %v", z.Name, err)
		}
	}
	return nil
}

func (r *Registry) Stage(name string) (*Stage, bool) {
	s, ok := r.stages[key(name)]
	return s, ok
}

// CreateStage registers a stage and repositions every member zone: member
// offsets are rotated by the stage yaw and translated to the anchor.
func (r *Registry) CreateStage(name, world string, anchor Vec3, rotation float64, members []StageMemberRecord) (*Stage, error) {
	k := key(name)
	if k == "" {
		return nil, fmt.Errorf("stage name must not be empty")
	}
	if _, ok := r.stages[k]; ok {
		return nil, fmt.Errorf("stage %q: %w", name, ErrExists)
	}
	if len(r.stages) >= r.cfg.MaxStages {
		return nil, fmt.Errorf("stage cap (%d): %w", r.cfg.MaxStages, ErrCapacity)
	}
	st := &Stage{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(name),
		World:    world,
		Anchor:   anchor,
		Rotation: NormalizeDegrees(rotation),
		Members:  map[StageRole]StageBinding{},
	}
	for _, m := range members {
		role, err := ParseRole(m.Role)
		if err != nil {
			return nil, err
		}
		if _, dup := st.Members[role]; dup {
			return nil, fmt.Errorf("stage %q: role %s bound twice", name, role)
		}
		z, ok := r.zones[key(m.Zone)]
		if !ok {
			return nil, fmt.Errorf("stage member zone %q: %w", m.Zone, ErrNotFound)
		}
		st.Members[role] = StageBinding{Zone: z.Name, Offset: FromArray(m.Offset)}
		z.Origin = st.PlaceOrigin(FromArray(m.Offset))
		z.Rotation = NormalizeDegrees(z.Rotation + st.Rotation)
		r.persistZone(z)
	}
	r.stages[k] = st
	r.persistStage(st)
	return st, nil
}

// DeleteStage removes the stage and every zone it owns, proxies first.
func (r *Registry) DeleteStage(name string) error {
	k := key(name)
	st, ok := r.stages[k]
	if !ok {
		return fmt.Errorf("stage %q: %w", name, ErrNotFound)
	}
	for _, b := range st.Members {
		if _, ok := r.zones[key(b.Zone)]; ok {
			if err := r.DeleteZone(b.Zone); err != nil {
				r.log.Printf("delete stage %s: zone %s: %v", st.Name, b.Zone, err)
			}
		}
	}
	delete(r.stages, k)
	if r.store != nil {
		if err := r.store.DeleteStage(st.Name); err != nil {
			r.log.Printf("layout store: delete stage %s: %v", st.Name, err)
		}
	}
	return nil
}

func (r *Registry) persistZone(z *Zone) {
	if r.store == nil {
		return
	}
	rec := ZoneRecord{
		Name:     z.Name,
		World:    z.World,
		Origin:   z.Origin.Array(),
		Size:     z.Size.Array(),
		Rotation: z.Rotation,
	}
	if err := r.store.SaveZone(rec); err != nil {
		r.log.Printf("layout store: save zone %s: %v", z.Name, err)
	}
}

func (r *Registry) persistStage(st *Stage) {
	if r.store == nil {
		return
	}
	rec := StageRecord{
		Name:     st.Name,
		World:    st.World,
		Anchor:   st.Anchor.Array(),
		Rotation: st.Rotation,
	}
	for role, b := range st.Members {
		rec.Members = append(rec.Members, StageMemberRecord{
			Role:   string(role),
			Zone:   b.Zone,
			Offset: b.Offset.Array(),
		})
	}
	sort.Slice(rec.Members, func(i, j int) bool { return rec.Members[i].Role < rec.Members[j].Role })
	if err := r.store.SaveStage(rec); err != nil {
		r.log.Printf("layout store: save stage %s: %v", st.Name, err)
	}
}

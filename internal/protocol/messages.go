package protocol

// NumBands is the fixed length of the band energy array. Senders must send
// exactly five values; shorter arrays are zero-padded and longer arrays are
// truncated on ingestion.
const NumBands = 5

// audio_state (capture -> relay -> host)
type AudioStateMsg struct {
	Type          string    `json:"type"`
	V             string    `json:"v,omitempty"`
	Bands         []float64 `json:"bands"`
	Amplitude     float64   `json:"amplitude"`
	IsBeat        bool      `json:"is_beat"`
	BeatIntensity float64   `json:"beat_intensity"`
	BPM           *float64  `json:"bpm,omitempty"`
	// tempo_conf is a legacy alias for tempo_confidence; both populate the
	// same internal value, with tempo_confidence winning when both are set.
	TempoConfidence *float64 `json:"tempo_confidence,omitempty"`
	TempoConf       *float64 `json:"tempo_conf,omitempty"`
	BeatPhase       *float64 `json:"beat_phase,omitempty"`
	Frame           uint64   `json:"frame"`
}

// Transform is the scale/yaw part of a proxy placement. Position travels
// separately so a pattern can move a proxy without resetting its scale.
type Transform struct {
	Scale [3]float64 `json:"scale"`
	Yaw   float64    `json:"yaw"`
}

// EntityUpdate is one entry of a batch_update. Pointer fields are
// apply-if-present: a nil field leaves the proxy's current property alone.
type EntityUpdate struct {
	ID                 string      `json:"id"`
	Pos                *[3]float64 `json:"pos,omitempty"`
	Transform          *Transform  `json:"transform,omitempty"`
	Brightness         *int        `json:"brightness,omitempty"`
	Glow               *bool       `json:"glow,omitempty"`
	InterpolationTicks *int        `json:"interpolation_ticks,omitempty"`
}

// ParticleSpawn rides along in a batch_update for the particle effect layer.
type ParticleSpawn struct {
	Effect string     `json:"effect"`
	Pos    [3]float64 `json:"pos"`
	Count  int        `json:"count"`
}

// batch_update (relay -> host)
type BatchUpdateMsg struct {
	Type      string          `json:"type"`
	V         string          `json:"v,omitempty"`
	Zone      string          `json:"zone"`
	Entities  []EntityUpdate  `json:"entities"`
	Particles []ParticleSpawn `json:"particles,omitempty"`
}

// init_pool (relay -> host)
type InitPoolMsg struct {
	Type  string `json:"type"`
	V     string `json:"v,omitempty"`
	Zone  string `json:"zone"`
	Count int    `json:"count,omitempty"`
	Kind  string `json:"kind,omitempty"`
	// Hint is a free-form material/display hint forwarded to viewers.
	Hint string `json:"hint,omitempty"`
}

// set_zone_config (relay -> host): move/resize/rotate an existing zone.
// Nil fields leave the current value untouched.
type SetZoneConfigMsg struct {
	Type     string      `json:"type"`
	V        string      `json:"v,omitempty"`
	Zone     string      `json:"zone"`
	Origin   *[3]float64 `json:"origin,omitempty"`
	Size     *[3]float64 `json:"size,omitempty"`
	Rotation *float64    `json:"rotation,omitempty"`
}

type SetRenderModeMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	Zone string `json:"zone"`
	Mode string `json:"mode"`
}

type SetVisibleMsg struct {
	Type    string `json:"type"`
	V       string `json:"v,omitempty"`
	Zone    string `json:"zone"`
	Visible bool   `json:"visible"`
}

type CreateZoneMsg struct {
	Type     string     `json:"type"`
	V        string     `json:"v,omitempty"`
	Name     string     `json:"name"`
	World    string     `json:"world,omitempty"`
	Origin   [3]float64 `json:"origin"`
	Size     [3]float64 `json:"size"`
	Rotation float64    `json:"rotation,omitempty"`
}

type RemoveZoneMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	Name string `json:"name"`
}

type ListZonesMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
}

type GetZoneMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	Name string `json:"name"`
}

// StageMember binds an existing zone to a role slot, placed relative to the
// stage anchor.
type StageMember struct {
	Role   string     `json:"role"`
	Zone   string     `json:"zone"`
	Offset [3]float64 `json:"offset,omitempty"`
}

type CreateStageMsg struct {
	Type     string        `json:"type"`
	V        string        `json:"v,omitempty"`
	Name     string        `json:"name"`
	World    string        `json:"world,omitempty"`
	Anchor   [3]float64    `json:"anchor"`
	Rotation float64       `json:"rotation,omitempty"`
	Members  []StageMember `json:"members,omitempty"`
}

type RemoveStageMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	Name string `json:"name"`
}

type PingMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	TS   int64  `json:"ts,omitempty"`
}

// Replies.

type PongMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	TS   int64  `json:"ts,omitempty"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	V       string `json:"v,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type PoolInitializedMsg struct {
	Type  string `json:"type"`
	V     string `json:"v,omitempty"`
	Zone  string `json:"zone"`
	Count int    `json:"count"`
	Kind  string `json:"kind"`
}

type BatchUpdatedMsg struct {
	Type    string `json:"type"`
	V       string `json:"v,omitempty"`
	Zone    string `json:"zone"`
	Updated int    `json:"updated"`
}

type ZoneInfo struct {
	Name        string     `json:"name"`
	World       string     `json:"world,omitempty"`
	Origin      [3]float64 `json:"origin"`
	Size        [3]float64 `json:"size"`
	Rotation    float64    `json:"rotation"`
	EntityCount int        `json:"entity_count"`
}

type ZonesMsg struct {
	Type  string     `json:"type"`
	V     string     `json:"v,omitempty"`
	Zones []ZoneInfo `json:"zones"`
}

type ZoneMsg struct {
	Type string   `json:"type"`
	V    string   `json:"v,omitempty"`
	Zone ZoneInfo `json:"zone"`
}

type AckMsg struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
	Name string `json:"name"`
}

type VisibilityUpdatedMsg struct {
	Type    string `json:"type"`
	V       string `json:"v,omitempty"`
	Zone    string `json:"zone"`
	Visible bool   `json:"visible"`
}

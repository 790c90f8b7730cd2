// Package viewerproto is the wire protocol between the render host and its
// read-only viewers. Viewers subscribe to zones and receive per-tick frame
// deltas; they never mutate host state.
package viewerproto

import "encoding/json"

const Version = "1.0.0"

const (
	TypeSubscribe = "subscribe"
	TypeWelcome   = "welcome"
	TypeFrame     = "frame"
)

type BaseMessage struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// subscribe (viewer -> host). An empty zone filter means all zones.
type SubscribeMsg struct {
	Type        string   `json:"type"`
	V           string   `json:"v,omitempty"`
	Zones       []string `json:"zones,omitempty"`
	MaxEntities int      `json:"max_entities,omitempty"`
}

type WelcomeMsg struct {
	Type      string   `json:"type"`
	V         string   `json:"v,omitempty"`
	SessionID string   `json:"session_id"`
	Tick      uint64   `json:"tick"`
	Zones     []string `json:"zones"`
}

// EntityState is the full renderable state of one proxy as of this frame.
type EntityState struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Pos        [3]float64 `json:"pos"`
	Scale      [3]float64 `json:"scale"`
	Yaw        float64    `json:"yaw"`
	Brightness int        `json:"brightness"`
	Glow       bool       `json:"glow,omitempty"`
	Interp     int        `json:"interp,omitempty"`
}

type ParticleSpawn struct {
	Effect string     `json:"effect"`
	Pos    [3]float64 `json:"pos"`
	Count  int        `json:"count"`
}

// ZoneFrame carries only what changed in one zone since the last frame.
type ZoneFrame struct {
	Zone      string          `json:"zone"`
	Visible   bool            `json:"visible"`
	Mode      string          `json:"mode,omitempty"`
	Hint      string          `json:"hint,omitempty"`
	Entities  []EntityState   `json:"entities,omitempty"`
	Removed   []string        `json:"removed,omitempty"`
	Particles []ParticleSpawn `json:"particles,omitempty"`
}

// frame (host -> viewer), one per render tick that had changes.
type FrameMsg struct {
	Type  string      `json:"type"`
	V     string      `json:"v,omitempty"`
	Tick  uint64      `json:"tick"`
	Zones []ZoneFrame `json:"zones"`
}

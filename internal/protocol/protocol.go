package protocol

import (
	"encoding/json"
	"strings"
)

// Version is the current wire protocol version. Minor versions are
// additive-only; a message with a missing v field is treated as 1.0.0.
const Version = "1.0.0"

// Message types (client -> host).
const (
	TypeAudioState    = "audio_state"
	TypeBatchUpdate   = "batch_update"
	TypeInitPool      = "init_pool"
	TypeSetZoneConfig = "set_zone_config"
	TypeSetRenderMode = "set_render_mode"
	TypeSetVisible    = "set_visible"
	TypeCreateZone    = "create_zone"
	TypeRemoveZone    = "remove_zone"
	TypeListZones     = "list_zones"
	TypeGetZone       = "get_zone"
	TypeCreateStage   = "create_stage"
	TypeRemoveStage   = "remove_stage"
	TypePing          = "ping"
)

// Message types (host -> client).
const (
	TypePong              = "pong"
	TypeError             = "error"
	TypePoolInitialized   = "pool_initialized"
	TypeBatchUpdated      = "batch_updated"
	TypeZones             = "zones"
	TypeZone              = "zone"
	TypeZoneCreated       = "zone_created"
	TypeZoneRemoved       = "zone_removed"
	TypeZoneConfigUpdated = "zone_config_updated"
	TypeStageCreated      = "stage_created"
	TypeStageRemoved      = "stage_removed"
	TypeRenderModeUpdated = "render_mode_updated"
	TypeVisibilityUpdated = "visibility_updated"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
	V    string `json:"v,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsSupportedVersion accepts an empty version (defaulted to 1.0.0) and any
// version sharing the current major. Minors are additive-only, so a newer
// minor never breaks decoding of the fields we know.
func IsSupportedVersion(v string) bool {
	if v == "" {
		return true
	}
	major, _, ok := strings.Cut(v, ".")
	if !ok {
		return false
	}
	curMajor, _, _ := strings.Cut(Version, ".")
	return major == curMajor
}

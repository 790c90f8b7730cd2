package pool

import (
	"fmt"

	"beatcraft.ai/internal/protocol"
	"beatcraft.ai/internal/spatial"
)

// Kind selects the renderable shape a proxy presents to viewers.
type Kind string

const (
	KindBlock Kind = "block"
	KindItem  Kind = "item"
	KindText  Kind = "text"
)

// ParseKind defaults empty input to KindBlock; anything else unknown is an
// error so a typo in init_pool surfaces instead of silently building blocks.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindBlock, nil
	case KindBlock, KindItem, KindText:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown proxy kind %q", s)
	}
}

// Brightness bounds for proxy light level.
const (
	MinBrightness = 0
	MaxBrightness = 15
)

// Proxy is a long-lived renderable mutated in place. It is exclusively owned
// by its zone pool; creation and destruction are pool-managed, never
// per-update.
type Proxy struct {
	ID   string
	Kind Kind

	// Last-applied state. Transform writes are skipped when equal to the
	// previous value so client-side interpolation is never reset mid-flight.
	Pos                spatial.Vec3
	Transform          protocol.Transform
	Brightness         int
	Glow               bool
	InterpolationTicks int
}

// Update is an ephemeral write-only instruction. Nil fields are left
// untouched on the proxy (apply-if-present).
type Update struct {
	ID string
	// Pos is in normalized [0,1]^3 pattern space; the pool maps it through
	// the zone's localToWorld at apply time.
	Pos                *[3]float64
	Transform          *protocol.Transform
	Brightness         *int
	Glow               *bool
	InterpolationTicks *int
}

// FromWire converts a protocol entity update into a pool update.
func FromWire(e protocol.EntityUpdate) Update {
	return Update{
		ID:                 e.ID,
		Pos:                e.Pos,
		Transform:          e.Transform,
		Brightness:         e.Brightness,
		Glow:               e.Glow,
		InterpolationTicks: e.InterpolationTicks,
	}
}

package spatial

// Zone is a rotated, sized bounding volume in world space that hosts a pool
// of render proxies. Rotation is always stored normalized to [0,360) and
// size components are always strictly positive.
type Zone struct {
	ID       string
	Name     string
	World    string
	Origin   Vec3
	Size     Vec3
	Rotation float64 // degrees, yaw-only
}

// LocalToWorld converts normalized pattern coordinates (u,v,w in [0,1]) into
// an absolute world position: scale by size, rotate the X/Z pair by the zone
// yaw, then translate by origin. The scale-before-rotate order is what keeps
// a non-uniform zone's aspect ratio stable under rotation.
func (z *Zone) LocalToWorld(u, v, w float64) Vec3 {
	scaled := Vec3{u * z.Size.X, v * z.Size.Y, w * z.Size.Z}
	return scaled.RotateYaw(z.Rotation).Add(z.Origin)
}

// Contains reports whether p falls inside the zone's bounding box, tested in
// the zone's local unrotated frame. Rotation is intentionally ignored: this
// is a coarse audience-detection approximation, not a collision test, and
// the O(1) axis-aligned check is the documented trade-off.
func (z *Zone) Contains(p Vec3) bool {
	local := p.Sub(z.Origin)
	return local.X >= 0 && local.X <= z.Size.X &&
		local.Y >= 0 && local.Y <= z.Size.Y &&
		local.Z >= 0 && local.Z <= z.Size.Z
}

// clampSize forces every axis to a small positive floor. A zone can never be
// flat or inverted; degenerate sizes would make LocalToWorld collapse.
func clampSize(s Vec3) Vec3 {
	const min = 0.001
	if s.X < min {
		s.X = min
	}
	if s.Y < min {
		s.Y = min
	}
	if s.Z < min {
		s.Z = min
	}
	return s
}

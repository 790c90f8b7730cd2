package spatial

import "fmt"

// StageRole is the fixed set of semantic slots a stage can fill. Each role
// maps to at most one zone per stage.
type StageRole string

const (
	RoleMain       StageRole = "main"
	RoleLeftFlank  StageRole = "left_flank"
	RoleRightFlank StageRole = "right_flank"
	RoleElevated   StageRole = "elevated"
	RolePerimeter  StageRole = "perimeter"
)

var stageRoles = map[StageRole]struct{}{
	RoleMain:       {},
	RoleLeftFlank:  {},
	RoleRightFlank: {},
	RoleElevated:   {},
	RolePerimeter:  {},
}

func ParseRole(s string) (StageRole, error) {
	r := StageRole(s)
	if _, ok := stageRoles[r]; !ok {
		return "", fmt.Errorf("unknown stage role %q", s)
	}
	return r, nil
}

// StageBinding places one member zone relative to the stage anchor.
type StageBinding struct {
	Zone   string
	Offset Vec3
}

// Stage is a semantically-roled group of zones positioned relative to one
// shared anchor. The stage rotation applies uniformly to every member's
// placement offset; member zones keep their own yaw on top of it.
type Stage struct {
	ID       string
	Name     string
	World    string
	Anchor   Vec3
	Rotation float64 // degrees, yaw-only
	Members  map[StageRole]StageBinding
}

// PlaceOrigin computes the world origin for a member offset under the stage
// anchor and rotation.
func (s *Stage) PlaceOrigin(offset Vec3) Vec3 {
	return offset.RotateYaw(s.Rotation).Add(s.Anchor)
}

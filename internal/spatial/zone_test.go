package spatial

import (
	"math"
	"testing"
)

func almostEqual(a, b Vec3) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

func TestLocalToWorld_Corners(t *testing.T) {
	z := &Zone{
		Name:     "main",
		Origin:   Vec3{10, 64, -20},
		Size:     Vec3{8, 4, 6},
		Rotation: 0,
	}
	if got := z.LocalToWorld(0, 0, 0); !almostEqual(got, z.Origin) {
		t.Fatalf("origin corner = %+v, want %+v", got, z.Origin)
	}
	want := z.Origin.Add(Vec3{8, 4, 6})
	if got := z.LocalToWorld(1, 1, 1); !almostEqual(got, want) {
		t.Fatalf("far corner = %+v, want %+v", got, want)
	}
}

func TestLocalToWorld_RotatedFarCorner(t *testing.T) {
	z := &Zone{
		Origin:   Vec3{0, 0, 0},
		Size:     Vec3{2, 1, 4},
		Rotation: 90,
	}
	// Far corner equals origin plus the rotated size vector.
	want := Vec3{2, 1, 4}.RotateYaw(90).Add(z.Origin)
	if got := z.LocalToWorld(1, 1, 1); !almostEqual(got, want) {
		t.Fatalf("rotated far corner = %+v, want %+v", got, want)
	}
	// The origin corner is rotation-invariant.
	if got := z.LocalToWorld(0, 0, 0); !almostEqual(got, z.Origin) {
		t.Fatalf("rotated origin corner = %+v", got)
	}
}

func TestLocalToWorld_RotationPeriodicity(t *testing.T) {
	for _, r := range []float64{0, 37.5, 90, 180, 271, 359.9, -45} {
		a := &Zone{Origin: Vec3{5, 0, 5}, Size: Vec3{3, 2, 7}, Rotation: NormalizeDegrees(r)}
		b := &Zone{Origin: Vec3{5, 0, 5}, Size: Vec3{3, 2, 7}, Rotation: NormalizeDegrees(r + 360)}
		pa := a.LocalToWorld(0.3, 0.6, 0.9)
		pb := b.LocalToWorld(0.3, 0.6, 0.9)
		if !almostEqual(pa, pb) {
			t.Fatalf("rotation %v vs %v: %+v != %+v", r, r+360, pa, pb)
		}
	}
}

func TestScaleBeforeRotate(t *testing.T) {
	// Under a non-uniform size, scaling after rotation would distort the
	// zone's aspect ratio. Verify the mandated order.
	z := &Zone{Origin: Vec3{}, Size: Vec3{10, 1, 2}, Rotation: 90}
	got := z.LocalToWorld(1, 0, 0)
	want := Vec3{10, 0, 0}.RotateYaw(90)
	if !almostEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestContains_IgnoresRotation(t *testing.T) {
	z := &Zone{Origin: Vec3{0, 0, 0}, Size: Vec3{4, 4, 4}, Rotation: 45}
	// Membership is tested in the local unrotated frame by design.
	if !z.Contains(Vec3{3.9, 0.1, 3.9}) {
		t.Fatal("corner of the local box should be inside")
	}
	if z.Contains(Vec3{4.1, 0, 0}) {
		t.Fatal("point past the local box should be outside")
	}
	if z.Contains(Vec3{-0.1, 2, 2}) {
		t.Fatal("point before the origin should be outside")
	}
}

func TestNormalizeDegrees(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		360:  0,
		361:  1,
		-90:  270,
		720:  0,
		-720: 0,
	}
	for in, want := range cases {
		if got := NormalizeDegrees(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("NormalizeDegrees(%v) = %v, want %v", in, got, want)
		}
	}
}

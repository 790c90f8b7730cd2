package pool

import (
	"errors"
	"testing"

	"beatcraft.ai/internal/protocol"
	"beatcraft.ai/internal/spatial"
)

func testManager(t *testing.T) (*Manager, *spatial.Registry) {
	t.Helper()
	reg := spatial.NewRegistry(spatial.RegistryConfig{}, nil, nil)
	if _, err := reg.CreateZone("main", "", spatial.Vec3{X: 100, Y: 64, Z: 100}, spatial.Vec3{X: 10, Y: 5, Z: 10}, 0); err != nil {
		t.Fatalf("create zone: %v", err)
	}
	m := NewManager(Config{MaxPerZone: 8, MaxParticlesPerTick: 4}, reg, nil)
	return m, reg
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
func posPtr(x, y, z float64) *[3]float64 {
	p := [3]float64{x, y, z}
	return &p
}

func TestEnsurePool_IncrementalGrow(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 3, KindBlock, "stone"); err != nil {
		t.Fatalf("init: %v", err)
	}

	// Mutate one proxy so we can prove the grow path leaves it alone.
	if _, err := m.ApplyBatch("main", []Update{{ID: "p1", Brightness: intPtr(3)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := m.IDs("main")

	total, err := m.EnsurePool("main", 5, KindBlock, "")
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	after := m.IDs("main")
	for i, id := range before {
		if after[i] != id {
			t.Fatalf("grow changed id %d: %s -> %s", i, id, after[i])
		}
	}
	p := m.pools["main"]
	if p.byID["p1"].Brightness != 3 {
		t.Fatal("grow should not reset existing proxy state")
	}
	if after[3] != "p3" || after[4] != "p4" {
		t.Fatalf("new ids = %v", after[3:])
	}
}

func TestEnsurePool_ShrinkAndCap(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 5, KindItem, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	total, err := m.EnsurePool("main", 2, KindItem, "")
	if err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}

	// Beyond the cap: clamped, never an error.
	total, err = m.EnsurePool("main", 100, KindItem, "")
	if err != nil {
		t.Fatalf("over-cap: %v", err)
	}
	if total != 8 {
		t.Fatalf("total = %d, want cap 8", total)
	}
}

func TestEnsurePool_UnknownZone(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("nowhere", 3, KindBlock, ""); !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestApplyBatch_SkipsUnknownIDs(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 2, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	applied, err := m.ApplyBatch("main", []Update{
		{ID: "p0", Brightness: intPtr(7)},
		{ID: "ghost", Brightness: intPtr(7)},
		{ID: "p1", Glow: boolPtr(true)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want 2", applied)
	}
	p := m.pools["main"]
	if p.byID["p0"].Brightness != 7 || !p.byID["p1"].Glow {
		t.Fatal("entries after the unknown id should still apply")
	}
}

func TestApplyBatch_ApplyIfPresentAndClamp(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 1, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	p := m.pools["main"]
	pr := p.byID["p0"]
	startPos := pr.Pos

	if _, err := m.ApplyBatch("main", []Update{{ID: "p0", Brightness: intPtr(99), Glow: boolPtr(true)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pr.Brightness != MaxBrightness {
		t.Fatalf("brightness should clamp to %d, got %d", MaxBrightness, pr.Brightness)
	}
	if pr.Pos != startPos {
		t.Fatal("position should be untouched when absent from the update")
	}

	if _, err := m.ApplyBatch("main", []Update{{ID: "p0", Brightness: intPtr(-4)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pr.Brightness != MinBrightness {
		t.Fatalf("brightness should clamp to %d, got %d", MinBrightness, pr.Brightness)
	}
	if !pr.Glow {
		t.Fatal("glow should persist across an update that omits it")
	}
}

func TestApplyBatch_PositionMapsThroughZone(t *testing.T) {
	m, reg := testManager(t)
	if _, err := m.EnsurePool("main", 1, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := m.ApplyBatch("main", []Update{{ID: "p0", Pos: posPtr(0, 0, 0)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	z, _ := reg.Zone("main")
	pr := m.pools["main"].byID["p0"]
	if pr.Pos != z.Origin {
		t.Fatalf("normalized (0,0,0) should land on the zone origin, got %+v", pr.Pos)
	}
	// Out-of-range normalized coordinates clamp into the zone.
	if _, err := m.ApplyBatch("main", []Update{{ID: "p0", Pos: posPtr(2, -1, 0.5)}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := z.LocalToWorld(1, 0, 0.5)
	if pr.Pos != want {
		t.Fatalf("clamped pos = %+v, want %+v", pr.Pos, want)
	}
}

func TestApplyBatch_TransformOnlyWhenChanged(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 1, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	pr := m.pools["main"].byID["p0"]

	tf := protocol.Transform{Scale: [3]float64{2, 2, 2}, Yaw: 45}
	if _, err := m.ApplyBatch("main", []Update{{ID: "p0", Transform: &tf}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pr.Transform != tf {
		t.Fatalf("transform = %+v", pr.Transform)
	}
	// Re-sending the identical transform is a no-op write (the proxy keeps
	// the same value; the contract is that it is not rewritten, which we
	// observe through last-applied equality).
	same := tf
	if _, err := m.ApplyBatch("main", []Update{{ID: "p0", Transform: &same}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pr.Transform != tf {
		t.Fatal("identical transform should leave last-applied unchanged")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 3, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	m.Cleanup("main")
	if m.Count("main") != 0 {
		t.Fatal("cleanup should destroy all proxies")
	}
	m.Cleanup("main") // second call is a no-op
	if _, err := m.ApplyBatch("main", nil); !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("apply after cleanup should be not-found, got %v", err)
	}
}

func TestTakeFrames_DrainsDirtyState(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 2, KindText, "scoreboard"); err != nil {
		t.Fatalf("init: %v", err)
	}
	frames := m.TakeFrames()
	if len(frames) != 1 || len(frames[0].Entities) != 2 {
		t.Fatalf("creation should dirty all proxies, got %+v", frames)
	}
	if frames[0].Hint != "scoreboard" || frames[0].Entities[0].Kind != "text" {
		t.Fatalf("frame metadata = %+v", frames[0])
	}

	// Nothing changed since the drain.
	if frames := m.TakeFrames(); len(frames) != 0 {
		t.Fatalf("second take should be empty, got %+v", frames)
	}

	m.AddParticles("main", []protocol.ParticleSpawn{
		{Effect: "burst", Pos: [3]float64{1, 2, 3}, Count: 10},
		{Effect: "burst", Count: 10},
		{Effect: "burst", Count: 10},
		{Effect: "burst", Count: 10},
		{Effect: "burst", Count: 10}, // over the per-tick ceiling of 4
	})
	frames = m.TakeFrames()
	if len(frames) != 1 || len(frames[0].Particles) != 4 {
		t.Fatalf("particles should clamp to ceiling, got %+v", frames)
	}
}

func TestTakeFrames_KindRebuildShipsEntitiesNotRemovals(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 3, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	m.TakeFrames()

	// Same count, new kind: ids are reused within the same tick.
	if _, err := m.EnsurePool("main", 2, KindText, ""); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	frames := m.TakeFrames()
	if len(frames) != 1 {
		t.Fatalf("rebuild should emit one frame, got %+v", frames)
	}
	f := frames[0]
	if len(f.Entities) != 2 || f.Entities[0].Kind != "text" {
		t.Fatalf("rebuilt proxies should ship with the new kind, got %+v", f.Entities)
	}
	for _, e := range f.Entities {
		for _, rm := range f.Removed {
			if rm == e.ID {
				t.Fatalf("id %s is both removed and live in one frame", e.ID)
			}
		}
	}
	// p2 shrank away and was not recreated, so only it stays removed.
	if len(f.Removed) != 1 || f.Removed[0] != "p2" {
		t.Fatalf("removed = %v, want [p2]", f.Removed)
	}
}

func TestSetVisible_MarksAllDirty(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.EnsurePool("main", 3, KindBlock, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	m.TakeFrames()
	if err := m.SetVisible("main", false); err != nil {
		t.Fatalf("set visible: %v", err)
	}
	frames := m.TakeFrames()
	if len(frames) != 1 || len(frames[0].Entities) != 3 || frames[0].Visible {
		t.Fatalf("hide should dirty every proxy, got %+v", frames)
	}
	if err := m.SetVisible("ghost", true); !errors.Is(err, spatial.ErrNotFound) {
		t.Fatalf("unknown zone should be not-found, got %v", err)
	}
}

package layoutdb

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"beatcraft.ai/internal/spatial"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestStore_RoundTripSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.db")

	s := openTestStore(t, path)
	if err := s.SaveZone(spatial.ZoneRecord{Name: "Floor", World: "main", Origin: [3]float64{10, 64, -5}, Size: [3]float64{8, 4, 8}, Rotation: 45}); err != nil {
		t.Fatalf("SaveZone: %v", err)
	}
	if err := s.SaveStage(spatial.StageRecord{
		Name:    "mainstage",
		Anchor:  [3]float64{0, 64, 0},
		Members: []spatial.StageMemberRecord{{Role: "main", Zone: "Floor", Offset: [3]float64{0, 0, 2}}},
	}); err != nil {
		t.Fatalf("SaveStage: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = openTestStore(t, path)
	defer s.Close()
	zones, stages, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(zones) != 1 || len(stages) != 1 {
		t.Fatalf("loaded %d zones, %d stages", len(zones), len(stages))
	}
	z := zones[0]
	if z.Name != "Floor" || z.Rotation != 45 || z.Origin != [3]float64{10, 64, -5} {
		t.Fatalf("zone = %+v", z)
	}
	st := stages[0]
	if st.Name != "mainstage" || len(st.Members) != 1 || st.Members[0].Role != "main" {
		t.Fatalf("stage = %+v", st)
	}
}

func TestStore_SaveIsUpsertCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.db")
	s := openTestStore(t, path)

	if err := s.SaveZone(spatial.ZoneRecord{Name: "Floor", Size: [3]float64{1, 1, 1}}); err != nil {
		t.Fatalf("SaveZone: %v", err)
	}
	if err := s.SaveZone(spatial.ZoneRecord{Name: "FLOOR", Size: [3]float64{2, 2, 2}}); err != nil {
		t.Fatalf("SaveZone: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = openTestStore(t, path)
	defer s.Close()
	zones, _, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("rows = %d, want 1 (NOCASE upsert)", len(zones))
	}
	if zones[0].Size != [3]float64{2, 2, 2} {
		t.Fatalf("zone = %+v, want the later write", zones[0])
	}
}

func TestStore_DeleteRemovesRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.db")
	s := openTestStore(t, path)

	if err := s.SaveZone(spatial.ZoneRecord{Name: "gone", Size: [3]float64{1, 1, 1}}); err != nil {
		t.Fatalf("SaveZone: %v", err)
	}
	if err := s.DeleteZone("GONE"); err != nil {
		t.Fatalf("DeleteZone: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = openTestStore(t, path)
	defer s.Close()
	zones, _, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(zones) != 0 {
		t.Fatalf("zones = %+v, want empty", zones)
	}
}

func TestStore_WritesAfterCloseAreRejected(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "layout.db"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.SaveZone(spatial.ZoneRecord{Name: "late"}); err == nil {
		t.Fatal("expected error writing to a closed store")
	}
}

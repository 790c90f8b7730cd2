package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	audioSchema := compile("audio_state.schema.json")
	batchSchema := compile("batch_update.schema.json")
	initSchema := compile("init_pool.schema.json")
	zoneSchema := compile("create_zone.schema.json")
	errSchema := compile("error.schema.json")

	var audio any
	_ = json.Unmarshal([]byte(`{
	  "type":"audio_state",
	  "v":"1.0.0",
	  "bands":[0.1,0.5,0.9,0.3,0.0],
	  "amplitude":0.7,
	  "is_beat":true,
	  "beat_intensity":0.95,
	  "bpm":128,
	  "tempo_confidence":0.82,
	  "beat_phase":0.97,
	  "frame":4211
	}`), &audio)
	validate(audioSchema, audio)

	var batch any
	_ = json.Unmarshal([]byte(`{
	  "type":"batch_update",
	  "v":"1.0.0",
	  "zone":"floor",
	  "entities":[
	    {"id":"p0","pos":[0.5,0.0,0.5],"brightness":12},
	    {"id":"p1","transform":{"scale":[1.5,1.5,1.5],"yaw":90},"glow":true,"interpolation_ticks":2}
	  ],
	  "particles":[{"effect":"note","pos":[1,65,2],"count":5}]
	}`), &batch)
	validate(batchSchema, batch)

	var initPool any
	_ = json.Unmarshal([]byte(`{
	  "type":"init_pool",
	  "v":"1.0.0",
	  "zone":"floor",
	  "count":64,
	  "kind":"block",
	  "hint":"sea_lantern"
	}`), &initPool)
	validate(initSchema, initPool)

	var createZone any
	_ = json.Unmarshal([]byte(`{
	  "type":"create_zone",
	  "v":"1.0.0",
	  "name":"floor",
	  "world":"main",
	  "origin":[10,64,-5],
	  "size":[8,4,8],
	  "rotation":45
	}`), &createZone)
	validate(zoneSchema, createZone)

	var errMsg any
	_ = json.Unmarshal([]byte(`{
	  "type":"error",
	  "v":"1.0.0",
	  "code":"E_NOT_FOUND",
	  "message":"zone \"ghost\" not found"
	}`), &errMsg)
	validate(errSchema, errMsg)
}

func TestSchemas_RejectBadPayloads(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	batchSchema := compile("batch_update.schema.json")
	errSchema := compile("error.schema.json")

	var noZone any
	_ = json.Unmarshal([]byte(`{"type":"batch_update","entities":[]}`), &noZone)
	if err := batchSchema.Validate(noZone); err == nil {
		t.Fatal("batch_update without zone should fail validation")
	}

	var noID any
	_ = json.Unmarshal([]byte(`{"type":"batch_update","zone":"z","entities":[{"brightness":3}]}`), &noID)
	if err := batchSchema.Validate(noID); err == nil {
		t.Fatal("entity update without id should fail validation")
	}

	var badCode any
	_ = json.Unmarshal([]byte(`{"type":"error","code":"E_NOPE","message":"x"}`), &badCode)
	if err := errSchema.Validate(badCode); err == nil {
		t.Fatal("unknown error code should fail validation")
	}
}

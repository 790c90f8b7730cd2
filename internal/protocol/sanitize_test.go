package protocol

import (
	"math"
	"testing"
)

func TestSanitizeUnit(t *testing.T) {
	cases := []struct {
		in   float64
		def  float64
		want float64
	}{
		{math.NaN(), 0, 0},
		{math.Inf(1), 0, 0},
		{math.Inf(-1), 0, 0},
		{math.NaN(), 0.5, 0.5},
		{2.5, 0, 1.0},
		{-5, 0, 0.0},
		{0.25, 0, 0.25},
	}
	for _, c := range cases {
		if got := SanitizeUnit(c.in, c.def); got != c.want {
			t.Errorf("SanitizeUnit(%v, %v) = %v, want %v", c.in, c.def, got, c.want)
		}
	}
}

func TestSanitizePhase_NeverReachesOne(t *testing.T) {
	if got := SanitizePhase(1.0, 0); got >= 1 {
		t.Fatalf("phase %v should stay below 1", got)
	}
	if got := SanitizePhase(7.3, 0); got >= 1 {
		t.Fatalf("phase %v should stay below 1", got)
	}
	if got := SanitizePhase(-0.2, 0); got != 0 {
		t.Fatalf("negative phase should clamp to 0, got %v", got)
	}
	if got := SanitizePhase(math.NaN(), 0); got != 0 {
		t.Fatalf("NaN phase should default to 0, got %v", got)
	}
}

func TestSanitizeBPM(t *testing.T) {
	if _, ok := SanitizeBPM(math.NaN()); ok {
		t.Fatal("NaN bpm should be absent")
	}
	if _, ok := SanitizeBPM(-120); ok {
		t.Fatal("negative bpm should be absent")
	}
	if v, ok := SanitizeBPM(128); !ok || v != 128 {
		t.Fatalf("got (%v, %v)", v, ok)
	}
}

func TestFixBands(t *testing.T) {
	got := FixBands([]float64{0.1, 2.0, math.NaN()})
	want := [NumBands]float64{0.1, 1.0, 0, 0, 0}
	if got != want {
		t.Fatalf("FixBands = %v, want %v", got, want)
	}
	long := FixBands([]float64{1, 1, 1, 1, 1, 1, 1})
	if long != [NumBands]float64{1, 1, 1, 1, 1} {
		t.Fatalf("long input should truncate, got %v", long)
	}
}

func TestIsSupportedVersion(t *testing.T) {
	for _, v := range []string{"", "1.0.0", "1.2.0", "1.9.9"} {
		if !IsSupportedVersion(v) {
			t.Errorf("version %q should be supported", v)
		}
	}
	for _, v := range []string{"2.0.0", "0.9", "garbage"} {
		if IsSupportedVersion(v) {
			t.Errorf("version %q should not be supported", v)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"ping","v":"1.0.0"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypePing || m.V != "1.0.0" {
		t.Fatalf("got %+v", m)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatal("malformed JSON should error")
	}
}

package protocol

import "math"

// Numeric sanitization for values crossing the wire boundary. NaN and ±Inf
// become the field's documented default; finite out-of-range values clamp to
// the nearest bound. A malformed field never drops the rest of its message.

// SanitizeUnit maps v into [0,1], substituting def for NaN/Inf.
func SanitizeUnit(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return ClampFloat(v, 0, 1)
}

// SanitizePhase maps v into [0,1), substituting def for NaN/Inf.
func SanitizePhase(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return math.Nextafter(1, 0)
	}
	return v
}

// SanitizeBPM returns (bpm, true) for a usable finite positive tempo and
// (0, false) otherwise; an unusable bpm is treated as absent.
func SanitizeBPM(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FixBands normalizes a wire band array to exactly NumBands sanitized values:
// missing entries are zero, extra entries are dropped.
func FixBands(in []float64) [NumBands]float64 {
	var out [NumBands]float64
	for i := 0; i < NumBands && i < len(in); i++ {
		out[i] = SanitizeUnit(in[i], 0)
	}
	return out
}

// Package audio holds the immutable audio-state snapshot shared between the
// message router and the effect layer. A new snapshot fully replaces the
// prior one; there are no partial merges.
package audio

import "beatcraft.ai/internal/protocol"

// State is one already-computed analysis frame from the capture side. The
// core never does DSP; it only consumes these records.
type State struct {
	Bands         [protocol.NumBands]float64
	Amplitude     float64
	IsBeat        bool
	BeatIntensity float64

	// BPM is only meaningful when HasBPM is set; the capture side omits the
	// tempo estimate until its tracker locks on.
	BPM    float64
	HasBPM bool

	TempoConfidence float64
	BeatPhase       float64 // [0,1), 0 = on the beat

	Frame uint64 // monotonic capture frame counter
}

// Beat is a beat event on the effect-dispatch path. Projected marks beats
// synthesized by the beat-phase assist rather than reported by the detector.
type Beat struct {
	Intensity float64
	Projected bool
	Frame     uint64
}

// FromWire sanitizes a wire audio_state into a snapshot. Non-finite fields
// fall back to their documented defaults (zero for unit-range fields, absent
// for bpm); finite out-of-range values clamp. The tempo_conf alias feeds the
// same confidence value but loses to tempo_confidence when both are present.
func FromWire(m protocol.AudioStateMsg) State {
	st := State{
		Bands:         protocol.FixBands(m.Bands),
		Amplitude:     protocol.SanitizeUnit(m.Amplitude, 0),
		IsBeat:        m.IsBeat,
		BeatIntensity: protocol.SanitizeUnit(m.BeatIntensity, 0),
		Frame:         m.Frame,
	}
	if m.BPM != nil {
		st.BPM, st.HasBPM = protocol.SanitizeBPM(*m.BPM)
	}
	conf := m.TempoConf
	if m.TempoConfidence != nil {
		conf = m.TempoConfidence
	}
	if conf != nil {
		st.TempoConfidence = protocol.SanitizeUnit(*conf, 0)
	}
	if m.BeatPhase != nil {
		st.BeatPhase = protocol.SanitizePhase(*m.BeatPhase, 0)
	}
	return st
}

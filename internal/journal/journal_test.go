package journal

import (
	"encoding/json"
	"testing"

	"beatcraft.ai/internal/protocol"
)

func TestWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "audio")

	for i := 0; i < 3; i++ {
		msg := protocol.AudioStateMsg{
			Type:      protocol.TypeAudioState,
			V:         protocol.Version,
			Bands:     []float64{0.1, 0.2, 0.3, 0.4, 0.5},
			Amplitude: float64(i) / 10,
			Frame:     uint64(i),
		}
		if err := w.Write(msg); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(dir, "audio")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want one segment", files)
	}

	var frames []uint64
	err = ReadDir(dir, "audio", func(raw []byte) error {
		var m protocol.AudioStateMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		frames = append(frames, m.Frame)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(frames) != 3 || frames[0] != 0 || frames[2] != 2 {
		t.Fatalf("frames = %v, want [0 1 2] in write order", frames)
	}
}

func TestFiles_IgnoresForeignEntries(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "audio")
	if err := w.Write(map[string]any{"type": "audio_state"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	other := NewWriter(dir, "other")
	if err := other.Write(map[string]any{"x": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := other.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(dir, "audio")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want only the audio segment", files)
	}
}

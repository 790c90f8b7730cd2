package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"beatcraft.ai/internal/journal"
	"beatcraft.ai/internal/link"
	"beatcraft.ai/internal/protocol"
)

var errStop = errors.New("stop")

// Replays a recorded audio journal into a relay or render host at a steady
// frame cadence, over the same reliable link the relay itself uses.
func main() {
	var (
		dir     = flag.String("journal", "", "journal directory containing audio-*.jsonl.zst")
		url     = flag.String("url", "ws://127.0.0.1:8765/v1/ws", "target websocket url")
		fps     = flag.Float64("fps", 20, "playback frames per second")
		dryRun  = flag.Bool("dry_run", false, "decode and count entries without sending")
		maxSend = flag.Int("max", 0, "stop after this many entries (0 = all)")
	)
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}
	if *fps <= 0 {
		*fps = 20
	}

	if *dryRun {
		count := 0
		err := journal.ReadDir(*dir, "audio", func(raw []byte) error {
			var m protocol.AudioStateMsg
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			count++
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read journal:", err)
			os.Exit(1)
		}
		fmt.Printf("journal ok: %d entries\n", count)
		return
	}

	session := link.NewSession(link.Config{Name: "replay"}, &link.WSDialer{URL: *url}, nil, nil)
	session.Start()
	defer session.Close()

	interval := time.Duration(float64(time.Second) / *fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	err := journal.ReadDir(*dir, "audio", func(raw []byte) error {
		<-ticker.C
		session.Send(raw)
		sent++
		if *maxSend > 0 && sent >= *maxSend {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	// Give the link a moment to flush anything still queued.
	time.Sleep(500 * time.Millisecond)
	fmt.Printf("replayed %d entries at %.1f fps\n", sent, *fps)
}

package stagehost

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"beatcraft.ai/internal/viewerproto"
)

// Viewer is one subscribed frame consumer. Out is owned by the transport
// layer; the hub never closes it and never blocks on it.
type Viewer struct {
	ID          string
	Zones       map[string]bool // empty means every zone
	MaxEntities int
	Out         chan []byte
}

// Hub fans frame deltas out to subscribed viewers. Subscription happens on
// network goroutines, broadcasting on the stage-host loop, so the viewer set
// is guarded by a mutex. A slow viewer loses frames, never stalls the loop.
type Hub struct {
	log *log.Logger

	mu      sync.Mutex
	viewers map[string]*Viewer
	dropped uint64
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{log: logger, viewers: make(map[string]*Viewer)}
}

// Subscribe registers a viewer and returns its session id.
func (h *Hub) Subscribe(zones []string, maxEntities int, out chan []byte) string {
	v := &Viewer{
		ID:          uuid.NewString(),
		Zones:       make(map[string]bool, len(zones)),
		MaxEntities: maxEntities,
		Out:         out,
	}
	for _, z := range zones {
		z = strings.ToLower(strings.TrimSpace(z))
		if z != "" {
			v.Zones[z] = true
		}
	}
	h.mu.Lock()
	h.viewers[v.ID] = v
	h.mu.Unlock()
	return v.ID
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.viewers, id)
	h.mu.Unlock()
}

func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Broadcast delivers one tick's zone frames. Each viewer gets its own
// filtered copy; viewers whose out channel is full are skipped.
func (h *Hub) Broadcast(tick uint64, version string, frames []viewerproto.ZoneFrame) {
	if len(frames) == 0 {
		return
	}
	h.mu.Lock()
	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()
	if len(viewers) == 0 {
		return
	}
	sort.Slice(viewers, func(i, j int) bool { return viewers[i].ID < viewers[j].ID })

	for _, v := range viewers {
		msg := viewerproto.FrameMsg{Type: viewerproto.TypeFrame, V: version, Tick: tick, Zones: filterFrames(frames, v)}
		if len(msg.Zones) == 0 {
			continue
		}
		b, err := json.Marshal(msg)
		if err != nil {
			h.log.Printf("[hub] marshal frame: %v", err)
			continue
		}
		select {
		case v.Out <- b:
		default:
			h.mu.Lock()
			h.dropped++
			n := h.dropped
			h.mu.Unlock()
			if n%100 == 1 {
				h.log.Printf("[hub] viewer %s slow, dropping frames (%d total)", v.ID, n)
			}
		}
	}
}

func filterFrames(frames []viewerproto.ZoneFrame, v *Viewer) []viewerproto.ZoneFrame {
	out := make([]viewerproto.ZoneFrame, 0, len(frames))
	for _, f := range frames {
		if len(v.Zones) > 0 && !v.Zones[strings.ToLower(f.Zone)] {
			continue
		}
		if v.MaxEntities > 0 && len(f.Entities) > v.MaxEntities {
			f.Entities = f.Entities[:v.MaxEntities]
		}
		out = append(out, f)
	}
	return out
}

// Package viewer serves the read-only frame stream. A viewer subscribes
// once, optionally filtered to a zone set, then receives one frame message
// per render tick that had changes.
package viewer

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"beatcraft.ai/internal/stagehost"
	"beatcraft.ai/internal/viewerproto"
)

const (
	writeTimeout   = 5 * time.Second
	readTimeout    = 60 * time.Second
	maxEntitiesCap = 4096
	outQueueCap    = 32
)

type Server struct {
	host *stagehost.Host
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(h *stagehost.Host, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		host: h,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: first message must be subscribe.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub viewerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != viewerproto.TypeSubscribe {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected subscribe"), time.Now().Add(time.Second))
			return
		}
		maxEntities := sub.MaxEntities
		if maxEntities < 0 {
			maxEntities = 0
		}
		if maxEntities > maxEntitiesCap {
			maxEntities = maxEntitiesCap
		}

		out := make(chan []byte, outQueueCap)
		sid := s.host.Hub().Subscribe(sub.Zones, maxEntities, out)
		defer s.host.Hub().Unsubscribe(sid)

		welcome := viewerproto.WelcomeMsg{
			Type:      viewerproto.TypeWelcome,
			V:         viewerproto.Version,
			SessionID: sid,
			Tick:      s.host.Tick(),
			Zones:     s.host.ActiveZones(),
		}
		wb, err := json.Marshal(welcome)
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, wb); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: frames from the hub.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: viewers send nothing after subscribe; we only watch
		// for the close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}
}

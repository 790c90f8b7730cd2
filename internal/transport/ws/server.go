// Package ws serves the ingest websocket: capture and control clients send
// wire messages, the router dispatches them, and replies go back on a
// per-connection writer goroutine.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"beatcraft.ai/internal/router"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	outQueueCap  = 64
)

type Server struct {
	router *router.Router
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(rt *router.Router, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		router: rt,
		log:    logger,
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

		out := make(chan []byte, outQueueCap)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
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

		reply := func(v any) {
			b, err := json.Marshal(v)
			if err != nil {
				s.log.Printf("[ws] marshal reply: %v", err)
				return
			}
			select {
			case out <- b:
			default:
				s.log.Printf("[ws] %s reply queue full, dropping", r.RemoteAddr)
			}
		}

		// Reader loop. Dispatch runs here, on the network goroutine; only
		// the resulting host submission crosses to the render thread.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			s.router.Handle(msg, reply)
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"beatcraft.ai/internal/config"
	"beatcraft.ai/internal/link"
)

// The relay sits between capture clients and the render host. Capture links
// terminate here; one reliable outbound session carries their traffic to the
// host and fans the host's replies back out.
func main() {
	var (
		configPath = flag.String("config", "", "path to beatcraft.yaml (optional)")
		addr       = flag.String("addr", ":8764", "capture listen address")
		hostURL    = flag.String("host_url", "ws://127.0.0.1:8765/v1/ws", "render host ingest websocket url")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[relay] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	url := *hostURL
	if cfg.Link.URL != "" {
		url = cfg.Link.URL
	}

	clients := &clientSet{out: make(map[string]chan []byte)}

	session := link.NewSession(link.Config{
		Name:              "uplink",
		BackoffFloor:      cfg.Link.BackoffFloor(),
		BackoffCeiling:    cfg.Link.BackoffCeiling(),
		BackoffFactor:     cfg.Link.BackoffFactor,
		BackoffJitter:     cfg.Link.BackoffJitter,
		HeartbeatInterval: cfg.Link.HeartbeatInterval(),
		HandshakeTimeout:  cfg.Link.HandshakeTimeout(),
		MissThreshold:     cfg.Link.MissThreshold,
		QueueCap:          cfg.Link.QueueCap,
	}, &link.WSDialer{URL: url}, clients.broadcast, logger)
	session.Start()
	defer session.Close()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(session.State().String()))
	})
	mux.HandleFunc("/v1/ws", func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := uuid.NewString()
		out := clients.add(id)
		defer clients.remove(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			session.Send(msg)
		}
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("capture listening on %s, uplink %s", *addr, url)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Printf("signal %v, shutting down", s)
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
}

type clientSet struct {
	mu  sync.Mutex
	out map[string]chan []byte
}

func (c *clientSet) add(id string) chan []byte {
	ch := make(chan []byte, 64)
	c.mu.Lock()
	c.out[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *clientSet) remove(id string) {
	c.mu.Lock()
	delete(c.out, id)
	c.mu.Unlock()
}

// broadcast fans a host reply out to every capture client. Slow clients lose
// the message rather than stalling the uplink reader.
func (c *clientSet) broadcast(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.out {
		select {
		case ch <- msg:
		default:
		}
	}
}

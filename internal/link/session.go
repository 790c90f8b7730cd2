// Package link wraps every logical connection (capture→relay, relay→render
// host, host→viewer uplinks) with the same reliability machinery: heartbeat
// liveness, exponential-backoff reconnection, and a bounded outbound queue.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"beatcraft.ai/internal/protocol"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Conn is one live transport connection. Recv blocks until a message or a
// connection error; Close must unblock it.
type Conn interface {
	Send(msg []byte) error
	Recv() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type Config struct {
	Name string

	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	BackoffFactor  float64
	BackoffJitter  float64

	HeartbeatInterval time.Duration
	// HandshakeTimeout bounds the post-dial ping→pong acknowledgment; the
	// backoff only resets once it succeeds.
	HandshakeTimeout time.Duration
	// MissThreshold is how many consecutive unacknowledged heartbeats tear
	// the link down. Deliberately more than 1: a single dropped packet must
	// not kill a healthy link.
	MissThreshold int

	QueueCap int
}

func (c *Config) normalize() {
	if c.Name == "" {
		c.Name = "link"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 2500 * time.Millisecond
	}
	if c.MissThreshold <= 1 {
		c.MissThreshold = 3
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 256
	}
}

type Status struct {
	State       State
	BackoffMS   int64
	Attempts    int
	QueueLen    int
	LastSentHB  time.Time
	LastAckedHB time.Time
	LastError   string
}

// Session drives one logical link through the
// Disconnected→Connecting→Connected⇄Reconnecting machine. Messages queued
// while down are flushed in order after a fully acknowledged reconnect.
type Session struct {
	cfg    Config
	dialer Dialer
	log    *log.Logger

	// onMessage receives every inbound message except heartbeat acks.
	// Called from the session goroutine.
	onMessage func(msg []byte)

	mu          sync.Mutex
	state       State
	attempts    int
	everLinked  bool
	queue       *sendQueue
	conn        Conn
	lastErr     string
	lastHBSent  time.Time
	lastHBAck   time.Time
	missedAcks  int
	outstanding bool

	backoff *Backoff

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewSession(cfg Config, dialer Dialer, onMessage func(msg []byte), logger *log.Logger) *Session {
	cfg.normalize()
	if logger == nil {
		logger = log.Default()
	}
	if onMessage == nil {
		onMessage = func([]byte) {}
	}
	return &Session{
		cfg:       cfg,
		dialer:    dialer,
		log:       logger,
		onMessage: onMessage,
		queue:     newSendQueue(cfg.QueueCap),
		backoff:   NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling, cfg.BackoffFactor, cfg.BackoffJitter, 0),
		state:     Disconnected,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Session) Start() {
	s.startOnce.Do(func() { go s.run() })
}

// Close cancels any in-flight reconnection attempt and pending backoff
// timer, then waits for the session goroutine to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.dropConn()
		<-s.done
	})
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:       s.state,
		BackoffMS:   s.backoff.Current().Milliseconds(),
		Attempts:    s.attempts,
		QueueLen:    s.queue.Len(),
		LastSentHB:  s.lastHBSent,
		LastAckedHB: s.lastHBAck,
		LastError:   s.lastErr,
	}
}

// Send delivers msg if the link is up, otherwise queues it for the flush
// after reconnection. A send failure flips the link into Reconnecting; the
// message is queued, not lost.
func (s *Session) Send(msg []byte) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil || s.state != Connected {
		s.pushLocked(msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := conn.Send(msg); err != nil {
		s.mu.Lock()
		s.pushLocked(msg)
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.dropConn()
	}
}

func (s *Session) pushLocked(msg []byte) {
	if _, evicted := s.queue.Push(msg); evicted {
		s.log.Printf("%s: outbound queue full, evicted oldest message", s.cfg.Name)
	}
}

// dropConn closes the live connection (if any) so the read loop unblocks
// and the run loop moves to Reconnecting.
func (s *Session) dropConn() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.setState(Disconnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.mu.Lock()
		if s.everLinked || s.attempts > 0 {
			s.state = Reconnecting
		} else {
			s.state = Connecting
		}
		s.attempts++
		s.mu.Unlock()

		conn, err := s.connect(ctx)
		if err != nil {
			s.mu.Lock()
			s.lastErr = err.Error()
			delay := s.backoff.Fail()
			s.state = Reconnecting
			s.mu.Unlock()
			select {
			case <-s.stop:
				return
			case <-time.After(delay):
			}
			continue
		}

		// Fully acknowledged handshake: only now does the backoff reset.
		s.mu.Lock()
		s.conn = conn
		s.state = Connected
		s.attempts = 0
		s.everLinked = true
		s.missedAcks = 0
		s.outstanding = false
		s.backoff.Reset()
		pending := s.queue.Drain()
		s.mu.Unlock()

		for _, msg := range pending {
			if err := conn.Send(msg); err != nil {
				s.log.Printf("%s: flush: %v", s.cfg.Name, err)
				break
			}
		}

		s.serve(conn)
		s.dropConn()

		select {
		case <-s.stop:
			return
		default:
			s.setState(Reconnecting)
		}
	}
}

// connect dials and performs the liveness handshake: a ping must be
// acknowledged with a pong before the link counts as up.
func (s *Session) connect(ctx context.Context) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout*2)
	defer cancel()
	conn, err := s.dialer.Dial(dctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := s.sendPing(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake send: %w", err)
	}
	type recvResult struct {
		msg []byte
		err error
	}
	got := make(chan recvResult, 1)
	go func() {
		for {
			msg, err := conn.Recv()
			if err != nil {
				got <- recvResult{nil, err}
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type == protocol.TypePong {
				got <- recvResult{msg, nil}
				return
			}
			// Anything pre-handshake other than the ack is ignored.
		}
	}()
	select {
	case <-dctx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: %w", dctx.Err())
	case r := <-got:
		if r.err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("handshake recv: %w", r.err)
		}
	case <-time.After(s.cfg.HandshakeTimeout):
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: no acknowledgment within %v", s.cfg.HandshakeTimeout)
	}
	s.mu.Lock()
	s.lastHBAck = time.Now()
	s.mu.Unlock()
	return conn, nil
}

// serve pumps inbound messages and heartbeats until the connection dies or
// the miss threshold trips.
func (s *Session) serve(conn Conn) {
	inbound := make(chan []byte, 64)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			msg, err := conn.Recv()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-quit:
				return
			case <-s.stop:
				return
			}
		}
	}()

	hb := time.NewTicker(s.cfg.HeartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-s.stop:
			return
		case err := <-readErr:
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()
			return
		case msg := <-inbound:
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type == protocol.TypePong {
				s.mu.Lock()
				s.lastHBAck = time.Now()
				s.missedAcks = 0
				s.outstanding = false
				s.mu.Unlock()
				continue
			}
			if base.Type == protocol.TypePing {
				var ping protocol.PingMsg
				_ = json.Unmarshal(msg, &ping)
				pong, _ := json.Marshal(protocol.PongMsg{Type: protocol.TypePong, V: protocol.Version, TS: ping.TS})
				if err := conn.Send(pong); err != nil {
					return
				}
				continue
			}
			s.onMessage(msg)
		case <-hb.C:
			s.mu.Lock()
			if s.outstanding {
				s.missedAcks++
			}
			missed := s.missedAcks
			s.mu.Unlock()
			if missed >= s.cfg.MissThreshold {
				s.mu.Lock()
				s.lastErr = fmt.Sprintf("%d consecutive heartbeats unacknowledged", missed)
				s.mu.Unlock()
				s.log.Printf("%s: %d missed heartbeat acks, reconnecting", s.cfg.Name, missed)
				return
			}
			if err := s.sendPing(conn); err != nil {
				s.mu.Lock()
				s.lastErr = err.Error()
				s.mu.Unlock()
				return
			}
		}
	}
}

func (s *Session) sendPing(conn Conn) error {
	now := time.Now()
	b, _ := json.Marshal(protocol.PingMsg{Type: protocol.TypePing, V: protocol.Version, TS: now.UnixMilli()})
	if err := conn.Send(b); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastHBSent = now
	s.outstanding = true
	s.mu.Unlock()
	return nil
}

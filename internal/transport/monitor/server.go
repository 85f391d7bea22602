// Package monitor serves the read-only run monitor: an HTTP bootstrap
// endpoint plus a websocket that streams one DAY message per simulated day.
package monitor

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"episim.ai/internal/protocol"
)

type client struct {
	out chan []byte

	// Condition-name filter from the last SUBSCRIBE; nil means all.
	mu     sync.Mutex
	filter map[string]bool
}

func (c *client) setFilter(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(names) == 0 {
		c.filter = nil
		return
	}
	c.filter = make(map[string]bool, len(names))
	for _, n := range names {
		c.filter[n] = true
	}
}

func (c *client) wants(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter == nil || c.filter[name]
}

type Server struct {
	log *log.Logger

	info     protocol.RunInfoMsg
	infoJSON []byte

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]*client
}

func NewServer(info protocol.RunInfoMsg, logger *log.Logger) *Server {
	info.Type = protocol.TypeRunInfo
	info.ProtocolVersion = protocol.Version
	b, _ := json.Marshal(info)
	return &Server{
		log:      logger,
		info:     info,
		infoJSON: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[uint64]*client{},
	}
}

// PublishDay fans one finished day out to every subscriber. Slow clients
// drop messages rather than stalling the run.
func (s *Server) PublishDay(msg protocol.DayMsg) {
	msg.Type = protocol.TypeDay
	msg.ProtocolVersion = protocol.Version

	full, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		b := full
		if filtered, changed := filterDay(c, msg); changed {
			b = filtered
		}
		select {
		case c.out <- b:
		default:
		}
	}
}

// filterDay re-marshals the message with only the client's conditions.
// Returns changed=false when the client takes everything.
func filterDay(c *client, msg protocol.DayMsg) ([]byte, bool) {
	c.mu.Lock()
	all := c.filter == nil
	c.mu.Unlock()
	if all {
		return nil, false
	}
	out := msg
	out.Conditions = nil
	for _, cc := range msg.Conditions {
		if c.wants(cc.Name) {
			out.Conditions = append(out.Conditions, cc)
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(s.infoJSON)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrBadSubscribe)
			return
		}
		if sub.Type != protocol.TypeSubscribe {
			closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrBadSubscribe)
			return
		}
		if sub.ProtocolVersion != protocol.Version {
			closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrVersionMismatch)
			return
		}
		if !s.knownConditions(sub.Conditions) {
			closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrUnknownCond)
			return
		}

		c := &client{out: make(chan []byte, normalizeBuffer(sub.Buffer))}
		c.setFilter(sub.Conditions)

		id := s.nextID.Add(1)
		s.mu.Lock()
		s.clients[id] = c
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.clients, id)
			s.mu.Unlock()
		}()

		// RUN_INFO goes out first, ahead of any queued days.
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, s.infoJSON); err != nil {
			return
		}

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates (filter changes).
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub protocol.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
				continue
			}
			if !s.knownConditions(sub.Conditions) {
				continue
			}
			c.setFilter(sub.Conditions)
		}

		close(done)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) knownConditions(names []string) bool {
	for _, n := range names {
		found := false
		for _, c := range s.info.Conditions {
			if c.Name == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func normalizeBuffer(n int) int {
	if n <= 0 {
		return 64
	}
	if n < 8 {
		return 8
	}
	if n > 1024 {
		return 1024
	}
	return n
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

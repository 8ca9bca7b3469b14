package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Request types sent by clients
const (
	RequestDiscover = "discover"
	RequestCancel   = "cancel"
)

// Event types sent to clients
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventError     = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Request is a client message.
type Request struct {
	Type    string          `json:"type"`
	Options *DiscoverParams `json:"options,omitempty"`
}

// DiscoverParams overrides the server's default options for one session.
// Durations use Go syntax, e.g. "10s".
type DiscoverParams struct {
	Whitelist        []string `json:"whitelist,omitempty"`
	ShortRange       *bool    `json:"short_range,omitempty"`
	Multicast        *bool    `json:"multicast,omitempty"`
	ScanDuration     string   `json:"scan_duration,omitempty"`
	PerHostTimeout   string   `json:"per_host_timeout,omitempty"`
	Grace            string   `json:"grace,omitempty"`
	MulticastTimeout string   `json:"multicast_timeout,omitempty"`
	Query            string   `json:"query,omitempty"`
}

// Apply returns base with the non-empty parameters applied.
func (p *DiscoverParams) Apply(base discovery.Options) (discovery.Options, error) {
	opts := base
	if p == nil {
		return opts, nil
	}
	if len(p.Whitelist) > 0 {
		opts.Whitelist = append([]string(nil), p.Whitelist...)
	}
	if p.ShortRange != nil {
		opts.EnableShortRange = *p.ShortRange
	}
	if p.Multicast != nil {
		opts.EnableMulticast = *p.Multicast
	}
	durations := []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"scan_duration", p.ScanDuration, &opts.ScanDuration},
		{"per_host_timeout", p.PerHostTimeout, &opts.PerHostTimeout},
		{"grace", p.Grace, &opts.Grace},
		{"multicast_timeout", p.MulticastTimeout, &opts.MulticastTimeout},
	}
	for _, d := range durations {
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return opts, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.out = v
	}
	if p.Query != "" {
		opts.Query = p.Query
	}
	return opts, nil
}

// Event is a server message.
type Event struct {
	Type      string                `json:"type"`
	Session   string                `json:"session,omitempty"`
	Phase     string                `json:"phase,omitempty"`
	Progress  *discovery.Progress   `json:"progress,omitempty"`
	Resources []*discovery.Resource `json:"resources,omitempty"`
	Error     string                `json:"error,omitempty"`
}

var (
	errSessionRunning = errors.New("a discovery session is already running")
	errNoSession      = errors.New("no discovery session is running")
)

// client is one WebSocket connection. It runs at most one session at a
// time.
type client struct {
	server     *Server
	conn       *websocket.Conn
	remoteAddr string
	log        *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	session *discovery.Session
	// closed once the session's terminal event has been written
	sessionDone chan struct{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.log.Debug("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := &client{
		server:     s,
		conn:       conn,
		remoteAddr: r.RemoteAddr,
		log:        s.log.With(zap.String("remote_addr", r.RemoteAddr)),
	}

	s.track(c.remoteAddr, conn)
	s.wg.Add(1)
	defer func() {
		s.untrack(c.remoteAddr)
		s.wg.Done()
	}()

	logging.LogConnection(c.remoteAddr, "websocket_upgraded")
	c.run(s.baseCtx)
	logging.LogConnection(c.remoteAddr, "websocket_closed")
}

// run reads requests until the peer goes away or ctx is cancelled.
func (c *client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.cancelSession()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.keepAlive(ctx)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("Connection closed or error reading message", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(Event{Type: EventError, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		switch req.Type {
		case RequestDiscover:
			if err := c.discover(ctx, req.Options); err != nil {
				c.send(Event{Type: EventError, Error: err.Error()})
			}
		case RequestCancel:
			if !c.cancelSession() {
				c.send(Event{Type: EventError, Error: errNoSession.Error()})
			}
		default:
			c.send(Event{Type: EventError, Error: fmt.Sprintf("unknown request type %q", req.Type)})
		}
	}
}

// keepAlive pings the peer and, on server shutdown, cancels the session
// so its terminal event is still delivered.
func (c *client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.waitSession()
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			c.writeMu.Unlock()
			_ = c.conn.Close()
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) discover(ctx context.Context, params *DiscoverParams) error {
	opts, err := params.Apply(c.server.config.Defaults)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return errSessionRunning
	}

	done := make(chan struct{})
	listener := discovery.ListenerFuncs{
		Progress: func(p discovery.Progress) {
			c.send(Event{Type: EventProgress, Session: p.Session, Phase: p.Phase.String(), Progress: &p})
		},
		Completed: func(resources []*discovery.Resource) {
			defer close(done)
			if added := c.server.catalog.Merge(resources); added > 0 {
				c.log.Debug("Catalog updated", zap.Int("added", added), zap.Int("total", c.server.catalog.Len()))
			}
			c.send(Event{Type: EventCompleted, Session: c.finishSession(), Phase: discovery.PhaseDone.String(), Resources: resources})
		},
		Failed: func() {
			defer close(done)
			c.send(Event{Type: EventFailed, Session: c.finishSession()})
		},
	}

	s, err := c.server.discoverer.Start(ctx, opts, listener)
	if err != nil {
		return err
	}
	c.session = s
	c.sessionDone = done
	c.log.Info("Discovery session started", zap.String("session", s.ID))
	return nil
}

// finishSession clears the running session and returns its ID. Terminal
// callbacks block here until discover has stored the session.
func (c *client) finishSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	id := c.session.ID
	c.session = nil
	return id
}

func (c *client) cancelSession() bool {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return false
	}
	s.Cancel()
	return true
}

// waitSession blocks until the last session's terminal event is written.
func (c *client) waitSession() {
	c.mu.Lock()
	done := c.sessionDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *client) send(ev Event) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		c.log.Debug("Failed to send event", zap.String("type", ev.Type), zap.Error(err))
	}
}

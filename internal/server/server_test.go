package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// stubTransport answers every multicast query at once with its resources.
type stubTransport struct {
	mu        sync.Mutex
	resources []*discovery.Resource
	queries   []string
}

func (s *stubTransport) FindResource(_ context.Context, _, query string, _ discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	rs := s.resources
	s.mu.Unlock()
	for _, r := range rs {
		onFound(r)
	}
	return nil
}

func multicastOnly(timeout time.Duration) discovery.Options {
	opts := discovery.DefaultOptions()
	opts.EnableShortRange = false
	opts.MulticastTimeout = timeout
	return opts
}

func newTestServer(t *testing.T, tr discovery.Transport, defaults discovery.Options) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(&Config{Defaults: defaults}, discovery.NewCoordinator(tr))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readUntil returns every event up to and including the first of type typ.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []Event {
	t.Helper()
	var events []Event
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Type == typ {
			return events
		}
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &stubTransport{}, multicastOnly(time.Second))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.NotEmpty(t, h.Version)

	resp, err = http.Post(ts.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDiscoverCompleted(t *testing.T) {
	tr := &stubTransport{resources: []*discovery.Resource{
		{Host: "coap://10.0.0.2:5683", Path: "/light/1", ResourceTypes: []string{"oic.r.switch.binary"}, Connectivity: discovery.ConnIP},
	}}
	_, ts := newTestServer(t, tr, multicastOnly(50*time.Millisecond))
	conn := dial(t, ts)

	sendJSON(t, conn, Request{Type: RequestDiscover, Options: &DiscoverParams{Query: "/oic/res?rt=oic.r.switch.binary"}})
	events := readUntil(t, conn, EventCompleted)

	last := events[len(events)-1]
	require.Len(t, last.Resources, 1)
	assert.Equal(t, "/light/1", last.Resources[0].Path)
	assert.Equal(t, discovery.PhaseDone.String(), last.Phase)
	assert.NotEmpty(t, last.Session)

	var phases []string
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, EventProgress, ev.Type)
		assert.Equal(t, last.Session, ev.Session)
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, []string{"multicast_discovery", "done"}, phases)

	tr.mu.Lock()
	assert.Equal(t, []string{"/oic/res?rt=oic.r.switch.binary"}, tr.queries)
	tr.mu.Unlock()

	// A finished session frees the connection for another one.
	sendJSON(t, conn, Request{Type: RequestDiscover})
	readUntil(t, conn, EventCompleted)
}

func TestDiscoverCancel(t *testing.T) {
	_, ts := newTestServer(t, &stubTransport{}, multicastOnly(time.Minute))
	conn := dial(t, ts)

	sendJSON(t, conn, Request{Type: RequestDiscover})
	sendJSON(t, conn, Request{Type: RequestDiscover})

	events := readUntil(t, conn, EventError)
	assert.Equal(t, errSessionRunning.Error(), events[len(events)-1].Error)

	sendJSON(t, conn, Request{Type: RequestCancel})
	events = readUntil(t, conn, EventFailed)
	assert.NotEmpty(t, events[len(events)-1].Session)

	sendJSON(t, conn, Request{Type: RequestCancel})
	events = readUntil(t, conn, EventError)
	assert.Equal(t, errNoSession.Error(), events[len(events)-1].Error)
}

func TestBadRequests(t *testing.T) {
	_, ts := newTestServer(t, &stubTransport{}, multicastOnly(time.Second))
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readUntil(t, conn, EventError)
	assert.Contains(t, ev[0].Error, "invalid request")

	sendJSON(t, conn, Request{Type: "subscribe"})
	ev = readUntil(t, conn, EventError)
	assert.Contains(t, ev[0].Error, "unknown request type")

	sendJSON(t, conn, Request{Type: RequestDiscover, Options: &DiscoverParams{Grace: "soon"}})
	ev = readUntil(t, conn, EventError)
	assert.Contains(t, ev[0].Error, "invalid grace")

	// Both mediums off finishes at once with nothing found.
	off := false
	sendJSON(t, conn, Request{Type: RequestDiscover, Options: &DiscoverParams{Multicast: &off, ShortRange: &off}})
	readUntil(t, conn, EventFailed)
}

func TestShutdownCancelsSessions(t *testing.T) {
	srv, ts := newTestServer(t, &stubTransport{}, multicastOnly(time.Minute))
	conn := dial(t, ts)

	sendJSON(t, conn, Request{Type: RequestDiscover})
	readUntil(t, conn, EventProgress)
	require.Eventually(t, func() bool { return srv.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	readUntil(t, conn, EventFailed)
	assert.Zero(t, srv.GetActiveConnections())
}

func TestDiscoverParamsApply(t *testing.T) {
	base := discovery.DefaultOptions()
	yes, no := true, false

	tests := []struct {
		name    string
		params  *DiscoverParams
		check   func(t *testing.T, o discovery.Options)
		wantErr bool
	}{
		{
			name:   "nil keeps defaults",
			params: nil,
			check:  func(t *testing.T, o discovery.Options) { assert.Equal(t, base, o) },
		},
		{
			name:   "durations and toggles",
			params: &DiscoverParams{ScanDuration: "2s", PerHostTimeout: "3s", Grace: "250ms", MulticastTimeout: "1m", ShortRange: &no, Multicast: &yes},
			check: func(t *testing.T, o discovery.Options) {
				assert.Equal(t, 2*time.Second, o.ScanDuration)
				assert.Equal(t, 3*time.Second, o.PerHostTimeout)
				assert.Equal(t, 250*time.Millisecond, o.Grace)
				assert.Equal(t, time.Minute, o.MulticastTimeout)
				assert.False(t, o.EnableShortRange)
				assert.True(t, o.EnableMulticast)
			},
		},
		{
			name:   "whitelist",
			params: &DiscoverParams{Whitelist: []string{"AA:BB:CC:DD:EE:FF"}},
			check: func(t *testing.T, o discovery.Options) {
				assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, o.Whitelist)
			},
		},
		{
			name:    "bad duration",
			params:  &DiscoverParams{PerHostTimeout: "15"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := tt.params.Apply(base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestCatalogAcrossSessions(t *testing.T) {
	light := &discovery.Resource{Host: "coap://10.0.0.2:5683", Path: "/light/1", ResourceTypes: []string{"oic.r.switch.binary"}, Connectivity: discovery.ConnIP}
	temp := &discovery.Resource{Host: "coap+gatt://C0:FA:AC:CF:FA:0A", Path: "/bme280_0/tmp", ResourceTypes: []string{"x.mynewt.snsr.tmp"}, Connectivity: discovery.ConnGATT}
	platform := &discovery.Resource{Host: "coap://10.0.0.2:5683", Path: "/oic/p", ResourceTypes: []string{"oic.wk.p"}, Connectivity: discovery.ConnIP}

	tr := &stubTransport{resources: []*discovery.Resource{light, platform}}
	srv, ts := newTestServer(t, tr, multicastOnly(50*time.Millisecond))

	conn := dial(t, ts)
	sendJSON(t, conn, Request{Type: RequestDiscover})
	readUntil(t, conn, EventCompleted)

	// A later session on another connection adds to the same catalog.
	tr.mu.Lock()
	tr.resources = []*discovery.Resource{temp, light}
	tr.mu.Unlock()
	other := dial(t, ts)
	sendJSON(t, other, Request{Type: RequestDiscover})
	readUntil(t, other, EventCompleted)

	assert.Equal(t, 3, srv.Catalog().Len())

	var c Catalog
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/resources", &c))
	require.Len(t, c.Sensors, 1)
	assert.Equal(t, "/bme280_0/tmp", c.Sensors[0].Path)
	require.Len(t, c.SmartDevices, 1)
	assert.Equal(t, "/light/1", c.SmartDevices[0].Path)
	require.Len(t, c.Others, 1)
	assert.Equal(t, "/oic/p", c.Others[0].Path)

	var one discovery.Resource
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/resources?id="+temp.UniqueID(), &one))
	assert.Equal(t, temp.Host, one.Host)
	assert.Equal(t, discovery.ConnGATT, one.Connectivity)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/resources?id=coap://10.9.9.9:5683/x", &one))

	var h Health
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &h))
	assert.Equal(t, 3, h.Resources)
}

package coapip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"
	"github.com/plgd-dev/go-coap/v3/udp/server"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/oic"
	"github.com/sensoroic/sensoroic/internal/protocol"
)

const (
	// DefaultPort is the CoAP UDP port.
	DefaultPort = 5683

	// MulticastIPv4 is the "All CoAP Nodes" IPv4 group.
	MulticastIPv4 = "224.0.1.187:5683"

	// MulticastIPv6 is the link-local "All CoAP Nodes" group. It needs a
	// zone, e.g. "[ff02::158%eth0]:5683".
	MulticastIPv6 = "ff02::158"

	sendAttempts  = 5
	retryDelay    = 20 * time.Millisecond
	cancelTimeout = 2 * time.Second

	scheme = "coap://"
)

// Transport talks CoAP over UDP: multicast and unicast discovery, plus
// single resource reads, writes and observations.
type Transport struct {
	// MulticastAddrs are the groups an untargeted query is sent to.
	MulticastAddrs []string

	log *zap.Logger
	now func() time.Time
}

// New creates a transport sending multicast queries to the IPv4 group.
func New(log *zap.Logger) *Transport {
	if log == nil {
		log = logging.Named("coap")
	}
	return &Transport{
		MulticastAddrs: []string{MulticastIPv4},
		log:            log,
		now:            time.Now,
	}
}

// WithIPv6Zone adds the IPv6 link-local group on the named interface.
func (t *Transport) WithIPv6Zone(iface string) *Transport {
	t.MulticastAddrs = append(t.MulticastAddrs, net.JoinHostPort(MulticastIPv6+"%"+iface, strconv.Itoa(DefaultPort)))
	return t
}

// Connectivity returns the tags this transport serves.
func (t *Transport) Connectivity() discovery.ConnectivityType {
	return discovery.ConnIP
}

// FindResource sends a GET for query to target, or to every multicast
// group when target is empty, and reports decoded links until ctx is done.
func (t *Transport) FindResource(ctx context.Context, target, query string, ct discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	var dests []*net.UDPAddr
	if target == "" {
		for _, a := range t.MulticastAddrs {
			addr, err := net.ResolveUDPAddr("udp", a)
			if err != nil {
				return fmt.Errorf("failed to resolve multicast address %s: %w", a, err)
			}
			dests = append(dests, addr)
		}
	} else {
		addr, err := ResolveTarget(target)
		if err != nil {
			return err
		}
		dests = append(dests, addr)
	}
	if len(dests) == 0 {
		return errors.New("no destination addresses")
	}

	network := "udp4"
	for _, d := range dests {
		if d.IP.To4() == nil {
			network = "udp"
		}
	}
	l, err := coapNet.NewListenUDP(network, "")
	if err != nil {
		return fmt.Errorf("failed to open UDP socket: %w", err)
	}
	s := udp.NewServer()
	go func() {
		if err := s.Serve(l); err != nil && ctx.Err() == nil {
			t.log.Warn("CoAP listener stopped", zap.Error(err))
		}
	}()

	path, queries := protocol.SplitURI(query)
	var wg sync.WaitGroup
	for _, dest := range dests {
		req, err := discoveryRequest(ctx, path, queries)
		if err != nil {
			s.Stop()
			_ = l.Close()
			return err
		}
		wg.Add(1)
		go func(dest string, req *pool.Message) {
			defer wg.Done()
			t.discover(ctx, s, dest, req, onFound)
		}(dest.String(), req)
	}

	t.log.Debug("Discovery request sent",
		zap.String("query", query),
		zap.Int("destinations", len(dests)),
	)

	go func() {
		wg.Wait()
		s.Stop()
		_ = l.Close()
	}()
	return nil
}

func discoveryRequest(ctx context.Context, path string, queries []string) (*pool.Message, error) {
	token, err := message.GetToken()
	if err != nil {
		return nil, err
	}
	req := pool.NewMessage(ctx)
	req.SetCode(codes.GET)
	req.SetType(message.NonConfirmable)
	req.SetMessageID(message.GetMID())
	req.SetToken(token)
	if err := req.SetPath(path); err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	for _, q := range queries {
		req.AddQuery(q)
	}
	return req, nil
}

// discover sends req to dest and reports responses until ctx is done.
// The listener may not be serving yet on the first attempt.
func (t *Transport) discover(ctx context.Context, s *server.Server, dest string, req *pool.Message, onFound func(*discovery.Resource)) {
	var err error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		err = s.DiscoveryRequest(req, dest, func(cc *client.Conn, resp *pool.Message) {
			t.handleResponse(ctx, cc.RemoteAddr(), resp, onFound)
		})
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
	t.log.Warn("Failed to send discovery request", zap.String("dest", dest), zap.Error(err))
}

func (t *Transport) handleResponse(ctx context.Context, from net.Addr, msg *pool.Message, onFound func(*discovery.Resource)) {
	if ctx.Err() != nil {
		return
	}
	resp, err := fromPool(msg)
	if err != nil {
		t.log.Debug("Ignoring unreadable response", zap.Stringer("from", from), zap.Error(err))
		return
	}
	if !protocol.IsSuccess(resp.Code) {
		t.log.Debug("Discovery rejected", zap.Stringer("from", from), zap.Stringer("code", resp.Code))
		return
	}
	if !resp.CBOR() {
		t.log.Debug("Unsupported content format", zap.Stringer("from", from))
		return
	}

	ct := discovery.ConnIP
	if ua, ok := from.(*net.UDPAddr); ok && ua.IP.To4() == nil {
		ct |= discovery.ConnIPv6
	}
	resources, err := oic.Resources(resp.Payload, scheme+from.String(), ct, t.now())
	if err != nil {
		t.log.Warn("Failed to decode discovery response", zap.Stringer("from", from), zap.Error(err))
		return
	}
	for _, r := range resources {
		if ctx.Err() != nil {
			return
		}
		onFound(r)
	}
}

func fromPool(msg *pool.Message) (*protocol.Response, error) {
	body, err := msg.ReadBody()
	if err != nil {
		return nil, err
	}
	r := &protocol.Response{Code: msg.Code(), Payload: body}
	if cf, err := msg.ContentFormat(); err == nil {
		r.SetFormat(cf)
	}
	if seq, err := msg.Observe(); err == nil {
		r.Sequence = seq
	}
	return r, nil
}

// Scheme returns the host prefix this transport answers for.
func (t *Transport) Scheme() string {
	return scheme
}

func (t *Transport) dial(host string) (*client.Conn, error) {
	addr, err := ResolveTarget(host)
	if err != nil {
		return nil, err
	}
	cc, err := udp.Dial(addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return cc, nil
}

// Get reads the representation of href on host.
func (t *Transport) Get(ctx context.Context, host, href string) (*protocol.Response, error) {
	cc, err := t.dial(host)
	if err != nil {
		return nil, err
	}
	defer cc.Close()

	path, queries := protocol.SplitURI(href)
	resp, err := cc.Get(ctx, path, protocol.QueryOptions(queries)...)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", href, err)
	}
	return fromPool(resp)
}

// Put writes a CBOR payload to href on host.
func (t *Transport) Put(ctx context.Context, host, href string, payload []byte) (*protocol.Response, error) {
	cc, err := t.dial(host)
	if err != nil {
		return nil, err
	}
	defer cc.Close()

	path, queries := protocol.SplitURI(href)
	resp, err := cc.Put(ctx, path, message.AppCBOR, bytes.NewReader(payload), protocol.QueryOptions(queries)...)
	if err != nil {
		return nil, fmt.Errorf("PUT %s failed: %w", href, err)
	}
	return fromPool(resp)
}

// Observe registers an observation of href and hands every notification
// to onNotify until ctx is done, then deregisters.
func (t *Transport) Observe(ctx context.Context, host, href string, onNotify func(*protocol.Response)) error {
	cc, err := t.dial(host)
	if err != nil {
		return err
	}
	path, queries := protocol.SplitURI(href)
	go func() {
		defer cc.Close()
		obs, err := cc.Observe(ctx, path, func(n *pool.Message) {
			resp, err := fromPool(n)
			if err != nil {
				t.log.Debug("Ignoring unreadable notification", zap.String("href", href), zap.Error(err))
				return
			}
			onNotify(resp)
		}, protocol.QueryOptions(queries)...)
		if err != nil {
			if ctx.Err() == nil {
				t.log.Warn("Observation failed", zap.String("host", host), zap.String("href", href), zap.Error(err))
			}
			return
		}
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if err := obs.Cancel(cctx); err != nil {
			t.log.Debug("Failed to cancel observation", zap.String("href", href), zap.Error(err))
		}
	}()
	return nil
}

// ResolveTarget turns "coap://host[:port]" or "host[:port]" into a UDP
// address, defaulting the port to 5683.
func ResolveTarget(target string) (*net.UDPAddr, error) {
	if !strings.Contains(target, "://") {
		target = scheme + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}
	if u.Scheme != "coap" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid target %q: missing host", target)
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(DefaultPort)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", target, err)
	}
	return addr, nil
}

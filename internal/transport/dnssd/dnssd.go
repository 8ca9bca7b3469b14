package dnssd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
)

const (
	// ServiceType is the DNS-SD service type OIC servers register.
	ServiceType = "_oic._udp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultPort is the CoAP port assumed when an entry has none.
	DefaultPort = 5683

	// DefaultPath is reported when the TXT record carries no path.
	DefaultPath = discovery.DefaultQuery
)

// ErrUnicast is returned for targeted queries, which DNS-SD cannot serve.
var ErrUnicast = errors.New("dns-sd only supports multicast discovery")

// Transport discovers OIC servers announced over DNS-SD. Each announced
// instance is reported as one resource.
type Transport struct {
	// Service is the service type to browse, e.g. "_oic._udp".
	Service string

	// Domain is the browse domain.
	Domain string

	// Interfaces restricts browsing. Empty means all multicast interfaces.
	Interfaces []net.Interface

	log *zap.Logger
	now func() time.Time
}

// NewTransport creates a DNS-SD transport with default settings
func NewTransport(log *zap.Logger) *Transport {
	if log == nil {
		log = logging.Named("dnssd")
	}
	return &Transport{
		Service: ServiceType,
		Domain:  ServiceDomain,
		log:     log,
		now:     time.Now,
	}
}

// Connectivity returns the tags this transport serves.
func (t *Transport) Connectivity() discovery.ConnectivityType {
	return discovery.ConnDNSSD
}

// FindResource browses for instances until ctx is done. Only multicast
// queries (empty target) are supported. An "rt=" filter in query limits
// results to matching announcements.
func (t *Transport) FindResource(ctx context.Context, target, query string, ct discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	if target != "" {
		return ErrUnicast
	}

	var opts []zeroconf.ClientOption
	if len(t.Interfaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(t.Interfaces))
	}
	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	rtFilter := queryResourceType(query)
	entries := make(chan *zeroconf.ServiceEntry)

	// Closed by the resolver when ctx is done
	go func() {
		for entry := range entries {
			r := t.parseServiceEntry(entry)
			if r == nil {
				continue
			}
			if rtFilter != "" && !r.HasResourceType(rtFilter) {
				continue
			}
			onFound(r)
		}
	}()

	if err := resolver.Browse(ctx, t.Service, t.Domain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	t.log.Debug("Browsing", zap.String("service", t.Service), zap.String("domain", t.Domain))
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a resource.
// Returns nil if the entry has no usable address.
func (t *Transport) parseServiceEntry(entry *zeroconf.ServiceEntry) *discovery.Resource {
	if entry == nil {
		return nil
	}

	// Get IP address (prefer IPv4)
	ct := discovery.ConnIP | discovery.ConnDNSSD
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}

	// Fallback to IPv6 if no IPv4
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
		ct |= discovery.ConnIPv6
	}

	if ip == "" {
		t.log.Debug("Ignoring entry without address", zap.String("instance", entry.Instance))
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	path := metadata["path"]
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var rts []string
	for _, rt := range strings.Split(metadata["rt"], ",") {
		if rt = strings.TrimSpace(rt); rt != "" {
			rts = append(rts, rt)
		}
	}

	return &discovery.Resource{
		Host:          "coap://" + net.JoinHostPort(ip, strconv.Itoa(port)),
		Path:          path,
		ResourceTypes: rts,
		Connectivity:  ct,
		DiscoveredAt:  t.now(),
	}
}

// queryResourceType extracts the value of an "rt=" query parameter.
func queryResourceType(query string) string {
	i := strings.IndexByte(query, '?')
	if i < 0 {
		return ""
	}
	for _, kv := range strings.Split(query[i+1:], "&") {
		if v, ok := strings.CutPrefix(kv, "rt="); ok {
			return v
		}
	}
	return ""
}

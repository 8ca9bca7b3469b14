package discovery

import (
	"fmt"
	"strings"
	"time"
)

// ConnectivityType is a set of transport tags describing how a resource
// was reached. Values combine with bitwise OR.
type ConnectivityType uint32

const (
	// ConnIP marks resources found over IP (CoAP over UDP).
	ConnIP ConnectivityType = 1 << iota
	// ConnGATT marks resources found over Bluetooth LE GATT.
	ConnGATT
	// ConnDNSSD marks IP resources announced through DNS-SD.
	ConnDNSSD
	// ConnIPv6 marks IP resources reached over IPv6.
	ConnIPv6
)

// ShortRange is the connectivity set queried during per-host discovery.
const ShortRange = ConnGATT

// Multicast is the connectivity set queried during the multicast pass.
const Multicast = ConnIP | ConnDNSSD

var connectivityNames = []struct {
	t    ConnectivityType
	name string
}{
	{ConnIP, "ip"},
	{ConnGATT, "gatt"},
	{ConnDNSSD, "dnssd"},
	{ConnIPv6, "ipv6"},
}

// Has reports whether every tag in other is present in c.
func (c ConnectivityType) Has(other ConnectivityType) bool {
	return other != 0 && c&other == other
}

// Intersects reports whether c and other share at least one tag.
func (c ConnectivityType) Intersects(other ConnectivityType) bool {
	return c&other != 0
}

// Tags returns the tag names in a stable order.
func (c ConnectivityType) Tags() []string {
	tags := make([]string, 0, len(connectivityNames))
	for _, n := range connectivityNames {
		if c&n.t != 0 {
			tags = append(tags, n.name)
		}
	}
	return tags
}

// String returns the tags joined with "|", or "none".
func (c ConnectivityType) String() string {
	tags := c.Tags()
	if len(tags) == 0 {
		return "none"
	}
	return strings.Join(tags, "|")
}

// ParseConnectivity parses a "|" or "," separated list of tag names.
func ParseConnectivity(s string) (ConnectivityType, error) {
	var c ConnectivityType
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(strings.ToLower(part))
		found := false
		for _, n := range connectivityNames {
			if n.name == part {
				c |= n.t
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown connectivity tag %q", part)
		}
	}
	return c, nil
}

// MarshalText encodes the set as its string form.
func (c ConnectivityType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes the string form produced by MarshalText.
func (c *ConnectivityType) UnmarshalText(text []byte) error {
	if string(text) == "none" || len(text) == 0 {
		*c = 0
		return nil
	}
	parsed, err := ParseConnectivity(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Resource is one discovered resource handle.
//
// Identity for reporting is the (Host, Path) pair, see UniqueID, but
// nothing in this package enforces uniqueness: repeated announcements are
// kept as separate entries.
type Resource struct {
	// Host is the endpoint address including scheme,
	// e.g. "coap://192.168.1.20:5683" or "coap+gatt://C0:FA:AC:CF:FA:0A".
	Host string `json:"host"`

	// Path is the resource URI path, e.g. "/bme280_0/ambtmp".
	Path string `json:"path"`

	ResourceTypes []string `json:"resource_types"`
	Interfaces    []string `json:"interfaces,omitempty"`

	// Connectivity records which transport the resource was found over.
	Connectivity ConnectivityType `json:"connectivity"`

	Observable bool `json:"observable"`

	DiscoveredAt time.Time `json:"discovered_at"`
}

// UniqueID returns the identity key of the resource.
func (r *Resource) UniqueID() string {
	return UniqueID(r.Host, r.Path)
}

// HasResourceType reports whether rt is one of the resource types.
func (r *Resource) HasResourceType(rt string) bool {
	for _, t := range r.ResourceTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// String returns a compact representation for logs and plain output.
func (r *Resource) String() string {
	return fmt.Sprintf("%s%s %v (%s)", r.Host, r.Path, r.ResourceTypes, r.Connectivity)
}

// UniqueID forms the resource identity key by concatenating the host
// address and the resource path (e.g. "coap+gatt://AA:BB:CC:DD:EE:FF/light/1").
// Callers use it to deduplicate across sessions.
func UniqueID(host, path string) string {
	return host + path
}

// ScanCandidate is a host observed during a short-range scan together with
// its raw advertisement metadata.
type ScanCandidate struct {
	Address      string
	Name         string
	RSSI         int16
	ServiceUUIDs []string
}

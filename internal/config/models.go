package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// Registry represents the entire user configuration file.
// This stores known hosts and application preferences.
type Registry struct {
	Version     int              `yaml:"version"`
	Hosts       map[string]*Host `yaml:"hosts,omitempty"` // Keyed by host address
	Preferences *Preferences     `yaml:"preferences,omitempty"`
}

// Host represents what is remembered about one discovered host.
type Host struct {
	Nickname  string    `yaml:"nickname,omitempty"`  // User-friendly name
	Transport string    `yaml:"transport,omitempty"` // Connectivity it was last seen on, e.g. "gatt"
	LastSeen  time.Time `yaml:"last_seen,omitempty"` // Last discovery time
	Resources int       `yaml:"resources,omitempty"` // Resources reported at LastSeen
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	Discovery *DiscoveryPrefs `yaml:"discovery,omitempty"`
}

// DiscoveryPrefs holds the defaults for a discovery session. Command line
// flags override them.
type DiscoveryPrefs struct {
	EnableShortRange bool          `yaml:"enable_short_range"`
	EnableMulticast  bool          `yaml:"enable_multicast"`
	Whitelist        []string      `yaml:"whitelist,omitempty"`      // Short-range hosts queried without scanning
	ScanDuration     time.Duration `yaml:"scan_duration"`            // e.g. "10s"
	PerHostTimeout   time.Duration `yaml:"per_host_timeout"`         // e.g. "15s"
	Grace            time.Duration `yaml:"grace"`                    // Extra wait after a host's first response
	MulticastTimeout time.Duration `yaml:"multicast_timeout"`        // e.g. "15s"
	ServiceUUID      string        `yaml:"service_uuid,omitempty"`   // GATT service to scan for
	Query            string        `yaml:"query,omitempty"`          // Discovery URI, default "/oic/res"
	DNSSD            bool          `yaml:"dnssd"`                    // Also browse DNS-SD during multicast
	DNSSDService     string        `yaml:"dnssd_service,omitempty"`  // e.g. "_oic._udp"
	Adapter          string        `yaml:"adapter,omitempty"`        // Bluetooth adapter, e.g. "hci0"
	IPv6Interface    string        `yaml:"ipv6_interface,omitempty"` // Also query ff02::158 on this interface
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Hosts:   make(map[string]*Host),
		Preferences: &Preferences{
			Discovery: DefaultDiscoveryPrefs(),
		},
	}
}

// DefaultDiscoveryPrefs mirrors discovery.DefaultOptions.
func DefaultDiscoveryPrefs() *DiscoveryPrefs {
	opts := discovery.DefaultOptions()
	return &DiscoveryPrefs{
		EnableShortRange: opts.EnableShortRange,
		EnableMulticast:  opts.EnableMulticast,
		ScanDuration:     opts.ScanDuration,
		PerHostTimeout:   opts.PerHostTimeout,
		Grace:            opts.Grace,
		MulticastTimeout: opts.MulticastTimeout,
		ServiceUUID:      opts.ServiceUUID.String(),
		Query:            opts.Query,
		DNSSD:            true,
		DNSSDService:     "_oic._udp",
		Adapter:          "hci0",
	}
}

// DiscoveryOptions converts the preferences into session options. Unset
// fields fall back to the defaults.
func (p *DiscoveryPrefs) DiscoveryOptions() (discovery.Options, error) {
	opts := discovery.DefaultOptions()
	if p == nil {
		return opts, nil
	}

	opts.EnableShortRange = p.EnableShortRange
	opts.EnableMulticast = p.EnableMulticast
	opts.Whitelist = append([]string(nil), p.Whitelist...)
	if p.ScanDuration > 0 {
		opts.ScanDuration = p.ScanDuration
	}
	if p.PerHostTimeout > 0 {
		opts.PerHostTimeout = p.PerHostTimeout
	}
	if p.Grace > 0 {
		opts.Grace = p.Grace
	}
	if p.MulticastTimeout > 0 {
		opts.MulticastTimeout = p.MulticastTimeout
	}
	if p.ServiceUUID != "" {
		id, err := uuid.Parse(p.ServiceUUID)
		if err != nil {
			return opts, fmt.Errorf("invalid service_uuid %q: %w", p.ServiceUUID, err)
		}
		opts.ServiceUUID = id
	}
	if p.Query != "" {
		opts.Query = p.Query
	}
	return opts, nil
}

// DiscoveryPrefs returns the discovery preferences, creating defaults if
// the file had none.
func (r *Registry) DiscoveryPrefs() *DiscoveryPrefs {
	if r.Preferences == nil {
		r.Preferences = &Preferences{}
	}
	if r.Preferences.Discovery == nil {
		r.Preferences.Discovery = DefaultDiscoveryPrefs()
	}
	return r.Preferences.Discovery
}

// GetHost retrieves host metadata by address.
// Returns nil if the host doesn't exist in the registry.
func (r *Registry) GetHost(addr string) *Host {
	return r.Hosts[addr]
}

// EnsureHost ensures a host entry exists in the registry.
// Returns the host entry (existing or newly created).
func (r *Registry) EnsureHost(addr string) *Host {
	if r.Hosts == nil {
		r.Hosts = make(map[string]*Host)
	}

	if host, exists := r.Hosts[addr]; exists {
		return host
	}

	host := &Host{}
	r.Hosts[addr] = host
	return host
}

// UpdateHostLastSeen records a sighting of a host.
func (r *Registry) UpdateHostLastSeen(addr, transport string, resources int, at time.Time) {
	host := r.EnsureHost(addr)
	host.LastSeen = at
	host.Transport = transport
	host.Resources = resources
}

// SetHostNickname sets a user-friendly nickname for a host.
func (r *Registry) SetHostNickname(addr, nickname string) {
	host := r.EnsureHost(addr)
	host.Nickname = nickname
}

// ResolveHost returns the address of the host nicknamed name, or name
// itself when no host carries that nickname.
func (r *Registry) ResolveHost(name string) string {
	for addr, host := range r.Hosts {
		if host != nil && host.Nickname != "" && host.Nickname == name {
			return addr
		}
	}
	return name
}

package discovery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// OICServiceUUID is the GATT service advertised by OIC servers over
// Bluetooth LE. Scans are filtered to it by default.
var OICServiceUUID = uuid.MustParse("ADE3D529-C784-4F63-A987-EB69F70EE816")

// DefaultQuery is the well-known OIC resource directory.
const DefaultQuery = "/oic/res"

// Default timing
const (
	DefaultScanDuration     = 10 * time.Second
	DefaultPerHostTimeout   = 15 * time.Second
	DefaultGrace            = 1 * time.Second
	DefaultMulticastTimeout = 15 * time.Second
)

// Options configures one discovery session.
type Options struct {
	// Whitelist, when non-empty, replaces the scan: these hosts are queried
	// in order, verbatim.
	Whitelist []string `json:"whitelist,omitempty"`

	EnableShortRange bool `json:"enable_short_range"`
	EnableMulticast  bool `json:"enable_multicast"`

	ScanDuration     time.Duration `json:"scan_duration"`
	PerHostTimeout   time.Duration `json:"per_host_timeout"`
	Grace            time.Duration `json:"grace"`
	MulticastTimeout time.Duration `json:"multicast_timeout"`

	// ServiceUUID filters the scan. uuid.Nil disables filtering.
	ServiceUUID uuid.UUID `json:"service_uuid"`

	// Query is the resource discovery path sent to every host.
	Query string `json:"query"`
}

// DefaultOptions returns options with both mediums enabled and the
// standard timing.
func DefaultOptions() Options {
	return Options{
		EnableShortRange: true,
		EnableMulticast:  true,
		ScanDuration:     DefaultScanDuration,
		PerHostTimeout:   DefaultPerHostTimeout,
		Grace:            DefaultGrace,
		MulticastTimeout: DefaultMulticastTimeout,
		ServiceUUID:      OICServiceUUID,
		Query:            DefaultQuery,
	}
}

// HasWhitelist reports whether the scan is replaced by a fixed host list.
func (o Options) HasWhitelist() bool {
	return len(o.Whitelist) > 0
}

// Validate checks the options for the enabled mediums. All problems are
// reported together, wrapped in ErrInvalidOptions.
func (o Options) Validate() error {
	var err error

	if o.EnableShortRange {
		if !o.HasWhitelist() && o.ScanDuration <= 0 {
			err = multierr.Append(err, errors.New("scan duration must be positive"))
		}
		if o.PerHostTimeout <= 0 {
			err = multierr.Append(err, errors.New("per-host timeout must be positive"))
		}
		if o.Grace < 0 {
			err = multierr.Append(err, errors.New("grace period must not be negative"))
		}
		for i, host := range o.Whitelist {
			if strings.TrimSpace(host) == "" {
				err = multierr.Append(err, fmt.Errorf("whitelist entry %d is empty", i))
			}
		}
	}

	if o.EnableMulticast && o.MulticastTimeout <= 0 {
		err = multierr.Append(err, errors.New("multicast timeout must be positive"))
	}

	if (o.EnableShortRange || o.EnableMulticast) && !strings.HasPrefix(o.Query, "/") {
		err = multierr.Append(err, fmt.Errorf("query %q must be an absolute path", o.Query))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

package main

import (
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/transport"
	"github.com/sensoroic/sensoroic/internal/transport/bluez"
	"github.com/sensoroic/sensoroic/internal/transport/coapip"
	"github.com/sensoroic/sensoroic/internal/transport/dnssd"
)

// stack is the coordinator with the transports behind it.
type stack struct {
	coordinator *discovery.Coordinator
	router      *transport.Router
	adapter     *bluez.Adapter // nil when Bluetooth is unavailable
}

// newStack wires the mediums the preferences enable. A missing system bus
// only disables short-range discovery.
func newStack(prefs *config.DiscoveryPrefs) *stack {
	log := logging.Named("cli")
	s := &stack{router: transport.NewRouter(nil)}
	var opts []discovery.Option

	if prefs.EnableMulticast {
		coap := coapip.New(nil)
		if prefs.IPv6Interface != "" {
			coap.WithIPv6Zone(prefs.IPv6Interface)
		}
		s.router.Register(coap)
		if prefs.DNSSD {
			d := dnssd.NewTransport(nil)
			if prefs.DNSSDService != "" {
				d.Service = prefs.DNSSDService
			}
			s.router.Register(d)
		}
	}

	if prefs.EnableShortRange {
		adapter, err := bluez.Open(prefs.Adapter, nil)
		if err != nil {
			log.Warn("Bluetooth unavailable, short-range discovery disabled", zap.Error(err))
		} else {
			s.adapter = adapter
			s.router.Register(bluez.NewTransport(adapter, nil))
			opts = append(opts, discovery.WithScanAdapter(adapter), discovery.WithCacheRefresher(adapter))
		}
	}

	log.Debug("Transports ready", zap.Stringer("connectivity", s.router.Connectivity()))
	s.coordinator = discovery.NewCoordinator(s.router, opts...)
	return s
}

func (s *stack) Close() {
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			logging.Debug("Failed to close Bluetooth adapter", zap.Error(err))
		}
	}
}

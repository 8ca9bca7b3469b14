//go:build integration

package dnssd

import (
	"context"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

func TestFindResourceLive(t *testing.T) {
	server, err := zeroconf.Register("sensoroic-test", ServiceType, ServiceDomain, 5683,
		[]string{"path=/light/1", "rt=oic.r.switch.binary"}, nil)
	if err != nil {
		t.Fatalf("zeroconf.Register() error = %v", err)
	}
	defer server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	found := make(chan *discovery.Resource, 8)
	tr := NewTransport(nil)
	if err := tr.FindResource(ctx, "", "/oic/res?rt=oic.r.switch.binary", discovery.ConnDNSSD, func(r *discovery.Resource) {
		found <- r
	}); err != nil {
		t.Fatalf("FindResource() error = %v", err)
	}

	select {
	case r := <-found:
		if r.Path != "/light/1" {
			t.Errorf("Path = %q, want /light/1", r.Path)
		}
	case <-ctx.Done():
		t.Fatal("registered service not found")
	}
}

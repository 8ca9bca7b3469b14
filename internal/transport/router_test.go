package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/protocol"
)

type stubMedium struct {
	ct    discovery.ConnectivityType
	err   error
	calls int
	found []*discovery.Resource
}

func (s *stubMedium) Connectivity() discovery.ConnectivityType { return s.ct }

func (s *stubMedium) FindResource(_ context.Context, _, _ string, _ discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	for _, r := range s.found {
		onFound(r)
	}
	return nil
}

func TestRouterDispatchesByConnectivity(t *testing.T) {
	ip := &stubMedium{ct: discovery.ConnIP, found: []*discovery.Resource{{Host: "coap://10.0.0.2:5683", Path: "/a"}}}
	dns := &stubMedium{ct: discovery.ConnDNSSD, found: []*discovery.Resource{{Host: "coap://10.0.0.3:5683", Path: "/b"}}}
	gatt := &stubMedium{ct: discovery.ConnGATT}
	r := NewRouter(nil, ip, dns, gatt)

	var got []string
	err := r.FindResource(context.Background(), "", "/oic/res", discovery.Multicast, func(res *discovery.Resource) {
		got = append(got, res.Path)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a", "/b"}, got)
	assert.Equal(t, 1, ip.calls)
	assert.Equal(t, 1, dns.calls)
	assert.Zero(t, gatt.calls)
	assert.Equal(t, discovery.ConnIP|discovery.ConnDNSSD|discovery.ConnGATT, r.Connectivity())
}

func TestRouterPartialFailure(t *testing.T) {
	ok := &stubMedium{ct: discovery.ConnIP}
	bad := &stubMedium{ct: discovery.ConnDNSSD, err: errors.New("no multicast interface")}
	r := NewRouter(nil, ok, bad)

	err := r.FindResource(context.Background(), "", "/oic/res", discovery.Multicast, func(*discovery.Resource) {})
	assert.NoError(t, err)
}

func TestRouterAllFail(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	r := NewRouter(nil,
		&stubMedium{ct: discovery.ConnIP, err: errA},
		&stubMedium{ct: discovery.ConnDNSSD, err: errB},
	)

	err := r.FindResource(context.Background(), "", "/oic/res", discovery.Multicast, func(*discovery.Resource) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestRouterNoRoute(t *testing.T) {
	r := NewRouter(nil, &stubMedium{ct: discovery.ConnIP})
	r.Register(nil)

	err := r.FindResource(context.Background(), "AA:BB:CC:DD:EE:FF", "/oic/res", discovery.ShortRange, func(*discovery.Resource) {})
	assert.ErrorIs(t, err, ErrNoRoute)
}

type stubResourceMedium struct {
	stubMedium
	scheme string
	hosts  []string
}

func (s *stubResourceMedium) Scheme() string { return s.scheme }

func (s *stubResourceMedium) Get(_ context.Context, host, _ string) (*protocol.Response, error) {
	s.hosts = append(s.hosts, host)
	return protocol.NewResponse(codes.Content, nil), nil
}

func (s *stubResourceMedium) Put(_ context.Context, host, _ string, _ []byte) (*protocol.Response, error) {
	s.hosts = append(s.hosts, host)
	return protocol.NewResponse(codes.Changed, nil), nil
}

func (s *stubResourceMedium) Observe(_ context.Context, host, _ string, _ func(*protocol.Response)) error {
	s.hosts = append(s.hosts, host)
	return nil
}

func TestRouterRoutesRequestsByScheme(t *testing.T) {
	ip := &stubResourceMedium{stubMedium: stubMedium{ct: discovery.ConnIP}, scheme: "coap://"}
	gatt := &stubResourceMedium{stubMedium: stubMedium{ct: discovery.ConnGATT}, scheme: "coap+gatt://"}
	dns := &stubMedium{ct: discovery.ConnDNSSD}
	r := NewRouter(nil, dns, ip, gatt)
	ctx := context.Background()

	_, err := r.Get(ctx, "coap://10.0.0.2:5683", "/light/1")
	require.NoError(t, err)
	resp, err := r.Put(ctx, "coap+gatt://C0:FA:AC:CF:FA:0A", "/light/1", nil)
	require.NoError(t, err)
	assert.Equal(t, codes.Changed, resp.Code)
	require.NoError(t, r.Observe(ctx, "coap+gatt://C0:FA:AC:CF:FA:0A", "/bme280_0/tmp", func(*protocol.Response) {}))

	assert.Equal(t, []string{"coap://10.0.0.2:5683"}, ip.hosts)
	assert.Equal(t, []string{"coap+gatt://C0:FA:AC:CF:FA:0A", "coap+gatt://C0:FA:AC:CF:FA:0A"}, gatt.hosts)

	_, err = r.Get(ctx, "coaps://10.0.0.2:5684", "/light/1")
	assert.ErrorIs(t, err, ErrNoRoute)
}

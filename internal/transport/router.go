package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/protocol"
)

// ErrNoRoute is returned when no registered transport serves the requested
// connectivity.
var ErrNoRoute = errors.New("no transport for connectivity")

// Medium is a transport bound to the connectivity tags it serves.
type Medium interface {
	discovery.Transport
	Connectivity() discovery.ConnectivityType
}

// Router fans a discovery query out to every registered medium whose
// connectivity intersects the requested one.
type Router struct {
	mu      sync.RWMutex
	mediums []Medium
	log     *zap.Logger
}

// NewRouter creates a router over the given mediums.
func NewRouter(log *zap.Logger, mediums ...Medium) *Router {
	if log == nil {
		log = logging.Named("router")
	}
	r := &Router{log: log}
	for _, m := range mediums {
		r.Register(m)
	}
	return r
}

// Register adds a medium. Nil mediums are ignored.
func (r *Router) Register(m Medium) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mediums = append(r.mediums, m)
	r.log.Debug("Registered transport", zap.Stringer("connectivity", m.Connectivity()))
}

// Connectivity is the union of every registered medium's tags.
func (r *Router) Connectivity() discovery.ConnectivityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ct discovery.ConnectivityType
	for _, m := range r.mediums {
		ct |= m.Connectivity()
	}
	return ct
}

// FindResource dispatches to each matching medium. It fails only when no
// medium matches or every matching medium fails.
func (r *Router) FindResource(ctx context.Context, target, query string, ct discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	r.mu.RLock()
	var matched []Medium
	for _, m := range r.mediums {
		if m.Connectivity().Intersects(ct) {
			matched = append(matched, m)
		}
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		return fmt.Errorf("%w %s", ErrNoRoute, ct)
	}

	var errs error
	started := 0
	for _, m := range matched {
		if err := m.FindResource(ctx, target, query, ct, onFound); err != nil {
			r.log.Debug("Transport rejected query",
				zap.Stringer("medium", m.Connectivity()),
				zap.String("target", target),
				zap.Error(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", m.Connectivity(), err))
			continue
		}
		started++
	}
	if started == 0 {
		return errs
	}
	if errs != nil {
		r.log.Warn("Some transports failed", zap.Int("started", started), zap.Error(errs))
	}
	return nil
}

// ResourceMedium serves single resource requests for hosts carrying its
// scheme, e.g. "coap://" or "coap+gatt://".
type ResourceMedium interface {
	Scheme() string
	Get(ctx context.Context, host, href string) (*protocol.Response, error)
	Put(ctx context.Context, host, href string, payload []byte) (*protocol.Response, error)
	Observe(ctx context.Context, host, href string, onNotify func(*protocol.Response)) error
}

// resourceMedium returns the registered medium serving host.
func (r *Router) resourceMedium(host string) (ResourceMedium, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.mediums {
		rm, ok := m.(ResourceMedium)
		if ok && strings.HasPrefix(host, rm.Scheme()) {
			return rm, nil
		}
	}
	return nil, fmt.Errorf("%w host %q", ErrNoRoute, host)
}

// Get reads href on host through the medium owning its scheme.
func (r *Router) Get(ctx context.Context, host, href string) (*protocol.Response, error) {
	m, err := r.resourceMedium(host)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, host, href)
}

// Put writes href on host through the medium owning its scheme.
func (r *Router) Put(ctx context.Context, host, href string, payload []byte) (*protocol.Response, error) {
	m, err := r.resourceMedium(host)
	if err != nil {
		return nil, err
	}
	return m.Put(ctx, host, href, payload)
}

// Observe starts an observation through the medium owning host's scheme.
func (r *Router) Observe(ctx context.Context, host, href string, onNotify func(*protocol.Response)) error {
	m, err := r.resourceMedium(host)
	if err != nil {
		return err
	}
	r.log.Debug("Observing resource", zap.String("host", host), zap.String("href", href))
	return m.Observe(ctx, host, href, onNotify)
}

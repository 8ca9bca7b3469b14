package discovery

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/logging"
)

// ResultAggregator collects resources reported by transports for one
// session. It is safe for concurrent use; transport callbacks are
// serialized by its mutex.
//
// While the session is in PhaseShortRangeDiscovery, the first response
// from the host currently being queried posts an early-advance signal.
// Late answers from earlier hosts are recorded but never signal. The
// signal channel holds one pending value, so a signal posted before the
// worker starts waiting is not lost.
type ResultAggregator struct {
	mu        sync.Mutex
	phase     Phase
	current   string
	resources []*Resource
	responded map[string]struct{}
	sealed    bool
	advance   chan struct{}
	log       *zap.Logger
}

// NewResultAggregator returns an empty aggregator in PhaseInit.
func NewResultAggregator(log *zap.Logger) *ResultAggregator {
	if log == nil {
		log = logging.GetLogger()
	}
	return &ResultAggregator{
		responded: make(map[string]struct{}),
		advance:   make(chan struct{}, 1),
		log:       log,
	}
}

// RecordResource appends r. Duplicates are kept.
func (a *ResultAggregator) RecordResource(r *Resource) {
	if r == nil {
		return
	}
	a.mu.Lock()
	if a.sealed {
		a.mu.Unlock()
		a.log.Debug("Dropping late resource", zap.String("host", r.Host), zap.String("path", r.Path))
		return
	}
	a.resources = append(a.resources, r)
	a.mu.Unlock()

	logging.LogResource(a.log, r.Host, r.Path, r.ResourceTypes)
}

// RecordHostResponse marks host as having responded. It returns true the
// first time host is seen. Only the host set by expect can wake the
// worker.
func (a *ResultAggregator) RecordHostResponse(host string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed || host == "" {
		return false
	}
	if _, ok := a.responded[host]; ok {
		return false
	}
	a.responded[host] = struct{}{}

	if a.phase == PhaseShortRangeDiscovery && host == a.current {
		select {
		case a.advance <- struct{}{}:
		default:
		}
	}
	return true
}

// OnResourceFound is the callback handed to transports. Only resources
// carrying the short-range tag count as host responses.
func (a *ResultAggregator) OnResourceFound(r *Resource) {
	if r == nil {
		return
	}
	a.RecordResource(r)
	if r.Connectivity.Intersects(ShortRange) {
		a.RecordHostResponse(r.Host)
	}
}

// HostCallback returns the callback for a unicast query to host. Every
// short-range resource it receives counts as a response from host, under
// the address the query was sent to.
func (a *ResultAggregator) HostCallback(host string) func(*Resource) {
	return func(r *Resource) {
		if r == nil {
			return
		}
		a.RecordResource(r)
		if r.Connectivity.Intersects(ShortRange) {
			a.RecordHostResponse(host)
		}
	}
}

// Resources returns a snapshot of the resources recorded so far, in
// arrival order.
func (a *ResultAggregator) Resources() []*Resource {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Resource, len(a.resources))
	copy(out, a.resources)
	return out
}

// Len returns the number of recorded resources.
func (a *ResultAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.resources)
}

// RespondedHosts returns the set of hosts that answered a short-range query.
func (a *ResultAggregator) RespondedHosts() map[string]struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]struct{}, len(a.responded))
	for h := range a.responded {
		out[h] = struct{}{}
	}
	return out
}

// Advance returns the early-advance signal channel.
func (a *ResultAggregator) Advance() <-chan struct{} {
	return a.advance
}

// Phase returns the current session phase.
func (a *ResultAggregator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *ResultAggregator) setPhase(p Phase) Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.phase
	a.phase = p
	return prev
}

// expect makes host the one whose first response wakes the worker and
// discards a pending signal left over from a previous host. An empty host
// disables early-advance.
func (a *ResultAggregator) expect(host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = host
	select {
	case <-a.advance:
	default:
	}
}

// seal stops recording and returns the final snapshot.
func (a *ResultAggregator) seal() []*Resource {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
	out := make([]*Resource, len(a.resources))
	copy(out, a.resources)
	return out
}

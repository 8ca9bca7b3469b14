package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type delivery struct {
	after time.Duration
	res   Resource
	// late deliveries ignore cancellation of the query context, like a
	// transport that checked ctx just before calling back.
	late bool
}

// fakeTransport delivers canned resources per target on the mock clock.
// The empty target is the multicast query.
type fakeTransport struct {
	clock *clock.Mock

	mu         sync.Mutex
	deliveries map[string][]delivery
	errs       map[string]error
	calls      []string
	kinds      []ConnectivityType
}

func newFakeTransport(mock *clock.Mock) *fakeTransport {
	return &fakeTransport{
		clock:      mock,
		deliveries: make(map[string][]delivery),
		errs:       make(map[string]error),
	}
}

func (f *fakeTransport) deliver(target string, after time.Duration, r Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries[target] = append(f.deliveries[target], delivery{after: after, res: r})
}

func (f *fakeTransport) deliverLate(target string, after time.Duration, r Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries[target] = append(f.deliveries[target], delivery{after: after, res: r, late: true})
}

func (f *fakeTransport) fail(target string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[target] = err
}

func (f *fakeTransport) FindResource(ctx context.Context, target, query string, ct ConnectivityType, onFound func(*Resource)) error {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.kinds = append(f.kinds, ct)
	ds := f.deliveries[target]
	err := f.errs[target]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	for _, d := range ds {
		d := d
		f.clock.AfterFunc(d.after, func() {
			if ctx.Err() != nil && !d.late {
				return
			}
			r := d.res
			onFound(&r)
		})
	}
	return nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type candidateAt struct {
	after time.Duration
	cand  ScanCandidate
}

type fakeAdapter struct {
	clock       *clock.Mock
	unavailable bool
	startErr    error
	candidates  []candidateAt

	mu      sync.Mutex
	started int
	stopped int
	filter  uuid.UUID
}

func (a *fakeAdapter) Available(ctx context.Context) error {
	if a.unavailable {
		return errors.New("adapter powered off")
	}
	return nil
}

func (a *fakeAdapter) StartScan(ctx context.Context, filter uuid.UUID, found func(ScanCandidate)) error {
	if a.startErr != nil {
		return a.startErr
	}
	a.mu.Lock()
	a.started++
	a.filter = filter
	a.mu.Unlock()

	for _, c := range a.candidates {
		c := c
		a.clock.AfterFunc(c.after, func() { found(c.cand) })
	}
	return nil
}

func (a *fakeAdapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	return nil
}

func (a *fakeAdapter) counts() (started, stopped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started, a.stopped
}

type fakeRefresher struct {
	hosts chan string
	err   error
	// block, when set, holds RefreshCache until it is closed or ctx ends.
	block chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{hosts: make(chan string, 16)}
}

func (r *fakeRefresher) RefreshCache(ctx context.Context, host string) error {
	r.hosts <- host
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

// recorder is a Listener and ProgressListener that records every call.
type recorder struct {
	mu        sync.Mutex
	completed [][]*Resource
	failed    int
	progress  []Progress
}

func (r *recorder) OnCompleted(resources []*Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, resources)
}

func (r *recorder) OnFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *recorder) OnProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) terminalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + r.failed
}

func (r *recorder) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.progress {
		if len(out) == 0 || out[len(out)-1] != p.Label {
			out = append(out, p.Label)
		}
	}
	return out
}

// drive advances the mock clock in steps until the session ends.
func drive(t *testing.T, mock *clock.Mock, s *Session, step time.Duration) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for {
		select {
		case <-s.Done():
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("session did not finish, phase %s", s.Phase())
		}
		mock.Add(step)
	}
}

// driveUntil advances the mock clock until cond holds.
func driveUntil(t *testing.T, mock *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		mock.Add(step)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish, phase %s", s.Phase())
	}
}

func gattResource(host, path string) Resource {
	return Resource{
		Host:          host,
		Path:          path,
		ResourceTypes: []string{"x.mynewt.snsr.temp"},
		Connectivity:  ConnGATT,
	}
}

func ipResource(host, path string) Resource {
	return Resource{
		Host:          host,
		Path:          path,
		ResourceTypes: []string{"oic.r.switch.binary"},
		Connectivity:  ConnIP,
	}
}

package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/logging"
)

// Coordinator runs discovery sessions: an optional short-range scan, serial
// per-host short-range queries, then one multicast query. Each session has
// its own worker goroutine and shares nothing with other sessions.
type Coordinator struct {
	transport Transport
	adapter   ScanAdapter
	refresher CacheRefresher
	clock     clock.Clock
	log       *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithScanAdapter sets the short-range scan adapter. Without one,
// short-range discovery is skipped.
func WithScanAdapter(a ScanAdapter) Option {
	return func(c *Coordinator) { c.adapter = a }
}

// WithCacheRefresher sets the optional cache refresher used on the first
// scanned host.
func WithCacheRefresher(r CacheRefresher) Option {
	return func(c *Coordinator) { c.refresher = r }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator creates a coordinator sending queries through transport.
func NewCoordinator(transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{transport: transport}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.log == nil {
		c.log = logging.Named("coordinator")
	}
	return c
}

// Session is one running discovery.
type Session struct {
	ID      string
	Options Options

	agg        *ResultAggregator
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}

	mu           sync.Mutex
	scannedHosts []string
	result       []*Resource

	started  time.Time
	finished time.Time
}

// Cancel stops the session at the next phase boundary or wait point. The
// listener still receives its terminal callback. Safe to call repeatedly.
func (s *Session) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Done is closed after the terminal callback has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns the reported resources.
func (s *Session) Wait() []*Resource {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.agg.Phase()
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.ID, s.Phase())
}

// ScannedHosts returns the hosts queried or queued for short-range
// discovery, in order.
func (s *Session) ScannedHosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.scannedHosts))
	copy(out, s.scannedHosts)
	return out
}

// Elapsed returns the time from start to the terminal report, or zero
// while the session is running.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.IsZero() {
		return 0
	}
	return s.finished.Sub(s.started)
}

// Resources returns the resources recorded so far.
func (s *Session) Resources() []*Resource {
	return s.agg.Resources()
}

func (s *Session) appendScanned(hosts []string) {
	s.mu.Lock()
	s.scannedHosts = append(s.scannedHosts, hosts...)
	s.mu.Unlock()
}

// Start validates opts and launches a session. The session runs until it
// completes, Cancel is called or ctx is done. l may be nil.
func (c *Coordinator) Start(ctx context.Context, opts Options, l Listener) (*Session, error) {
	if c.transport == nil {
		return nil, ErrNoTransport
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = ListenerFuncs{}
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:      uuid.NewString(),
		Options: opts,
		agg:     NewResultAggregator(c.log),
		cancel:  cancel,
		done:    make(chan struct{}),
		started: c.clock.Now(),
	}

	w := &worker{
		c:       c,
		s:       s,
		l:       l,
		timer:   NewTimeoutScheduler(c.clock),
		log:     c.log.With(zap.String("session", s.ID)),
		noticer: progressListener(l),
	}
	w.scanner = NewScanController(c.adapter, c.refresher, w.timer, w.log)

	w.log.Info("Discovery session started",
		zap.Bool("short_range", opts.EnableShortRange),
		zap.Bool("multicast", opts.EnableMulticast),
		zap.Strings("whitelist", opts.Whitelist),
	)

	go w.run(sctx)
	return s, nil
}

// Discover runs a session to completion and returns its resources, or
// ErrNoResources when none were found.
func (c *Coordinator) Discover(ctx context.Context, opts Options) ([]*Resource, error) {
	s, err := c.Start(ctx, opts, nil)
	if err != nil {
		return nil, err
	}
	resources := s.Wait()
	if len(resources) == 0 {
		return nil, ErrNoResources
	}
	return resources, nil
}

func progressListener(l Listener) ProgressListener {
	if pl, ok := l.(ProgressListener); ok {
		return pl
	}
	return nil
}

type worker struct {
	c       *Coordinator
	s       *Session
	l       Listener
	noticer ProgressListener
	timer   *TimeoutScheduler
	scanner *ScanController
	log     *zap.Logger
}

func (w *worker) run(ctx context.Context) {
	defer close(w.s.done)
	defer w.s.Cancel()

	opts := w.s.Options

	if !opts.EnableShortRange && !opts.EnableMulticast {
		w.log.Warn("Both discovery mediums disabled")
		w.finish(PhaseDone)
		return
	}

	if opts.EnableShortRange {
		w.shortRange(ctx)
	}

	if ctx.Err() == nil && opts.EnableMulticast {
		w.multicast(ctx)
	}

	if ctx.Err() != nil {
		w.finish(PhaseCancelled)
		return
	}
	w.finish(PhaseDone)
}

func (w *worker) shortRange(ctx context.Context) {
	opts := w.s.Options
	label := LabelShortRange

	if opts.HasWhitelist() {
		if err := w.scanner.Available(ctx); err != nil {
			w.log.Warn("Skipping short-range discovery", zap.Error(err))
			return
		}
		w.s.appendScanned(opts.Whitelist)
		label = LabelShortRangeWhitelist
	} else {
		w.transition(PhaseScanning, LabelScanning, "")
		hosts, err := w.scanner.Scan(ctx, opts.ServiceUUID, opts.ScanDuration)
		w.s.appendScanned(hosts)
		switch {
		case errors.Is(err, ErrShortRangeUnavailable):
			w.log.Warn("Skipping short-range discovery", zap.Error(err))
			return
		case ctx.Err() != nil:
			return
		case err != nil:
			w.log.Warn("Scan failed", zap.Error(err))
		}
	}

	hosts := w.s.ScannedHosts()
	w.transition(PhaseShortRangeDiscovery, label, "")

	for _, host := range hosts {
		if ctx.Err() != nil {
			return
		}
		w.notify(PhaseShortRangeDiscovery, label, host)
		if err := w.queryHost(ctx, host); err != nil {
			return
		}
	}
}

// queryHost queries one host and waits until it answers (plus the grace
// period) or the per-host timeout expires. Only responses to this query
// end the wait early. It returns an error only when ctx is done.
func (w *worker) queryHost(ctx context.Context, host string) error {
	opts := w.s.Options
	agg := w.s.agg

	agg.expect(host)
	defer agg.expect("")

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A failed query still waits out the host's window.
	w.log.Debug("Querying host", zap.String("host", host))
	if err := w.c.transport.FindResource(qctx, host, opts.Query, ShortRange, agg.HostCallback(host)); err != nil {
		w.log.Warn("Short-range query failed", zap.String("host", host), zap.Error(err))
	}

	woke, err := w.timer.WaitOrWake(ctx, opts.PerHostTimeout, agg.Advance())
	if err != nil {
		return err
	}
	if woke {
		w.log.Debug("Host responded, waiting grace period", zap.String("host", host))
		return w.timer.Wait(ctx, opts.Grace)
	}
	w.log.Debug("Host timed out", zap.String("host", host))
	return nil
}

func (w *worker) multicast(ctx context.Context) {
	opts := w.s.Options
	w.transition(PhaseMulticastDiscovery, LabelMulticast, "")

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.c.transport.FindResource(mctx, "", opts.Query, Multicast, w.s.agg.OnResourceFound); err != nil {
		w.log.Warn("Multicast query failed", zap.Error(err))
	}
	if err := w.timer.Wait(ctx, opts.MulticastTimeout); err != nil {
		w.log.Debug("Multicast wait interrupted", zap.Error(err))
	}
}

func (w *worker) transition(to Phase, label, host string) {
	from := w.s.agg.setPhase(to)
	logging.LogPhase(w.log, w.s.ID, from.String(), to.String())
	w.notify(to, label, host)
}

func (w *worker) notify(p Phase, label, host string) {
	if w.noticer == nil {
		return
	}
	w.noticer.OnProgress(Progress{
		Session:   w.s.ID,
		Phase:     p,
		Label:     label,
		Host:      host,
		Resources: w.s.agg.Len(),
	})
}

func (w *worker) finish(p Phase) {
	label := LabelDone
	if p == PhaseCancelled {
		label = LabelCancelled
	}
	w.transition(p, label, "")

	resources := w.s.agg.seal()

	w.s.mu.Lock()
	w.s.result = resources
	w.s.finished = w.c.clock.Now()
	elapsed := w.s.finished.Sub(w.s.started)
	w.s.mu.Unlock()

	w.log.Info("Discovery session finished",
		zap.Stringer("phase", p),
		zap.Int("resources", len(resources)),
		zap.Duration("elapsed", elapsed),
	)

	if len(resources) == 0 {
		w.l.OnFailed()
		return
	}
	w.l.OnCompleted(resources)
}

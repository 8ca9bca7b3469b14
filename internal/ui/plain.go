package ui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// PlainReporter prints session progress as one line per finished step, for
// output that is not a terminal. It implements discovery.Listener and
// discovery.ProgressListener.
type PlainReporter struct {
	out io.Writer

	mu       sync.Mutex
	progress *Progress
	lastHost string
}

// NewPlainReporter creates a reporter for a session started with opts.
func NewPlainReporter(out io.Writer, opts discovery.Options) *PlainReporter {
	return &PlainReporter{out: out, progress: NewDiscoveryProgress(opts)}
}

// OnProgress prints the steps the event finished and the host being
// queried, if any.
func (r *PlainReporter) OnProgress(ev discovery.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, step := range r.progress.Apply(ev) {
		_, _ = fmt.Fprintln(r.out, r.progress.RenderStep(step))
	}
	if ev.Phase == discovery.PhaseShortRangeDiscovery && ev.Host != "" && ev.Host != r.lastHost {
		r.lastHost = ev.Host
		_, _ = fmt.Fprintf(r.out, "  querying %s (%d resources so far)\n", ev.Host, ev.Resources)
	}
}

// OnCompleted prints the resource count.
func (r *PlainReporter) OnCompleted(resources []*discovery.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "  %d resources found\n", len(resources))
}

// OnFailed prints that nothing was found.
func (r *PlainReporter) OnFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, "  no resources found")
}

// RunPlain runs a session reporting to out and waits for it to finish.
// Cancelling ctx cancels the session.
func RunPlain(ctx context.Context, s Starter, opts discovery.Options, out io.Writer) (*Outcome, error) {
	session, err := s.Start(ctx, opts, NewPlainReporter(out, opts))
	if err != nil {
		return nil, err
	}
	return newOutcome(session, session.Wait()), nil
}

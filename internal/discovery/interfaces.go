package discovery

import (
	"context"

	"github.com/google/uuid"
)

// ScanAdapter is a short-range radio able to scan for advertising hosts.
type ScanAdapter interface {
	// Available returns an error when the adapter is missing or powered off.
	Available(ctx context.Context) error

	// StartScan begins scanning for hosts advertising filter and reports
	// every observation to found, possibly more than once per host, from
	// the adapter's own goroutines. uuid.Nil means no filter.
	StartScan(ctx context.Context, filter uuid.UUID, found func(ScanCandidate)) error

	StopScan() error
}

// CacheRefresher forces the platform to refresh its cached view of a
// host's services. Implementations are best-effort.
type CacheRefresher interface {
	RefreshCache(ctx context.Context, host string) error
}

// Transport issues resource discovery queries.
//
// FindResource sends query to target over the mediums in ct and returns.
// An empty target means multicast. Results are delivered to onFound on
// the transport's goroutines until ctx is cancelled. A returned error
// means the call will produce no resources.
type Transport interface {
	FindResource(ctx context.Context, target, query string, ct ConnectivityType, onFound func(*Resource)) error
}

// Listener receives the terminal report of a session. Exactly one of the
// two methods is called, once.
type Listener interface {
	OnCompleted(resources []*Resource)
	OnFailed()
}

// ProgressListener may additionally be implemented by a Listener to
// receive phase transitions.
type ProgressListener interface {
	OnProgress(p Progress)
}

// ListenerFuncs adapts plain functions to Listener and ProgressListener.
// Nil fields are ignored.
type ListenerFuncs struct {
	Completed func([]*Resource)
	Failed    func()
	Progress  func(Progress)
}

func (f ListenerFuncs) OnCompleted(resources []*Resource) {
	if f.Completed != nil {
		f.Completed(resources)
	}
}

func (f ListenerFuncs) OnFailed() {
	if f.Failed != nil {
		f.Failed()
	}
}

func (f ListenerFuncs) OnProgress(p Progress) {
	if f.Progress != nil {
		f.Progress(p)
	}
}

package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/logging"
)

// ScanController runs a time-boxed short-range scan and collects the
// addresses of advertising hosts.
type ScanController struct {
	adapter   ScanAdapter
	refresher CacheRefresher
	timer     *TimeoutScheduler
	log       *zap.Logger
}

// NewScanController creates a scan controller. adapter may be nil, in
// which case every scan reports ErrShortRangeUnavailable. refresher is
// optional.
func NewScanController(adapter ScanAdapter, refresher CacheRefresher, timer *TimeoutScheduler, log *zap.Logger) *ScanController {
	if timer == nil {
		timer = NewTimeoutScheduler(nil)
	}
	if log == nil {
		log = logging.GetLogger()
	}
	return &ScanController{
		adapter:   adapter,
		refresher: refresher,
		timer:     timer,
		log:       log,
	}
}

// Available reports whether short-range discovery can run at all.
func (sc *ScanController) Available(ctx context.Context) error {
	if sc.adapter == nil {
		return ErrShortRangeUnavailable
	}
	if err := sc.adapter.Available(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrShortRangeUnavailable, err)
	}
	return nil
}

// Scan scans for duration and returns the observed host addresses in
// first-seen order. The full duration is always waited unless ctx is
// cancelled, in which case the hosts seen so far are returned with
// ctx.Err().
//
// The first host observed triggers a best-effort cache refresh in the
// background.
func (sc *ScanController) Scan(ctx context.Context, filter uuid.UUID, duration time.Duration) ([]string, error) {
	if err := sc.Available(ctx); err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		hosts     []string
		seen      = make(map[string]struct{})
		stopped   bool
		refreshed bool
	)

	found := func(c ScanCandidate) {
		if c.Address == "" {
			return
		}

		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		if _, ok := seen[c.Address]; ok {
			mu.Unlock()
			return
		}
		seen[c.Address] = struct{}{}
		hosts = append(hosts, c.Address)
		first := !refreshed
		refreshed = true
		mu.Unlock()

		sc.log.Debug("Scan candidate",
			zap.String("address", c.Address),
			zap.String("name", c.Name),
			zap.Int16("rssi", c.RSSI),
			zap.Strings("services", c.ServiceUUIDs),
		)

		if first && sc.refresher != nil {
			go sc.refresh(ctx, c.Address)
		}
	}

	sc.log.Info("Starting scan",
		zap.Stringer("filter", filter),
		zap.Duration("duration", duration),
	)
	if err := sc.adapter.StartScan(ctx, filter, found); err != nil {
		return nil, fmt.Errorf("failed to start scan: %w", err)
	}

	waitErr := sc.timer.Wait(ctx, duration)

	if err := sc.adapter.StopScan(); err != nil {
		sc.log.Warn("Failed to stop scan", zap.Error(err))
	}

	mu.Lock()
	stopped = true
	out := make([]string, len(hosts))
	copy(out, hosts)
	mu.Unlock()

	sc.log.Info("Scan finished", zap.Int("hosts", len(out)))
	return out, waitErr
}

func (sc *ScanController) refresh(ctx context.Context, host string) {
	if err := sc.refresher.RefreshCache(ctx, host); err != nil {
		sc.log.Warn("Cache refresh failed", zap.String("host", host), zap.Error(err))
		return
	}
	sc.log.Debug("Cache refreshed", zap.String("host", host))
}

package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanResult struct {
	hosts []string
	err   error
}

func runScan(t *testing.T, mock *clock.Mock, sc *ScanController, ctx context.Context, d time.Duration) <-chan scanResult {
	t.Helper()
	done := make(chan scanResult, 1)
	go func() {
		hosts, err := sc.Scan(ctx, OICServiceUUID, d)
		done <- scanResult{hosts, err}
	}()
	return done
}

func TestScanCollectsInFirstSeenOrder(t *testing.T) {
	mock := clock.NewMock()
	adapter := &fakeAdapter{
		clock: mock,
		candidates: []candidateAt{
			{after: 100 * time.Millisecond, cand: ScanCandidate{Address: "B"}},
			{after: 200 * time.Millisecond, cand: ScanCandidate{Address: ""}},
			{after: 300 * time.Millisecond, cand: ScanCandidate{Address: "A"}},
			{after: 400 * time.Millisecond, cand: ScanCandidate{Address: "B"}},
			// Reported after the scan window closes.
			{after: 2 * time.Second, cand: ScanCandidate{Address: "C"}},
		},
	}
	sc := NewScanController(adapter, nil, NewTimeoutScheduler(mock), nil)

	done := runScan(t, mock, sc, context.Background(), time.Second)
	var res scanResult
	driveUntil(t, mock, 50*time.Millisecond, func() bool {
		select {
		case res = <-done:
			return true
		default:
			return false
		}
	})
	mock.Add(2 * time.Second)

	require.NoError(t, res.err)
	assert.Equal(t, []string{"B", "A"}, res.hosts)
	started, stopped := adapter.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestScanUnavailable(t *testing.T) {
	sc := NewScanController(nil, nil, nil, nil)
	hosts, err := sc.Scan(context.Background(), uuid.Nil, time.Second)
	assert.ErrorIs(t, err, ErrShortRangeUnavailable)
	assert.Empty(t, hosts)

	sc = NewScanController(&fakeAdapter{unavailable: true}, nil, nil, nil)
	_, err = sc.Scan(context.Background(), uuid.Nil, time.Second)
	assert.ErrorIs(t, err, ErrShortRangeUnavailable)
	assert.Contains(t, err.Error(), "powered off")
}

func TestScanStartError(t *testing.T) {
	sc := NewScanController(&fakeAdapter{startErr: errors.New("busy")}, nil, nil, nil)
	_, err := sc.Scan(context.Background(), uuid.Nil, time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrShortRangeUnavailable)
}

func TestScanCancelled(t *testing.T) {
	mock := clock.NewMock()
	adapter := &fakeAdapter{clock: mock}
	sc := NewScanController(adapter, nil, NewTimeoutScheduler(mock), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScan(t, mock, sc, ctx, time.Hour)
	cancel()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Scan ignored cancellation")
	}
	_, stopped := adapter.counts()
	assert.Equal(t, 1, stopped, "scan is stopped on cancellation")
}

func TestScanRefreshFailureKeepsHosts(t *testing.T) {
	mock := clock.NewMock()
	adapter := &fakeAdapter{
		clock: mock,
		candidates: []candidateAt{
			{after: 100 * time.Millisecond, cand: ScanCandidate{Address: "A"}},
			{after: 300 * time.Millisecond, cand: ScanCandidate{Address: "B"}},
		},
	}
	refresher := newFakeRefresher()
	refresher.err = errors.New("connect timeout")
	refresher.block = make(chan struct{})
	defer close(refresher.block)
	sc := NewScanController(adapter, refresher, NewTimeoutScheduler(mock), nil)

	done := runScan(t, mock, sc, context.Background(), time.Second)
	var res scanResult
	driveUntil(t, mock, 50*time.Millisecond, func() bool {
		select {
		case res = <-done:
			return true
		default:
			return false
		}
	})

	require.NoError(t, res.err)
	assert.Equal(t, []string{"A", "B"}, res.hosts)
	assert.Equal(t, "A", <-refresher.hosts)
	assert.Empty(t, refresher.hosts, "only the first host is refreshed")
}

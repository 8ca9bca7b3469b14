package discovery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(a *ResultAggregator) bool {
	select {
	case <-a.Advance():
		return true
	default:
		return false
	}
}

func TestAggregatorKeepsDuplicates(t *testing.T) {
	a := NewResultAggregator(nil)
	r := gattResource(whitelistHost, "/light/1")

	a.RecordResource(&r)
	a.RecordResource(&r)
	a.RecordResource(nil)

	assert.Len(t, a.Resources(), 2)
	assert.Equal(t, 2, a.Len())
}

func TestAggregatorEarlyAdvanceOnlyDuringShortRange(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseInit, false},
		{PhaseScanning, false},
		{PhaseShortRangeDiscovery, true},
		{PhaseMulticastDiscovery, false},
	}

	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			a := NewResultAggregator(nil)
			a.setPhase(tt.phase)
			a.expect("host")
			assert.True(t, a.RecordHostResponse("host"))
			assert.Equal(t, tt.want, pending(a))
		})
	}
}

func TestAggregatorSignalsNewHostsOnce(t *testing.T) {
	a := NewResultAggregator(nil)
	a.setPhase(PhaseShortRangeDiscovery)
	a.expect("a")

	assert.True(t, a.RecordHostResponse("a"))
	assert.False(t, a.RecordHostResponse("a"))
	assert.True(t, pending(a))
	assert.False(t, pending(a))

	a.expect("b")
	assert.True(t, a.RecordHostResponse("b"))
	assert.True(t, pending(a))
	assert.Len(t, a.RespondedHosts(), 2)
}

func TestAggregatorSignalsOnlyCurrentHost(t *testing.T) {
	a := NewResultAggregator(nil)
	a.setPhase(PhaseShortRangeDiscovery)
	previous := a.HostCallback("a")

	a.expect("b")
	r := gattResource("coap+gatt://AA:AA:AA:AA:AA:AA", "/late")
	previous(&r)

	assert.Equal(t, 1, a.Len(), "late answers are still recorded")
	assert.Contains(t, a.RespondedHosts(), "a")
	assert.False(t, pending(a), "an earlier host must not wake the current wait")

	current := a.HostCallback("b")
	r = gattResource("coap+gatt://BB:BB:BB:BB:BB:BB", "/x")
	current(&r)
	assert.True(t, pending(a))

	a.expect("")
	assert.False(t, a.RecordHostResponse(""))
	assert.False(t, pending(a))
}

func TestAggregatorIgnoresMulticastResponses(t *testing.T) {
	a := NewResultAggregator(nil)
	a.setPhase(PhaseShortRangeDiscovery)

	r := ipResource("coap://10.0.0.1:5683", "/a")
	a.OnResourceFound(&r)

	assert.Equal(t, 1, a.Len())
	assert.Empty(t, a.RespondedHosts())
	assert.False(t, pending(a))
}

func TestAggregatorDrainsStaleSignal(t *testing.T) {
	a := NewResultAggregator(nil)
	a.setPhase(PhaseShortRangeDiscovery)
	a.expect("a")

	r := gattResource("a", "/x")
	a.OnResourceFound(&r)
	a.expect("b")
	assert.False(t, pending(a))
}

func TestAggregatorSealed(t *testing.T) {
	a := NewResultAggregator(nil)
	a.setPhase(PhaseShortRangeDiscovery)

	r := gattResource("a", "/x")
	a.OnResourceFound(&r)
	final := a.seal()
	require.Len(t, final, 1)

	late := gattResource("b", "/y")
	a.OnResourceFound(&late)
	assert.Equal(t, 1, a.Len())
	assert.False(t, a.RecordHostResponse("c"))
}

func TestAggregatorConcurrentCallbacks(t *testing.T) {
	a := NewResultAggregator(nil)
	a.setPhase(PhaseShortRangeDiscovery)
	a.expect(whitelistHost)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := gattResource(whitelistHost, "/x")
			a.OnResourceFound(&r)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, a.Len())
	assert.Len(t, a.RespondedHosts(), 1)
	assert.True(t, pending(a))
}

package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/oic"
)

// DefaultSize bounds a table created with a non-positive size.
const DefaultSize = 1024

// Table holds the resources known to a caller across sessions, keyed by
// host and path. The least recently updated entries are evicted first.
type Table struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *discovery.Resource]
}

// New creates a table holding at most size resources.
func New(size int) (*Table, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, *discovery.Resource](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource table: %w", err)
	}
	return &Table{cache: cache}, nil
}

// Put stores r under its unique ID and returns the entry it replaced.
func (t *Table) Put(r *discovery.Resource) (*discovery.Resource, bool) {
	if r == nil {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := r.UniqueID()
	prev, ok := t.cache.Peek(id)
	t.cache.Add(id, r)
	return prev, ok
}

// Merge stores every resource and returns how many were new.
func (t *Table) Merge(resources []*discovery.Resource) int {
	added := 0
	for _, r := range resources {
		if r == nil {
			continue
		}
		if _, replaced := t.Put(r); !replaced {
			added++
		}
	}
	return added
}

// Get returns the resource with the given unique ID.
func (t *Table) Get(id string) (*discovery.Resource, bool) {
	return t.cache.Peek(id)
}

// Len returns the number of resources held.
func (t *Table) Len() int {
	return t.cache.Len()
}

// Keys returns the unique IDs in lexical order.
func (t *Table) Keys() []string {
	keys := t.cache.Keys()
	sort.Strings(keys)
	return keys
}

// Resources returns every resource ordered by unique ID.
func (t *Table) Resources() []*discovery.Resource {
	return t.filter(func(*discovery.Resource) bool { return true })
}

// Sensors returns the Mynewt sensor resources.
func (t *Table) Sensors() []*discovery.Resource {
	return t.filter(func(r *discovery.Resource) bool { return oic.IsSensor(r.ResourceTypes) })
}

// SmartDevices returns the actuators, e.g. binary switches.
func (t *Table) SmartDevices() []*discovery.Resource {
	return t.filter(func(r *discovery.Resource) bool { return oic.IsSmartDevice(r.ResourceTypes) })
}

// Others returns resources that are neither sensors nor smart devices.
func (t *Table) Others() []*discovery.Resource {
	return t.filter(func(r *discovery.Resource) bool {
		return !oic.IsSensor(r.ResourceTypes) && !oic.IsSmartDevice(r.ResourceTypes)
	})
}

func (t *Table) filter(keep func(*discovery.Resource) bool) []*discovery.Resource {
	var out []*discovery.Resource
	for _, id := range t.Keys() {
		if r, ok := t.cache.Peek(id); ok && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Remember records every host in the table as seen at the time of its
// latest resource.
func (t *Table) Remember(reg *config.Registry) {
	type seen struct {
		ct    discovery.ConnectivityType
		count int
		at    time.Time
	}
	hosts := make(map[string]*seen)
	for _, r := range t.Resources() {
		s, ok := hosts[r.Host]
		if !ok {
			s = &seen{}
			hosts[r.Host] = s
		}
		s.ct |= r.Connectivity
		s.count++
		if r.DiscoveredAt.After(s.at) {
			s.at = r.DiscoveredAt
		}
	}
	for host, s := range hosts {
		reg.UpdateHostLastSeen(host, s.ct.String(), s.count, s.at)
	}
}

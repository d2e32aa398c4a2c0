package pkg

import (
	"context"
	"os"
	"os/user"
	"runtime"
	"sync"
	"time"

	"github.com/bvankempen/rigging/pkg/common"
	"github.com/bvankempen/rigging/pkg/database"
)

// Facts is a flat mapping of fact key to value for one host.
type Facts map[string]interface{}

// Copy returns a shallow copy of the facts.
func (f Facts) Copy() Facts {
	out := make(Facts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Collector gathers runtime facts for a host. The transport behind it is out
// of scope here; implementations may shell out, SSH or read a fixture.
type Collector interface {
	// Collect returns the facts for a host, optionally restricted to the
	// given subset of fact keys. Connectivity failures surface as plain
	// errors and are wrapped into CollectionError by the store.
	Collect(ctx context.Context, host *Host, subset []string) (map[string]interface{}, error)
}

// hostFacts is the per-host fact state. snapshot holds gathered facts and is
// replaced wholesale by a (re-)gather; runtime holds host-scoped writes such
// as registered task results and is layered on top.
type hostFacts struct {
	mu       sync.Mutex
	snapshot Facts
	runtime  Facts
}

// FactStore holds per-host fact snapshots for one run. Writes to the same
// host are serialized; different hosts proceed independently.
type FactStore struct {
	mu    sync.RWMutex
	hosts map[string]*hostFacts

	cache *database.FactCache
	ttl   time.Duration
}

// NewFactStore creates an empty fact store without persistent caching.
func NewFactStore() *FactStore {
	return &FactStore{hosts: make(map[string]*hostFacts)}
}

// WithCache attaches a persistent cache: a gather that finds a live cache
// entry within ttl returns it without invoking the collector.
func (s *FactStore) WithCache(cache *database.FactCache, ttl time.Duration) *FactStore {
	s.cache = cache
	s.ttl = ttl
	return s
}

func (s *FactStore) hostState(hostName string) *hostFacts {
	s.mu.Lock()
	defer s.mu.Unlock()
	hf, ok := s.hosts[hostName]
	if !ok {
		hf = &hostFacts{runtime: make(Facts)}
		s.hosts[hostName] = hf
	}
	return hf
}

// Get returns the merged fact view for a host (snapshot overlaid with
// runtime writes) and whether any facts exist at all.
func (s *FactStore) Get(hostName string) (Facts, bool) {
	s.mu.RLock()
	hf, ok := s.hosts[hostName]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.snapshot == nil && len(hf.runtime) == 0 {
		return nil, false
	}
	merged := make(Facts, len(hf.snapshot)+len(hf.runtime))
	for k, v := range hf.snapshot {
		merged[k] = v
	}
	for k, v := range hf.runtime {
		merged[k] = v
	}
	return merged, true
}

// Lookup returns a single fact for a host. Runtime writes shadow the
// gathered snapshot.
func (s *FactStore) Lookup(hostName, key string) (interface{}, bool) {
	facts, ok := s.Get(hostName)
	if !ok {
		return nil, false
	}
	v, found := facts[key]
	return v, found
}

// Set records a host-scoped runtime fact, e.g. a registered task result.
func (s *FactStore) Set(hostName, key string, value interface{}) {
	hf := s.hostState(hostName)
	hf.mu.Lock()
	defer hf.mu.Unlock()
	hf.runtime[key] = value
}

// Gather returns the host's fact snapshot, invoking the collector only when
// needed. A snapshot gathered earlier in the run is reused; with a live
// persistent cache entry the collector is skipped as well. Collector
// failures are wrapped in CollectionError and leave the snapshot absent.
func (s *FactStore) Gather(ctx context.Context, host *Host, collector Collector, subset []string) (Facts, error) {
	hf := s.hostState(host.Name)
	hf.mu.Lock()
	defer hf.mu.Unlock()

	if hf.snapshot != nil {
		return hf.snapshot.Copy(), nil
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Load(host.Name, s.ttl)
		if err != nil {
			common.LogWarn("Failed to read fact cache, falling back to collector", map[string]interface{}{
				"host":  host.Name,
				"error": err.Error(),
			})
		} else if ok {
			common.LogDebug("Fact cache hit", map[string]interface{}{"host": host.Name})
			hf.snapshot = Facts(cached)
			return hf.snapshot.Copy(), nil
		}
	}

	start := time.Now()
	collected, err := collector.Collect(ctx, host, subset)
	ObserveGatherDuration(host.Name, time.Since(start))
	if err != nil {
		return nil, &CollectionError{Host: host.Name, Err: err}
	}

	hf.snapshot = Facts(collected)
	if s.cache != nil {
		if err := s.cache.Store(host.Name, collected); err != nil {
			common.LogWarn("Failed to write fact cache", map[string]interface{}{
				"host":  host.Name,
				"error": err.Error(),
			})
		}
	}

	common.LogDebug("Gathered facts", map[string]interface{}{
		"host":  host.Name,
		"count": len(collected),
	})
	return hf.snapshot.Copy(), nil
}

// Invalidate clears a host's snapshot (and cache entry) so the next Gather
// repopulates it. Runtime writes survive.
func (s *FactStore) Invalidate(hostName string) {
	hf := s.hostState(hostName)
	hf.mu.Lock()
	hf.snapshot = nil
	hf.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(hostName); err != nil {
			common.LogWarn("Failed to delete fact cache entry", map[string]interface{}{
				"host":  hostName,
				"error": err.Error(),
			})
		}
	}
}

// LocalCollector gathers facts about the machine the process runs on. It
// only serves local hosts; remote hosts need a transport-backed collector.
type LocalCollector struct{}

func (LocalCollector) Collect(_ context.Context, host *Host, subset []string) (map[string]interface{}, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}

	facts := map[string]interface{}{
		"platform":     runtime.GOOS,
		"architecture": runtime.GOARCH,
		"hostname":     hostname,
	}
	if u, err := user.Current(); err == nil {
		facts["user"] = u.Username
	}

	if len(subset) == 0 {
		return facts, nil
	}
	filtered := make(map[string]interface{}, len(subset))
	for _, key := range subset {
		if v, ok := facts[key]; ok {
			filtered[key] = v
		}
	}
	return filtered, nil
}

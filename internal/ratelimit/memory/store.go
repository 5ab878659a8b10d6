package memory

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const tombstoneBuckets = 256

// store maps identities to their window logs. Logs are created on first sight
// and only leave through sweep.
type store struct {
	limit  int
	window time.Duration
	logs   sync.Map // identity -> *windowLog
	size   atomic.Int64

	// newest evicted timestamp per identity hash bucket, in unix nanos.
	// A log created after an eviction treats any now before
	// tombstone+window as full, since the evicted entries may still count
	// there if the clock stepped back.
	tombstones [tombstoneBuckets]atomic.Int64
}

func newStore(limit int, window time.Duration) *store {
	s := &store{limit: limit, window: window}
	for i := range s.tombstones {
		s.tombstones[i].Store(math.MinInt64)
	}
	return s
}

func bucketOf(identity string) int {
	return int(xxhash.Sum64String(identity) % tombstoneBuckets)
}

func (s *store) getOrCreate(identity string) *windowLog {
	if v, ok := s.logs.Load(identity); ok {
		return v.(*windowLog)
	}
	fresh := newWindowLog(s.limit)
	if ns := s.tombstones[bucketOf(identity)].Load(); ns != math.MinInt64 {
		fresh.floor = time.Unix(0, ns).Add(s.window)
	}
	v, loaded := s.logs.LoadOrStore(identity, fresh)
	if !loaded {
		s.size.Add(1)
	}
	return v.(*windowLog)
}

// sweep removes logs with nothing left inside the window. Each log is retired
// under its own lock so a concurrent Check either finishes first or retries
// against a fresh log.
func (s *store) sweep(now time.Time) int {
	evicted := 0
	s.logs.Range(func(k, v any) bool {
		l := v.(*windowLog)
		l.mu.Lock()
		if !l.retired && l.idle(now, s.window) {
			l.retired = true
			if n := len(l.times); n > 0 {
				s.remember(k.(string), l.times[n-1])
			}
			if s.logs.CompareAndDelete(k, l) {
				s.size.Add(-1)
				evicted++
			}
		}
		l.mu.Unlock()
		return true
	})
	return evicted
}

// remember raises the identity's tombstone to newest. It must run before the
// log leaves the map so the next getOrCreate sees it.
func (s *store) remember(identity string, newest time.Time) {
	ts := &s.tombstones[bucketOf(identity)]
	ns := newest.UnixNano()
	for {
		cur := ts.Load()
		if cur >= ns || ts.CompareAndSwap(cur, ns) {
			return
		}
	}
}

func (s *store) len() int {
	return int(s.size.Load())
}

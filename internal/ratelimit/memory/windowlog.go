package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/AlexKimmel/admitgate/internal/ratelimit"
)

// windowLog holds the admitted-request timestamps of one identity, oldest first.
type windowLog struct {
	mu      sync.Mutex
	times   []time.Time
	retired bool // set by the janitor once the log has left the store

	// floor is set on logs created after the janitor evicted an earlier log
	// for the same identity bucket. Before it, the evicted history is unknown
	// and the log is treated as full.
	floor time.Time
}

func newWindowLog(limit int) *windowLog {
	return &windowLog{times: make([]time.Time, 0, limit)}
}

// admit prunes, counts and maybe records now. Caller holds l.mu.
func (l *windowLog) admit(now time.Time, p ratelimit.Policy) ratelimit.Decision {
	if now.Before(l.floor) {
		return ratelimit.Decision{
			Allowed:    false,
			RetryAfter: l.floor.Sub(now),
			Limit:      p.Limit,
			ResetAt:    l.floor,
		}
	}
	l.prune(now, p.Window)

	if len(l.times) < p.Limit {
		l.insert(now)
		return ratelimit.Decision{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: p.Limit - len(l.times),
			ResetAt:   l.times[0].Add(p.Window),
		}
	}

	oldest := l.times[0]
	retry := p.Window - now.Sub(oldest)
	if retry < 0 {
		retry = 0
	}
	return ratelimit.Decision{
		Allowed:    false,
		RetryAfter: retry,
		Limit:      p.Limit,
		ResetAt:    oldest.Add(p.Window),
	}
}

// prune drops the expired prefix. A timestamp exactly window old is expired;
// timestamps ahead of now have negative age and always stay.
func (l *windowLog) prune(now time.Time, window time.Duration) {
	i := 0
	for i < len(l.times) && now.Sub(l.times[i]) >= window {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(l.times, l.times[i:])
	clear(l.times[n:])
	l.times = l.times[:n]
}

// insert keeps the log sorted even when now moved backwards.
func (l *windowLog) insert(now time.Time) {
	i := sort.Search(len(l.times), func(i int) bool { return l.times[i].After(now) })
	if i == len(l.times) {
		l.times = append(l.times, now)
		return
	}
	l.times = append(l.times, time.Time{})
	copy(l.times[i+1:], l.times[i:])
	l.times[i] = now
}

// idle reports whether every recorded request has aged out. Caller holds l.mu.
func (l *windowLog) idle(now time.Time, window time.Duration) bool {
	if len(l.times) == 0 {
		return true
	}
	return now.Sub(l.times[len(l.times)-1]) >= window
}

package stats

import (
	"context"
	"sync"
)

// Memory counts decisions in process. No expiry; meant for development and
// the /stats endpoint.
type Memory struct {
	mu         sync.Mutex
	total      Counters
	byRoute    map[string]Counters
	byIdentity map[string]Counters

	trackIdentities bool
}

type MemoryOption func(*Memory)

// WithTrackIdentities keeps per-identity counters. Cardinality grows with
// every distinct client.
func WithTrackIdentities(track bool) MemoryOption {
	return func(m *Memory) { m.trackIdentities = track }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		byRoute:    make(map[string]Counters),
		byIdentity: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bump(&m.total, ev.Allowed)

	c := m.byRoute[ev.Route]
	bump(&c, ev.Allowed)
	m.byRoute[ev.Route] = c

	if m.trackIdentities {
		c := m.byIdentity[ev.Identity]
		bump(&c, ev.Allowed)
		m.byIdentity[ev.Identity] = c
	}
	return nil
}

func bump(c *Counters, allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

type Snapshot struct {
	Total      Counters            `json:"total"`
	ByRoute    map[string]Counters `json:"by_route"`
	ByIdentity map[string]Counters `json:"by_identity,omitempty"`
}

func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Total:   m.total,
		ByRoute: make(map[string]Counters, len(m.byRoute)),
	}
	for k, v := range m.byRoute {
		s.ByRoute[k] = v
	}
	if m.trackIdentities {
		s.ByIdentity = make(map[string]Counters, len(m.byIdentity))
		for k, v := range m.byIdentity {
			s.ByIdentity[k] = v
		}
	}
	return s
}

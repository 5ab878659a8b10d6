// Package stats keeps best-effort counters of admission decisions. The
// counters are for operators only; nothing reads them back to decide.
package stats

import (
	"context"
	"time"
)

type Event struct {
	Identity string
	Allowed  bool
	Route    string
	At       time.Time
}

// Recorder stores decision events. Callers treat errors as non-fatal.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

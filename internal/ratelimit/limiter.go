package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPolicy   = errors.New("invalid admission policy")
	ErrInvalidIdentity = errors.New("invalid client identity")
)

// Policy is the quota every identity shares: at most Limit admitted
// requests in any rolling Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func NewPolicy(limit int, window time.Duration) (Policy, error) {
	if limit < 1 {
		return Policy{}, fmt.Errorf("%w: limit must be >= 1, got %d", ErrInvalidPolicy, limit)
	}
	if window <= 0 {
		return Policy{}, fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidPolicy, window)
	}
	return Policy{Limit: limit, Window: window}, nil
}

// Decision is the outcome of one Check. A rejection is a Decision, not an error.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // zero when allowed
	Limit      int
	Remaining  int       // admits still available right now
	ResetAt    time.Time // when the oldest counted request ages out
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for HTTP headers.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Second - 1) / time.Second)
}

type Limiter interface {
	Check(identity string, now time.Time) (Decision, error)
	Close() error
}

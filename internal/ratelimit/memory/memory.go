package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/admitgate/internal/clock"
	"github.com/AlexKimmel/admitgate/internal/ratelimit"
)

// Limiter is an in-process sliding-window admission controller. Each identity
// gets its own log and lock, so unrelated clients never serialize.
type Limiter struct {
	policy  ratelimit.Policy
	logs    *store
	clock   clock.Clock
	logger  zerolog.Logger
	onSweep func(evicted int)

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

type Option func(*Limiter)

// WithClock sets the clock the janitor sweeps with. Check always uses the
// time its caller passes.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithOnSweep registers a hook that receives the eviction count of every sweep.
func WithOnSweep(fn func(evicted int)) Option {
	return func(l *Limiter) { l.onSweep = fn }
}

func New(p ratelimit.Policy, opts ...Option) (*Limiter, error) {
	p, err := ratelimit.NewPolicy(p.Limit, p.Window)
	if err != nil {
		return nil, err
	}
	l := &Limiter{
		policy: p,
		logs:   newStore(p.Limit, p.Window),
		clock:  clock.System{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Policy() ratelimit.Policy { return l.policy }

func (l *Limiter) Check(identity string, now time.Time) (ratelimit.Decision, error) {
	if identity == "" {
		return ratelimit.Decision{}, ratelimit.ErrInvalidIdentity
	}

	for {
		wl := l.logs.getOrCreate(identity)
		wl.mu.Lock()
		if wl.retired {
			// swept between lookup and lock; the store no longer holds it
			wl.mu.Unlock()
			continue
		}
		dec := wl.admit(now, l.policy)
		wl.mu.Unlock()
		return dec, nil
	}
}

// Len returns the number of identities currently tracked.
func (l *Limiter) Len() int { return l.logs.len() }

// Sweep evicts identities idle for at least one window and returns how many went.
func (l *Limiter) Sweep(now time.Time) int {
	n := l.logs.sweep(now)
	l.logger.Debug().Int("evicted", n).Int("tracked", l.logs.len()).Msg("admission janitor sweep")
	if l.onSweep != nil {
		l.onSweep(n)
	}
	return n
}

// StartJanitor sweeps every interval until ctx is done or Close is called.
// A second call while running is a no-op.
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.stop, l.done = cancel, done
	l.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			l.mu.Lock()
			if l.done == done {
				l.stop, l.done = nil, nil
			}
			l.mu.Unlock()
			close(done)
		}()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Sweep(l.clock.Now())
			}
		}
	}()
}

func (l *Limiter) Close() error {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return nil
}

var _ ratelimit.Limiter = (*Limiter)(nil)

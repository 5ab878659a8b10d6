package memory

import (
	"testing"
	"time"

	"github.com/AlexKimmel/admitgate/internal/ratelimit"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func TestWindowLog_EmptyAlwaysAdmits(t *testing.T) {
	l := newWindowLog(1)
	dec := l.admit(t0, ratelimit.Policy{Limit: 1, Window: time.Second})
	if !dec.Allowed {
		t.Fatalf("expected empty log to admit")
	}
	if dec.Remaining != 0 || dec.RetryAfter != 0 {
		t.Fatalf("unexpected decision %+v", dec)
	}
	if !dec.ResetAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("expected reset at %v, got %v", t0.Add(time.Second), dec.ResetAt)
	}
}

func TestWindowLog_ExactlyWindowOldIsExpired(t *testing.T) {
	p := ratelimit.Policy{Limit: 1, Window: 10 * time.Second}
	l := newWindowLog(p.Limit)

	if !l.admit(at(0), p).Allowed {
		t.Fatal("first request should be admitted")
	}
	dec := l.admit(t0.Add(9999*time.Millisecond), p)
	if dec.Allowed {
		t.Fatal("request inside the window should be rejected")
	}
	if dec.RetryAfter != time.Millisecond {
		t.Fatalf("expected 1ms retry, got %v", dec.RetryAfter)
	}
	if !l.admit(at(10), p).Allowed {
		t.Fatal("request exactly one window later should be admitted")
	}
	if len(l.times) != 1 || !l.times[0].Equal(at(10)) {
		t.Fatalf("expected only the new timestamp, got %v", l.times)
	}
}

func TestWindowLog_PruneKeepsFutureTimestamps(t *testing.T) {
	p := ratelimit.Policy{Limit: 2, Window: 10 * time.Second}
	l := newWindowLog(p.Limit)

	if !l.admit(at(100), p).Allowed {
		t.Fatal("expected admit at t=100")
	}
	// clock stepped back 50s: the t=100 entry has negative age and still counts
	dec := l.admit(at(50), p)
	if !dec.Allowed {
		t.Fatal("expected admit at t=50")
	}
	if !l.times[0].Equal(at(50)) || !l.times[1].Equal(at(100)) {
		t.Fatalf("expected sorted log [50 100], got %v", l.times)
	}

	dec = l.admit(at(51), p)
	if dec.Allowed {
		t.Fatal("expected reject while both entries count")
	}
	if dec.RetryAfter != 9*time.Second {
		t.Fatalf("expected 9s retry, got %v", dec.RetryAfter)
	}

	// t=50 ages out, t=100 is still ahead of now
	if !l.admit(at(60), p).Allowed {
		t.Fatal("expected admit once t=50 expired")
	}
	if len(l.times) != 2 {
		t.Fatalf("expected 2 entries, got %v", l.times)
	}
}

func TestWindowLog_RetryAfterOldestInFuture(t *testing.T) {
	p := ratelimit.Policy{Limit: 1, Window: 10 * time.Second}
	l := newWindowLog(p.Limit)
	l.admit(at(20), p)

	dec := l.admit(at(15), p)
	if dec.Allowed {
		t.Fatal("expected reject")
	}
	if dec.RetryAfter != 15*time.Second {
		t.Fatalf("expected 15s retry, got %v", dec.RetryAfter)
	}
	if !l.admit(at(15).Add(dec.RetryAfter), p).Allowed {
		t.Fatal("retry at now+RetryAfter should be admitted")
	}
}

func TestWindowLog_Idle(t *testing.T) {
	window := 10 * time.Second
	l := newWindowLog(2)
	if !l.idle(t0, window) {
		t.Fatal("empty log should be idle")
	}
	l.insert(at(0))
	l.insert(at(5))
	if l.idle(at(14), window) {
		t.Fatal("log with t=5 should not be idle at t=14")
	}
	if !l.idle(at(15), window) {
		t.Fatal("log should be idle at t=15")
	}
}

func TestWindowLog_InsertSorted(t *testing.T) {
	l := newWindowLog(5)
	for _, s := range []float64{3, 1, 4, 1, 5} {
		l.insert(at(s))
	}
	want := []float64{1, 1, 3, 4, 5}
	for i, s := range want {
		if !l.times[i].Equal(at(s)) {
			t.Fatalf("index %d: expected %v, got %v", i, at(s), l.times[i])
		}
	}
}

func TestWindowLog_FloorRejectsUntilReached(t *testing.T) {
	p := ratelimit.Policy{Limit: 3, Window: 10 * time.Second}
	l := newWindowLog(p.Limit)
	l.floor = at(10)

	dec := l.admit(at(4), p)
	if dec.Allowed || dec.RetryAfter != 6*time.Second {
		t.Fatalf("expected reject with 6s retry before floor, got %+v", dec)
	}
	if len(l.times) != 0 {
		t.Fatalf("reject must not record, got %d entries", len(l.times))
	}
	if dec := l.admit(at(10), p); !dec.Allowed || dec.Remaining != 2 {
		t.Fatalf("expected admit at floor, got %+v", dec)
	}
}

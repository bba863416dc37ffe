package ratelimit

import (
	"testing"
	"time"
)

func TestPerMinuteBurstThenRefill(t *testing.T) {
	l := PerMinute(6, 2)
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("u1", now) || !l.Allow("u1", now) {
		t.Fatalf("burst of 2 not allowed")
	}
	if l.Allow("u1", now) {
		t.Fatalf("third immediate submit allowed")
	}
	if !l.Allow("u2", now) {
		t.Fatalf("other submitter throttled")
	}
	if !l.Allow("u1", now.Add(10*time.Second)) {
		t.Fatalf("token not refilled after 10s")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *MapLimiter = PerMinute(0, 1)
	if l != nil || !l.Allow("u1", time.Now()) {
		t.Fatalf("nil limiter must allow")
	}
}

func TestIdleBucketsEvicted(t *testing.T) {
	l := PerMinute(60, 1)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("stale", start)
	later := start.Add(time.Hour)
	for i := 0; i < 256; i++ {
		l.Allow("fresh", later)
	}
	if l.Tracked() != 1 {
		t.Fatalf("expected stale bucket evicted, tracking %d", l.Tracked())
	}
}

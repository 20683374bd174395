package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(general, auth Limits) *Limiter {
	l := New(general, auth)
	return l
}

func TestCheckAllowsUpToPerMinuteLimit(t *testing.T) {
	l := newTestLimiter(Limits{PerMinute: 3, PerHour: 100}, Limits{})
	fixed := time.Now()
	l.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		d := l.Check("1.2.3.4", ProfileGeneral)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed, got denied", i)
		}
	}

	d := l.Check("1.2.3.4", ProfileGeneral)
	if d.Allowed {
		t.Fatalf("4th request should be denied")
	}
	if d.RetryAfterSeconds != 60 {
		t.Fatalf("expected 60s retry-after for minute window, got %d", d.RetryAfterSeconds)
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(Limits{PerMinute: 1, PerHour: 100}, Limits{})
	fixed := time.Now()
	l.now = func() time.Time { return fixed }

	if !l.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("first request for key a should be allowed")
	}
	if l.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("second request for key a should be denied")
	}
	if !l.Check("b", ProfileGeneral).Allowed {
		t.Fatalf("first request for key b should be allowed despite key a being exhausted")
	}
}

func TestCheckAuthProfileIsStricterThanGeneral(t *testing.T) {
	l := New(Limits{}, Limits{})
	if l.authLimits.PerMinute >= l.generalLimits.PerMinute {
		t.Fatalf("auth per-minute limit must be stricter than general")
	}
}

func TestCheckWindowExpiresAndAllowsAgain(t *testing.T) {
	l := newTestLimiter(Limits{PerMinute: 1, PerHour: 100}, Limits{})
	start := time.Now()
	l.now = func() time.Time { return start }

	if !l.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("first request should be allowed")
	}
	if l.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("second immediate request should be denied")
	}

	l.now = func() time.Time { return start.Add(61 * time.Second) }
	if !l.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("request after window expiry should be allowed again")
	}
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	if got := ClientKey("10.0.0.1, 10.0.0.2", "10.0.0.3", "10.0.0.4:1234"); got != "10.0.0.1" {
		t.Fatalf("expected first X-Forwarded-For entry, got %q", got)
	}
	if got := ClientKey("", "10.0.0.3", "10.0.0.4:1234"); got != "10.0.0.3" {
		t.Fatalf("expected X-Real-IP fallback, got %q", got)
	}
	if got := ClientKey("", "", "10.0.0.4:1234"); got != "10.0.0.4:1234" {
		t.Fatalf("expected remote addr fallback, got %q", got)
	}
}

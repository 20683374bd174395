package ratelimit

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDistributedLimiter(t *testing.T, general, auth Limits) (*miniredis.Miniredis, *DistributedLimiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewDistributed(client, "test:", general, auth)
}

func TestDistributedLimiterAllowsUpToPerMinuteLimit(t *testing.T) {
	_, d := newTestDistributedLimiter(t, Limits{PerMinute: 3, PerHour: 100}, Limits{})

	for i := 0; i < 3; i++ {
		if !d.Check("1.2.3.4", ProfileGeneral).Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if d.Check("1.2.3.4", ProfileGeneral).Allowed {
		t.Fatalf("4th request should be denied")
	}
}

func TestDistributedLimiterKeysAreIndependent(t *testing.T) {
	_, d := newTestDistributedLimiter(t, Limits{PerMinute: 1, PerHour: 100}, Limits{})

	if !d.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("first request for key a should be allowed")
	}
	if d.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("second request for key a should be denied")
	}
	if !d.Check("b", ProfileGeneral).Allowed {
		t.Fatalf("first request for key b should be allowed despite key a being exhausted")
	}
}

func TestDistributedLimiterHourLimitAppliesAcrossMinuteBuckets(t *testing.T) {
	_, d := newTestDistributedLimiter(t, Limits{PerMinute: 100, PerHour: 2}, Limits{})

	if !d.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("first request should be allowed")
	}
	if !d.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("second request should be allowed")
	}
	if d.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("third request should be denied once the hourly cap is hit")
	}
}

func TestDistributedLimiterFailsOpenWhenRedisUnreachable(t *testing.T) {
	mr, d := newTestDistributedLimiter(t, Limits{PerMinute: 1, PerHour: 100}, Limits{})
	mr.Close()

	if !d.Check("a", ProfileGeneral).Allowed {
		t.Fatalf("expected Check to fail open (allow) when redis is unreachable")
	}
}

func TestDistributedLimiterSatisfiesCheckerInterface(t *testing.T) {
	var _ Checker = (*DistributedLimiter)(nil)
	var _ Checker = (*Limiter)(nil)
}

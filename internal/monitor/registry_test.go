package monitor

import (
	"testing"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

func TestEnsureCreatesDueClock(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(start)

	e := domain.NewEntity("sama", "S", "OpenAI", true, false)
	c := r.Ensure(e)

	if !c.LastFresh.Equal(start) {
		t.Fatalf("LastFresh = %v, want scheduler start", c.LastFresh)
	}
	if !c.NextDue.Equal(start) {
		t.Fatalf("NextDue = %v, want immediately due", c.NextDue)
	}
	if !c.LastPolled.IsZero() {
		t.Fatalf("fresh clock must have zero LastPolled")
	}
	if c.Tier != domain.TierS {
		t.Fatalf("Tier = %s", c.Tier)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}
}

func TestEnsureTierIsImmutable(t *testing.T) {
	start := time.Now()
	r := NewRegistry(start)

	c1 := r.Ensure(domain.NewEntity("acct", "S", "", false, false))
	c2 := r.Ensure(domain.NewEntity("acct", "B", "", false, false))

	if c1 != c2 {
		t.Fatalf("same key must return same clock")
	}
	if c2.Tier != domain.TierS {
		t.Fatalf("tier changed on re-ensure: %s", c2.Tier)
	}
}

func TestAdvanceEmptyStreak(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	c := &Clock{Tier: domain.TierA}
	for i := 1; i <= 10; i++ {
		c.Advance(false, now, p)
		want := i
		if want > MaxEmptyStreak {
			want = MaxEmptyStreak
		}
		if c.EmptyStreak != want {
			t.Fatalf("after %d empty polls streak = %d, want %d", i, c.EmptyStreak, want)
		}
		now = now.Add(30 * time.Minute)
	}

	c.Advance(true, now, p)
	if c.EmptyStreak != 0 {
		t.Fatalf("streak not reset on news: %d", c.EmptyStreak)
	}
}

func TestAdvanceSetsSchedule(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	c := &Clock{Tier: domain.TierA}
	interval := c.Advance(false, now, p)

	// First empty poll: streak 1, so the A ladder lands on 60m.
	if interval != 60*time.Minute {
		t.Fatalf("interval = %v", interval)
	}
	if !c.NextDue.Equal(now.Add(interval)) {
		t.Fatalf("NextDue = %v", c.NextDue)
	}
	if !c.LastPolled.Equal(now) {
		t.Fatalf("LastPolled = %v", c.LastPolled)
	}
	if !c.LastFresh.Equal(now) {
		t.Fatalf("LastFresh = %v, want poll start", c.LastFresh)
	}
}

func TestAdvanceLastFreshAdvancesOnFailedPollToo(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// hasNews=false stands in for both a quiet poll and a failed fetch: the
	// caller advances in both cases, so the window never replays.
	c := &Clock{Tier: domain.TierS, LastFresh: t0}
	next := t0.Add(30 * time.Minute)
	c.Advance(false, next, p)
	if !c.LastFresh.Equal(next) {
		t.Fatalf("LastFresh = %v, want %v", c.LastFresh, next)
	}
}

func TestAdvanceLastFreshNeverMovesBackward(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	later := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	c := &Clock{Tier: domain.TierS, LastFresh: later}
	c.Advance(true, later.Add(-time.Hour), p)
	if !c.LastFresh.Equal(later) {
		t.Fatalf("LastFresh moved backward to %v", c.LastFresh)
	}
}

package monitor

import (
	"testing"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

func dayTime(t *testing.T, hour int) time.Time {
	t.Helper()
	return time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
}

func TestNightWindowContains(t *testing.T) {
	w := DefaultNightWindow()
	cases := []struct {
		hour int
		want bool
	}{
		{20, false},
		{21, true},
		{23, true},
		{0, true},
		{2, true},
		{3, false},
		{12, false},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.hour); got != tc.want {
			t.Fatalf("Contains(%d) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestNightWindowNonWrapping(t *testing.T) {
	w := NightWindow{Start: 1, End: 5}
	if !w.Contains(3) || w.Contains(5) || w.Contains(0) {
		t.Fatalf("non-wrapping window misbehaved")
	}
	empty := NightWindow{Start: 4, End: 4}
	if empty.Contains(4) {
		t.Fatalf("equal start/end should contain nothing")
	}
}

func TestNextIntervalDayLadder(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	noon := dayTime(t, 12)

	cases := []struct {
		tier   domain.Tier
		streak int
		want   time.Duration
	}{
		{domain.TierS, 0, 30 * time.Minute},
		{domain.TierS, 1, 60 * time.Minute},
		{domain.TierS, 2, 90 * time.Minute},
		{domain.TierS, 6, 90 * time.Minute},
		{domain.TierA, 0, 30 * time.Minute},
		{domain.TierA, 1, 60 * time.Minute},
		{domain.TierA, 5, 90 * time.Minute},
		{domain.TierB, 0, 60 * time.Minute},
		{domain.TierB, 1, 90 * time.Minute},
		{domain.TierB, 6, 90 * time.Minute},
	}
	for _, tc := range cases {
		if got := p.NextInterval(tc.tier, tc.streak, noon); got != tc.want {
			t.Fatalf("NextInterval(%s, streak=%d) = %v, want %v", tc.tier, tc.streak, got, tc.want)
		}
	}
}

func TestNextIntervalNightIsFlat(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	night := dayTime(t, 22)
	for _, tier := range []domain.Tier{domain.TierS, domain.TierA, domain.TierB} {
		for _, streak := range []int{0, 3, 6} {
			if got := p.NextInterval(tier, streak, night); got != 15*time.Minute {
				t.Fatalf("night interval for %s streak=%d: %v", tier, streak, got)
			}
		}
	}
}

func TestGlobalTick(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	if got := p.GlobalTick(dayTime(t, 22)); got != 15*time.Minute {
		t.Fatalf("night tick = %v", got)
	}
	if got := p.GlobalTick(dayTime(t, 12)); got != 30*time.Minute {
		t.Fatalf("day tick = %v", got)
	}
}

func TestShouldPollDayHonorsNextDue(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	noon := dayTime(t, 12)

	c := &Clock{Tier: domain.TierA, NextDue: noon.Add(10 * time.Minute)}
	if p.ShouldPoll(c, noon) {
		t.Fatalf("entity polled before NextDue")
	}
	if !p.ShouldPoll(c, noon.Add(10*time.Minute)) {
		t.Fatalf("entity not polled at NextDue")
	}
	if !p.ShouldPoll(c, noon.Add(time.Hour)) {
		t.Fatalf("entity not polled after NextDue")
	}
}

func TestShouldPollNightOverridesBackoff(t *testing.T) {
	p := NewPolicy(time.UTC, DefaultNightWindow())
	night := dayTime(t, 22)

	// Daytime backoff pushed NextDue far out; the night floor ignores it.
	c := &Clock{
		Tier:       domain.TierB,
		LastPolled: night.Add(-20 * time.Minute),
		NextDue:    night.Add(80 * time.Minute),
	}
	if !p.ShouldPoll(c, night) {
		t.Fatalf("night poll suppressed by stale daytime NextDue")
	}

	c.LastPolled = night.Add(-10 * time.Minute)
	if p.ShouldPoll(c, night) {
		t.Fatalf("night poll fired under the 15m floor")
	}

	fresh := &Clock{Tier: domain.TierS}
	if !p.ShouldPoll(fresh, night) {
		t.Fatalf("never-polled entity must be due at night")
	}
}

func TestPolicyTimezoneDecidesNight(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p := NewPolicy(tokyo, DefaultNightWindow())

	// 13:00 UTC is 22:00 in Tokyo.
	if !p.IsNight(time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected night in configured timezone")
	}
	if p.IsNight(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected day in configured timezone")
	}
}

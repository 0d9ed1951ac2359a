package monitor

import (
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

// Polling cadence constants. Ladders are intentionally capped (90m day, 15m
// night) to bound worst-case detection latency; any accepted item resets the
// streak and restores the fast interval on the next advance.
const (
	nightInterval = 15 * time.Minute
	dayTick       = 30 * time.Minute

	// MaxEmptyStreak caps the consecutive-empty-poll counter.
	MaxEmptyStreak = 6
)

// NightWindow is a local-time hour range. Start > End means the window wraps
// midnight (the default 21-03 does).
type NightWindow struct {
	Start int
	End   int
}

// Contains reports whether the given hour falls inside the window.
func (w NightWindow) Contains(hour int) bool {
	if w.Start == w.End {
		return false
	}
	if w.Start > w.End {
		return hour >= w.Start || hour < w.End
	}
	return hour >= w.Start && hour < w.End
}

// DefaultNightWindow matches the original monitoring hours: 21:00-03:00.
func DefaultNightWindow() NightWindow { return NightWindow{Start: 21, End: 3} }

// Policy decides polling intervals. It is a pure function of (tier, streak,
// wall clock) and holds no per-entity state.
type Policy struct {
	loc   *time.Location
	night NightWindow
}

func NewPolicy(loc *time.Location, night NightWindow) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{loc: loc, night: night}
}

func (p *Policy) Location() *time.Location { return p.loc }

// IsNight reports whether now falls in the configured night window.
func (p *Policy) IsNight(now time.Time) bool {
	return p.night.Contains(now.In(p.loc).Hour())
}

// NextInterval returns the delay until an entity's next poll.
//
// Night traffic is latency-sensitive and low-volume, so the night window is a
// flat 15m regardless of tier or streak. Day intervals back off along a
// per-tier ladder keyed by the consecutive-empty-poll streak:
//
//	S/A: 30m -> 60m -> 90m
//	B:   60m -> 90m
func (p *Policy) NextInterval(tier domain.Tier, emptyStreak int, now time.Time) time.Duration {
	if p.IsNight(now) {
		return nightInterval
	}

	if tier == domain.TierB {
		if emptyStreak <= 0 {
			return 60 * time.Minute
		}
		return 90 * time.Minute
	}

	switch {
	case emptyStreak <= 0:
		return 30 * time.Minute
	case emptyStreak == 1:
		return 60 * time.Minute
	default:
		return 90 * time.Minute
	}
}

// GlobalTick returns the scheduling loop cadence: the minimum active interval
// across all entities (15m night, 30m day). Whether an individual entity is
// actually fetched on a tick is decided by ShouldPoll.
func (p *Policy) GlobalTick(now time.Time) time.Duration {
	if p.IsNight(now) {
		return nightInterval
	}
	return dayTick
}

// ShouldPoll decides whether a clock is due at now.
//
// At night the 15-minute cadence is a hard floor: it overrides any stored
// NextDue so daytime backoff state cannot slow the night schedule down.
func (p *Policy) ShouldPoll(c *Clock, now time.Time) bool {
	if p.IsNight(now) {
		if c.LastPolled.IsZero() {
			return true
		}
		return now.Sub(c.LastPolled) >= nightInterval
	}
	return !now.Before(c.NextDue)
}

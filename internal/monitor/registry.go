package monitor

import (
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

// Clock is the mutable scheduling state for one monitored entity. It is owned
// exclusively by the scheduling loop; nothing else mutates it.
type Clock struct {
	Tier domain.Tier

	// LastFresh is the upper bound of the last processed window
	// (lastConfirmedFreshAt). It only ever moves forward.
	LastFresh time.Time

	// LastPolled is zero until the entity has been polled once.
	LastPolled time.Time

	// EmptyStreak counts consecutive polls with zero accepted items,
	// capped at MaxEmptyStreak.
	EmptyStreak int

	NextDue time.Time
}

// Advance applies the post-poll state transition and returns the chosen
// interval. now must be the poll's start time, not its completion time.
//
// LastFresh advances unconditionally, even when the fetch failed: a failed
// fetch does not retry the same window on the next tick, it only moves the
// window forward (at most once per window). Items published during a fetch
// outage are therefore lost; that matches the historical behavior and keeps
// replay semantics trivial.
func (c *Clock) Advance(hasNews bool, now time.Time, policy *Policy) time.Duration {
	if hasNews {
		c.EmptyStreak = 0
	} else if c.EmptyStreak < MaxEmptyStreak {
		c.EmptyStreak++
	}

	c.LastPolled = now
	interval := policy.NextInterval(c.Tier, c.EmptyStreak, now)
	c.NextDue = now.Add(interval)

	if now.After(c.LastFresh) {
		c.LastFresh = now
	}
	return interval
}

// Registry owns the per-entity clocks, keyed by entity identity. It is
// rebuilt at process start and confined to the scheduling goroutine, so it
// needs no locking. Entities removed from configuration keep their clock but
// simply stop being offered to the selector.
type Registry struct {
	start  time.Time
	clocks map[string]*Clock
}

func NewRegistry(start time.Time) *Registry {
	return &Registry{start: start, clocks: make(map[string]*Clock)}
}

// Ensure returns the clock for an entity, creating it on first sight. A fresh
// clock is immediately due and its window starts at scheduler start time.
// The tier recorded at creation is immutable; later config edits to an
// entity's tier do not touch a live clock.
func (r *Registry) Ensure(e domain.Entity) *Clock {
	if c, ok := r.clocks[e.Key]; ok {
		return c
	}
	c := &Clock{
		Tier:      e.Tier,
		LastFresh: r.start,
		NextDue:   r.start,
	}
	r.clocks[e.Key] = c
	return c
}

// Len reports the number of tracked clocks.
func (r *Registry) Len() int { return len(r.clocks) }

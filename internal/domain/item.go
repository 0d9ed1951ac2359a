package domain

import "time"

// Candidate is one raw item pulled from an upstream provider for a monitored
// entity. It only lives for the duration of a single poll.
type Candidate struct {
	ID        string
	Text      string
	EntityKey string

	// Source labels the provider (e.g. "Twitter:sama"); URL links the item.
	// Both are supplied by the fetch client.
	Source string
	URL    string

	// CreatedRaw is the provider's timestamp string exactly as received.
	// CreatedAt is its parsed form; it stays zero when parsing failed, which
	// the window filter treats as out-of-window (fail closed).
	CreatedRaw string
	CreatedAt  time.Time
}

// Importance is the output-visible importance level. Classification labels
// other than major collapse to minor at acceptance.
type Importance string

const (
	ImportanceMajor Importance = "major"
	ImportanceMinor Importance = "minor"
)

// Item is an accepted piece of news, ready for dedup and delivery.
type Item struct {
	Source      string // e.g. "Twitter:sama" or a feed name
	Title       string
	URL         string
	Summary     string
	PublishedAt string // ISO 8601 when parseable, raw provider string otherwise

	Vendor     string
	Importance Importance

	// Entity/ItemID/Tier are set for scheduler-managed entities and carry
	// through to audit records. Feed items leave Entity empty.
	Entity string
	ItemID string
	Tier   Tier

	// Reason is the provenance tag, e.g. "importance:new model".
	Reason string
}

package domain

import "strings"

// Tier is the priority class of a monitored entity. It controls the baseline
// polling frequency during the day window.
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
)

// ParseTier normalizes a configured tier string. Unknown or empty values
// coerce to TierA; ok reports whether the input was already valid.
func ParseTier(raw string) (tier Tier, ok bool) {
	switch Tier(strings.ToUpper(strings.TrimSpace(raw))) {
	case TierS:
		return TierS, true
	case TierA:
		return TierA, true
	case TierB:
		return TierB, true
	default:
		return TierA, false
	}
}

// Entity is one monitored account. Tier is fixed at configuration time; the
// scheduler never mutates it.
type Entity struct {
	// Key is the case-insensitive identity (lower-cased screen name).
	Key string
	// Name preserves the configured casing for URLs and display.
	Name string

	Tier    Tier
	Vendor  string
	Founder bool

	// AttentionOnly restricts the entity to items mentioning one of the
	// classifier's attention allow-list organizations.
	AttentionOnly bool
}

// NewEntity builds an Entity from configured values, normalizing the key and
// coercing the tier.
func NewEntity(name, tier, vendor string, founder, attentionOnly bool) Entity {
	name = strings.TrimSpace(name)
	t, _ := ParseTier(tier)
	return Entity{
		Key:           strings.ToLower(name),
		Name:          name,
		Tier:          t,
		Vendor:        vendor,
		Founder:       founder,
		AttentionOnly: attentionOnly,
	}
}

// VendorLabel resolves the display label for the entity: the configured
// vendor, falling back to the entity name, with a founder suffix.
func (e Entity) VendorLabel() string {
	v := e.Vendor
	if v == "" {
		v = e.Name
	}
	if e.Founder {
		return v + " (founder)"
	}
	return v
}

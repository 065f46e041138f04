package domain

import "sort"

// SponsorTier describes a sponsorship level backed by a platform role.
type SponsorTier struct {
	Key    string
	Name   string
	Emoji  string
	RoleID string
}

// TierTable holds the one-off and recurring tiers, keyed by plan id.
type TierTable struct {
	OneOff    map[string]SponsorTier
	Recurring map[string]SponsorTier
}

// Lookup finds a tier in either table. Recurring plans win on key collisions.
func (t TierTable) Lookup(key string) (SponsorTier, bool) {
	if tier, ok := t.Recurring[key]; ok {
		return tier, true
	}
	tier, ok := t.OneOff[key]
	return tier, ok
}

// All returns every tier sorted by key.
func (t TierTable) All() []SponsorTier {
	out := make([]SponsorTier, 0, len(t.OneOff)+len(t.Recurring))
	for _, tier := range t.OneOff {
		out = append(out, tier)
	}
	for _, tier := range t.Recurring {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// TierForRoles returns the first configured tier whose role is held.
func (t TierTable) TierForRoles(roleIDs []string) (SponsorTier, bool) {
	held := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}
	for _, tier := range t.All() {
		if tier.RoleID == "" {
			continue
		}
		if _, ok := held[tier.RoleID]; ok {
			return tier, true
		}
	}
	return SponsorTier{}, false
}

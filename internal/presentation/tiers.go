package presentation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// SponsorTiers lists the configured tiers, one-off plans first.
func SponsorTiers(tiers domain.TierTable) *discordgo.MessageEmbed {
	var b strings.Builder
	writeGroup(&b, "One-off", tiers.OneOff)
	writeGroup(&b, "Recurring", tiers.Recurring)
	return &discordgo.MessageEmbed{
		Title:       "Sponsor Tiers",
		Description: strings.TrimSpace(b.String()),
		Color:       ColorBlue,
	}
}

func writeGroup(b *strings.Builder, title string, group map[string]domain.SponsorTier) {
	if len(group) == 0 {
		return
	}
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "**%s**\n", title)
	for _, k := range keys {
		tier := group[k]
		fmt.Fprintf(b, "%s %s\n", tier.Emoji, tier.Name)
	}
	b.WriteString("\n")
}

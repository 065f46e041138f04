package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/interaction"
)

// Commands is the slash command set of the bot.
func Commands() []*discordgo.ApplicationCommand {
	ticketOption := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        interaction.OptionTicket,
		Description: "Ticket id, e.g. sponsor-0001. Defaults to the ticket of this channel.",
		Required:    false,
	}}
	return []*discordgo.ApplicationCommand{
		{Name: interaction.CommandSponsor, Description: "Open a sponsor ticket"},
		{Name: interaction.CommandReport, Description: "Open a report ticket"},
		{Name: interaction.CommandClose, Description: "Close a ticket", Options: ticketOption},
		{Name: interaction.CommandExport, Description: "Export and archive a ticket", Options: ticketOption},
	}
}

// RegisterCommands overwrites the application's commands in guildID, or globally when
// guildID is empty, and logs what was loaded.
func RegisterCommands(api API, appID, guildID string, logger *zap.Logger) error {
	created, err := api.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	names := make([]string, 0, len(created))
	for _, cmd := range created {
		names = append(names, cmd.Name)
	}
	logger.Info("loaded commands", zap.Strings("commands", names), zap.String("guild_id", guildID))
	return nil
}

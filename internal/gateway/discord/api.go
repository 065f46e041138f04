package discord

import "github.com/bwmarrin/discordgo"

// API abstracts the Discord REST calls the bot makes, for testing.
type API interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string) ([]*discordgo.Message, error)
	GuildMember(guildID, userID string) (*discordgo.Member, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

// sessionAdapter adapts discordgo.Session to API.
type sessionAdapter struct {
	session *discordgo.Session
}

// NewSessionAPI wraps a live session.
func NewSessionAPI(s *discordgo.Session) API {
	return &sessionAdapter{session: s}
}

func (a *sessionAdapter) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return a.session.GuildChannelCreateComplex(guildID, data)
}

func (a *sessionAdapter) ChannelEdit(channelID string, data *discordgo.ChannelEdit) (*discordgo.Channel, error) {
	return a.session.ChannelEdit(channelID, data)
}

func (a *sessionAdapter) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return a.session.ChannelMessageSendComplex(channelID, data)
}

func (a *sessionAdapter) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string) ([]*discordgo.Message, error) {
	return a.session.ChannelMessages(channelID, limit, beforeID, afterID, aroundID)
}

func (a *sessionAdapter) GuildMember(guildID, userID string) (*discordgo.Member, error) {
	return a.session.GuildMember(guildID, userID)
}

func (a *sessionAdapter) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return a.session.InteractionRespond(interaction, resp)
}

func (a *sessionAdapter) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	return a.session.ApplicationCommandBulkOverwrite(appID, guildID, commands)
}

package presentation

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/interaction"
)

// Embed colors.
const (
	ColorBlue  = 0x3498db
	ColorGreen = 0x2ecc71
	ColorRed   = 0xe74c3c
	ColorGrey  = 0x607d8b
)

const sponsorGalleryURL = "https://gallery.react-chatbotify.com/sponsors"

const responseNote = "📌 **Note:** Tickets will be addressed as soon as possible.\n" +
	"You will typically get a **first response within 24 hours**, " +
	"but resolution time may vary. Thank you for your understanding!"

// Renderer turns ticket snapshots into channel messages.
type Renderer struct {
	Tiers domain.TierTable
}

// Message renders the message posted into a ticket channel for template.
func (r Renderer) Message(template domain.MessageTemplate, t *domain.Ticket) (*discordgo.MessageSend, error) {
	switch template {
	case domain.TemplateTicketOpened:
		return TicketOpened(t, r.Tiers), nil
	case domain.TemplateTicketClosed:
		return TicketClosed(t), nil
	case domain.TemplateTicketExported:
		return TicketExported(t), nil
	}
	return nil, fmt.Errorf("unknown message template %q", template)
}

// TicketOpened is the welcome message of a new ticket channel. Sponsor tickets also
// list the available tiers.
func TicketOpened(t *domain.Ticket, tiers domain.TierTable) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Color:  ColorBlue,
		Footer: footer(t),
	}
	switch t.ID.Category {
	case domain.CategorySponsor:
		embed.Title = "📕 Become a Sponsor"
		embed.Description = "Interested to sponsor the project? Check out the link here: " + sponsorGalleryURL + "\n\n" + responseNote
	default:
		embed.Title = "🚩 Report"
		embed.Description = "Please describe what you would like to report, including links or screenshots where possible.\n\n" + responseNote
	}
	embeds := []*discordgo.MessageEmbed{embed}
	if t.ID.Category == domain.CategorySponsor && len(tiers.All()) > 0 {
		embeds = append(embeds, SponsorTiers(tiers))
	}
	return &discordgo.MessageSend{
		Content:    fmt.Sprintf("<@%s>", t.OwnerID),
		Embeds:     embeds,
		Components: Controls(t),
	}
}

// TicketClosed announces a closed ticket.
func TicketClosed(t *domain.Ticket) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🔒 Ticket Closed",
			Description: "This ticket has been closed. It can still be exported for the record.",
			Color:       ColorRed,
			Footer:      footer(t),
		}},
		Components: Controls(t),
	}
}

// TicketExported announces an exported ticket.
func TicketExported(t *domain.Ticket) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "📦 Ticket Exported",
			Description: "A transcript of this ticket has been saved and the channel archived.",
			Color:       ColorGrey,
			Footer:      footer(t),
		}},
	}
}

// Controls returns the buttons valid for the ticket's state.
func Controls(t *domain.Ticket) []discordgo.MessageComponent {
	var buttons []discordgo.MessageComponent
	if t.State == domain.TicketStateOpen {
		buttons = append(buttons, discordgo.Button{
			Label:    "Close Ticket",
			Style:    discordgo.DangerButton,
			CustomID: interaction.ComponentID(domain.ActionClose, t.ID),
			Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
		})
	}
	if t.State.IsActive() {
		buttons = append(buttons, discordgo.Button{
			Label:    "Export Ticket",
			Style:    discordgo.SecondaryButton,
			CustomID: interaction.ComponentID(domain.ActionExport, t.ID),
			Emoji:    &discordgo.ComponentEmoji{Name: "📤"},
		})
	}
	if len(buttons) == 0 {
		return nil
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

// CreatedReply is the ephemeral confirmation sent to the ticket owner.
func CreatedReply(t *domain.Ticket) *discordgo.InteractionResponseData {
	label := "Report"
	if t.ID.Category == domain.CategorySponsor {
		label = "Sponsor"
	}
	where := "#" + t.ID.String()
	if t.ChannelID != "" {
		where = fmt.Sprintf("<#%s>", t.ChannelID)
	}
	return ephemeral(&discordgo.MessageEmbed{
		Title:       "Ticket Created",
		Description: fmt.Sprintf("✅ %s ticket created: %s", label, where),
		Color:       ColorGreen,
	})
}

// ActionReply confirms a close or export to the acting user.
func ActionReply(t *domain.Ticket, changed bool) *discordgo.InteractionResponseData {
	text := fmt.Sprintf("Ticket #%d is %s.", t.ID.Number, stateLabel(t.State))
	if !changed {
		text = fmt.Sprintf("Ticket #%d is already %s.", t.ID.Number, stateLabel(t.State))
	}
	return ephemeral(&discordgo.MessageEmbed{Description: text, Color: ColorGreen})
}

// ErrorReply shows a user-facing error text.
func ErrorReply(message string) *discordgo.InteractionResponseData {
	return ephemeral(&discordgo.MessageEmbed{Description: "❌ " + message, Color: ColorRed})
}

func ephemeral(embed *discordgo.MessageEmbed) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	}
}

func footer(t *domain.Ticket) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Ticket #%d", t.ID.Number)}
}

func stateLabel(s domain.TicketState) string {
	switch s {
	case domain.TicketStateOpen:
		return "open"
	case domain.TicketStateClosed:
		return "closed"
	case domain.TicketStateExported:
		return "exported"
	}
	return string(s)
}

package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/presentation"
)

// TicketBinder is the part of the lifecycle engine the provisioner needs.
type TicketBinder interface {
	BindChannel(ctx context.Context, id domain.TicketID, channelID string) error
	Ticket(ctx context.Context, id domain.TicketID) (*domain.Ticket, error)
}

const (
	ownerAllow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory | discordgo.PermissionAttachFiles
	staffAllow = ownerAllow | discordgo.PermissionManageMessages
)

// Provisioner executes lifecycle effects against Discord. Each effect runs once; a
// failed effect is logged and the remaining effects still run.
type Provisioner struct {
	api         API
	guildID     string
	adminRoleID string
	tickets     TicketBinder
	renderer    presentation.Renderer
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// ProvisionerConfig configures a Provisioner.
type ProvisionerConfig struct {
	GuildID     string
	AdminRoleID string
	// EditsPerSecond paces channel and message calls. Zero disables pacing.
	EditsPerSecond float64
}

// NewProvisioner constructs a provisioner.
func NewProvisioner(api API, tickets TicketBinder, renderer presentation.Renderer, cfg ProvisionerConfig, logger *zap.Logger) *Provisioner {
	limit := rate.Inf
	if cfg.EditsPerSecond > 0 {
		limit = rate.Limit(cfg.EditsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		api:         api,
		guildID:     cfg.GuildID,
		adminRoleID: cfg.AdminRoleID,
		tickets:     tickets,
		renderer:    renderer,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// Execute runs effects in order and returns the ticket as it stands afterwards.
func (p *Provisioner) Execute(ctx context.Context, effects []domain.Effect) (*domain.Ticket, error) {
	var (
		errs   []error
		ticket *domain.Ticket
	)
	for _, effect := range effects {
		t, err := p.apply(ctx, effect)
		if t != nil {
			ticket = t
		}
		if err != nil {
			p.logger.Error("effect failed",
				zap.String("effect", string(effect.Kind)),
				zap.String("ticket", effect.Ticket.String()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s %s: %w", effect.Kind, effect.Ticket, err))
			continue
		}
		p.logger.Debug("effect applied", zap.String("effect", string(effect.Kind)), zap.String("ticket", effect.Ticket.String()))
	}
	return ticket, errors.Join(errs...)
}

func (p *Provisioner) apply(ctx context.Context, effect domain.Effect) (*domain.Ticket, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if effect.Kind == domain.EffectCreateChannel {
		return p.createChannel(ctx, effect)
	}

	ticket, err := p.tickets.Ticket(ctx, effect.Ticket)
	if err != nil {
		return nil, err
	}
	if ticket.ChannelID == "" {
		return ticket, errors.New("ticket has no channel")
	}

	switch effect.Kind {
	case domain.EffectRenameChannel:
		_, err = p.api.ChannelEdit(ticket.ChannelID, &discordgo.ChannelEdit{Name: effect.Name})
	case domain.EffectPostMessage:
		var msg *discordgo.MessageSend
		msg, err = p.renderer.Message(effect.Template, ticket)
		if err == nil {
			_, err = p.api.ChannelMessageSendComplex(ticket.ChannelID, msg)
		}
	case domain.EffectExportTranscript:
		err = p.exportTranscript(ticket, effect.TargetID)
	case domain.EffectArchiveChannel:
		err = p.archive(ticket, effect.GroupID)
	default:
		err = fmt.Errorf("unsupported effect %q", effect.Kind)
	}
	return ticket, err
}

func (p *Provisioner) createChannel(ctx context.Context, effect domain.Effect) (*domain.Ticket, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: p.guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: effect.OwnerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ownerAllow},
	}
	if p.adminRoleID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: p.adminRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: staffAllow,
		})
	}
	channel, err := p.api.GuildChannelCreateComplex(p.guildID, discordgo.GuildChannelCreateData{
		Name:                 effect.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             effect.GroupID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return nil, err
	}
	if err := p.tickets.BindChannel(ctx, effect.Ticket, channel.ID); err != nil {
		return nil, fmt.Errorf("bind channel %s: %w", channel.ID, err)
	}
	return p.tickets.Ticket(ctx, effect.Ticket)
}

func (p *Provisioner) exportTranscript(ticket *domain.Ticket, destinationID string) error {
	messages, err := fetchHistory(p.api, ticket.ChannelID)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if destinationID == "" {
		destinationID = ticket.ChannelID
	}
	_, err = p.api.ChannelMessageSendComplex(destinationID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Transcript for ticket #%d (%s)", ticket.ID.Number, ticket.ID),
		Files: []*discordgo.File{{
			Name:        ticket.ID.String() + ".txt",
			ContentType: "text/plain",
			Reader:      strings.NewReader(renderTranscript(ticket, messages)),
		}},
	})
	return err
}

// archive moves the channel under the archive group and makes it read-only for the owner.
func (p *Provisioner) archive(ticket *domain.Ticket, groupID string) error {
	if groupID == "" {
		return nil
	}
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: p.guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{
			ID:    ticket.OwnerID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory,
			Deny:  discordgo.PermissionSendMessages,
		},
	}
	if p.adminRoleID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: p.adminRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: staffAllow,
		})
	}
	_, err := p.api.ChannelEdit(ticket.ChannelID, &discordgo.ChannelEdit{
		ParentID:             groupID,
		PermissionOverwrites: overwrites,
	})
	return err
}

package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/interaction"
	"github.com/spec-kit/ticket-bot/internal/presentation"
)

// Dispatcher handles translated events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev interaction.RawEvent) interaction.Result
}

// ReadyHandler is told about every gateway READY event.
type ReadyHandler interface {
	OnReady(ctx context.Context) error
}

// Gateway connects Discord gateway events to the dispatcher and executes the resulting effects.
type Gateway struct {
	api         API
	dispatcher  Dispatcher
	provisioner *Provisioner
	lifecycle   ReadyHandler
	logger      *zap.Logger
	timeout     time.Duration

	mu    sync.RWMutex
	appID string
}

// GatewayDependencies bundles gateway collaborators.
type GatewayDependencies struct {
	API         API
	Dispatcher  Dispatcher
	Provisioner *Provisioner
	Lifecycle   ReadyHandler
	Logger      *zap.Logger
	// HandlerTimeout bounds the work done for a single interaction.
	HandlerTimeout time.Duration
}

// NewGateway constructs the gateway.
func NewGateway(deps GatewayDependencies) *Gateway {
	g := &Gateway{
		api:         deps.API,
		dispatcher:  deps.Dispatcher,
		provisioner: deps.Provisioner,
		lifecycle:   deps.Lifecycle,
		logger:      deps.Logger,
		timeout:     deps.HandlerTimeout,
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.timeout <= 0 {
		g.timeout = 30 * time.Second
	}
	return g
}

// Attach registers the gateway's handlers on a session.
func (g *Gateway) Attach(s *discordgo.Session) {
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) { g.HandleReady(r) })
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) { g.HandleInteraction(i) })
}

// AppID returns the application id learned from the last READY event.
func (g *Gateway) AppID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.appID
}

// HandleReady records the application id and forwards the event to the lifecycle.
func (g *Gateway) HandleReady(r *discordgo.Ready) {
	if r.User != nil {
		g.mu.Lock()
		g.appID = r.User.ID
		g.mu.Unlock()
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.lifecycle.OnReady(ctx); err != nil {
		g.logger.Error("startup failed, waiting for next READY", zap.Error(err))
	}
}

// HandleInteraction translates, dispatches and answers one interaction.
func (g *Gateway) HandleInteraction(i *discordgo.InteractionCreate) {
	ev, ok := Translate(i.Interaction)
	if !ok {
		g.logger.Debug("ignoring unsupported interaction", zap.Int("type", int(i.Type)))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	res := g.dispatcher.Dispatch(ctx, ev)
	switch res.Outcome {
	case interaction.OutcomeMalformed:
		return
	case interaction.OutcomeAlreadyHandled:
		g.acknowledge(i.Interaction, ev.Kind)
		return
	case interaction.OutcomeError:
		g.respond(i.Interaction, presentation.ErrorReply(res.Message))
		return
	}

	if ev.Kind == interaction.KindCommand && (ev.Name == interaction.CommandSponsor || ev.Name == interaction.CommandReport) {
		// the confirmation mentions the new channel, so it is created first
		ticket, err := g.provisioner.Execute(ctx, res.Effects)
		if ticket == nil {
			ticket = res.Ticket
		}
		if err != nil && ticket.ChannelID == "" {
			g.respond(i.Interaction, presentation.ErrorReply(interaction.UserMessage("")))
			return
		}
		g.respond(i.Interaction, presentation.CreatedReply(ticket))
		return
	}

	g.respond(i.Interaction, presentation.ActionReply(res.Ticket, res.Changed))
	if _, err := g.provisioner.Execute(ctx, res.Effects); err != nil {
		g.logger.Warn("ticket effects incomplete", zap.String("ticket", res.Ticket.ID.String()), zap.Error(err))
	}
}

func (g *Gateway) respond(i *discordgo.Interaction, data *discordgo.InteractionResponseData) {
	err := g.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		g.logger.Warn("interaction response failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

// acknowledge answers a replayed interaction without showing anything new.
func (g *Gateway) acknowledge(i *discordgo.Interaction, kind interaction.EventKind) {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if kind == interaction.KindCommand {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: "⏳ Already on it.", Flags: discordgo.MessageFlagsEphemeral},
		}
	}
	if err := g.api.InteractionRespond(i, resp); err != nil {
		g.logger.Warn("interaction acknowledge failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

// Translate converts a Discord interaction into a dispatcher event. The event instant
// is the interaction's snowflake timestamp, so replays share it.
func Translate(i *discordgo.Interaction) (interaction.RawEvent, bool) {
	ev := interaction.RawEvent{ID: i.ID, ChannelID: i.ChannelID}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		ev.Kind = interaction.KindCommand
		ev.Name = data.Name
		ev.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			if opt.Type == discordgo.ApplicationCommandOptionString {
				ev.Options[opt.Name] = opt.StringValue()
			}
		}
	case discordgo.InteractionMessageComponent:
		ev.Kind = interaction.KindComponent
		ev.Name = i.MessageComponentData().CustomID
	default:
		return interaction.RawEvent{}, false
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.ActorID = i.Member.User.ID
	case i.User != nil:
		ev.ActorID = i.User.ID
	}
	if ts, err := discordgo.SnowflakeTimestamp(i.ID); err == nil {
		ev.Instant = ts
	}
	return ev, true
}

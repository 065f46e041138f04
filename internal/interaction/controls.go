package interaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// Command names and component prefix understood by the default controls.
const (
	CommandSponsor = "sponsor"
	CommandReport  = "report"
	CommandClose   = "close"
	CommandExport  = "export"

	componentPrefix = "ticket"
	// OptionTicket names the optional ticket id argument of close and export.
	OptionTicket = "ticket"
)

// Engine is the part of the lifecycle engine the dispatcher drives.
type Engine interface {
	CreateTicket(ctx context.Context, category domain.Category, ownerID string) (*service.Result, error)
	CloseTicket(ctx context.Context, id domain.TicketID, actorID string) (*service.Result, error)
	ExportTicket(ctx context.Context, id domain.TicketID, actorID string) (*service.Result, error)
	TicketByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
}

// Invocation is an event routed to a control, with the argument that followed the
// control id in a component custom id.
type Invocation struct {
	Event RawEvent
	Arg   string
}

// Target names what an invocation acts on. Subject is the ticket id, or category and
// owner for creation, and together with Action forms the idempotency key.
type Target struct {
	Subject  string
	Action   string
	TicketID domain.TicketID
	Category domain.Category
}

// TargetFunc resolves the target of an invocation before anything is mutated.
type TargetFunc func(ctx context.Context, inv Invocation) (Target, error)

// HandlerFunc performs the action.
type HandlerFunc func(ctx context.Context, inv Invocation, target Target) (*service.Result, error)

// Control binds a command name or component id to an action.
type Control struct {
	ID         string
	Capability domain.Capability
	Target     TargetFunc
	Handler    HandlerFunc
}

// ComponentID builds the custom id of a ticket button, e.g. ticket:close:sponsor-0001.
func ComponentID(action domain.TicketAction, id domain.TicketID) string {
	return fmt.Sprintf("%s:%s:%s", componentPrefix, strings.ToLower(string(action)), id)
}

// controlKey splits an event name into the registered control id and its argument.
// Commands use their name; components use the first two custom id segments.
func controlKey(ev RawEvent) (string, string) {
	if ev.Kind != KindComponent {
		return ev.Name, ev.Options[OptionTicket]
	}
	parts := strings.SplitN(ev.Name, ":", 3)
	if len(parts) < 3 {
		return ev.Name, ""
	}
	return parts[0] + ":" + parts[1], parts[2]
}

// TicketControls returns the built-in commands and buttons.
func TicketControls(engine Engine) []Control {
	create := func(category domain.Category) Control {
		return Control{
			ID: string(category),
			Target: func(_ context.Context, inv Invocation) (Target, error) {
				return Target{Subject: string(category) + "/" + inv.Event.ActorID, Action: "create", Category: category}, nil
			},
			Handler: func(ctx context.Context, inv Invocation, _ Target) (*service.Result, error) {
				return engine.CreateTicket(ctx, category, inv.Event.ActorID)
			},
		}
	}
	act := func(id string, action domain.TicketAction, component bool) Control {
		run := engine.CloseTicket
		if action == domain.ActionExport {
			run = engine.ExportTicket
		}
		return Control{
			ID: id,
			Target: func(ctx context.Context, inv Invocation) (Target, error) {
				ticketID, err := resolveTicket(ctx, engine, inv, component)
				if err != nil {
					return Target{}, err
				}
				return Target{Subject: ticketID.String(), Action: strings.ToLower(string(action)), TicketID: ticketID}, nil
			},
			Handler: func(ctx context.Context, inv Invocation, target Target) (*service.Result, error) {
				return run(ctx, target.TicketID, inv.Event.ActorID)
			},
		}
	}
	return []Control{
		create(domain.CategorySponsor),
		create(domain.CategoryReport),
		act(CommandClose, domain.ActionClose, false),
		act(CommandExport, domain.ActionExport, false),
		act(componentPrefix+":close", domain.ActionClose, true),
		act(componentPrefix+":export", domain.ActionExport, true),
	}
}

// resolveTicket reads the ticket id from the component argument or command option,
// falling back to the ticket provisioned in the channel the command was issued in.
func resolveTicket(ctx context.Context, engine Engine, inv Invocation, component bool) (domain.TicketID, error) {
	if inv.Arg != "" {
		id, err := domain.ParseTicketID(inv.Arg)
		if err != nil {
			return domain.TicketID{}, apperrors.NewMalformed("invalid ticket reference", map[string]any{"arg": inv.Arg})
		}
		return id, nil
	}
	if component {
		return domain.TicketID{}, apperrors.NewMalformed("component without ticket reference", map[string]any{"custom_id": inv.Event.Name})
	}
	ticket, err := engine.TicketByChannel(ctx, inv.Event.ChannelID)
	if err != nil {
		return domain.TicketID{}, err
	}
	return ticket.ID, nil
}

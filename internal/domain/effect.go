package domain

// EffectKind enumerates the platform actions the engine can request.
type EffectKind string

const (
	EffectCreateChannel    EffectKind = "CREATE_CHANNEL"
	EffectRenameChannel    EffectKind = "RENAME_CHANNEL"
	EffectPostMessage      EffectKind = "POST_MESSAGE"
	EffectExportTranscript EffectKind = "EXPORT_TRANSCRIPT"
	EffectArchiveChannel   EffectKind = "ARCHIVE_CHANNEL"
)

// MessageTemplate selects what the presentation layer renders for a PostMessage effect.
type MessageTemplate string

const (
	TemplateTicketOpened   MessageTemplate = "ticket_opened"
	TemplateTicketClosed   MessageTemplate = "ticket_closed"
	TemplateTicketExported MessageTemplate = "ticket_exported"
)

// Effect is a side-effect instruction executed by the gateway, at most once.
// Only the fields relevant to Kind are set.
type Effect struct {
	Kind     EffectKind
	Ticket   TicketID
	Name     string
	GroupID  string
	OwnerID  string
	TargetID string
	Template MessageTemplate
}

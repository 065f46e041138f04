package interaction

import apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"

const (
	msgDuplicate   = "You already have an open ticket in this category."
	msgInvalid     = "This action is not available for this ticket."
	msgNotFound    = "This ticket no longer exists."
	msgForbidden   = "You do not have permission to do that."
	msgUnavailable = "The ticket service is temporarily unavailable, please try again."
	msgMalformed   = "That interaction is not recognised."
	msgInternal    = "Something went wrong while handling your request."
)

// UserMessage translates an error code into the text shown to the acting user.
func UserMessage(code string) string {
	switch code {
	case apperrors.CodeDuplicateActiveTicket:
		return msgDuplicate
	case apperrors.CodeInvalidTransition:
		return msgInvalid
	case apperrors.CodeNotFound:
		return msgNotFound
	case apperrors.CodeUnauthorized:
		return msgForbidden
	case apperrors.CodeStoreUnavailable, apperrors.CodeTimeout:
		return msgUnavailable
	case apperrors.CodeMalformed, apperrors.CodeValidationFailed:
		return msgMalformed
	default:
		return msgInternal
	}
}

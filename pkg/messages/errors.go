package messages

import (
	"errors"
	"fmt"
)

// Code is a protocol error code sent in error{code, message}.
type Code string

// Error codes
const (
	CodeInvalidMessage      Code = "INVALID_MESSAGE"
	CodeUnknownMessageType  Code = "UNKNOWN_MESSAGE_TYPE"
	CodeNotAuthenticated    Code = "NOT_AUTHENTICATED"
	CodeGameNotFound        Code = "GAME_NOT_FOUND"
	CodeGameEnded           Code = "GAME_ENDED"
	CodeNotAPlayer          Code = "NOT_A_PLAYER"
	CodeNotYourTurn         Code = "NOT_YOUR_TURN"
	CodeIllegalMove         Code = "ILLEGAL_MOVE"
	CodeCannotAbort         Code = "CANNOT_ABORT"
	CodeAlreadyQueued       Code = "ALREADY_QUEUED"
	CodeNotInQueue          Code = "NOT_IN_QUEUE"
	CodeAlreadyInGame       Code = "ALREADY_IN_GAME"
	CodeInvalidTimeControl  Code = "INVALID_TIME_CONTROL"
	CodeMaintenanceMode     Code = "MAINTENANCE_MODE"
	CodeNoPendingOffer      Code = "NO_PENDING_OFFER"
	CodeCannotTakeback      Code = "CANNOT_TAKEBACK"
	CodeGameNotEnded        Code = "GAME_NOT_ENDED"
	CodeOpponentUnavailable Code = "OPPONENT_UNAVAILABLE"
	CodeInternalError       Code = "INTERNAL_ERROR"
)

// Error is a rejection reported to the sender only.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a protocol error.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the protocol error from err, mapping anything else to
// INTERNAL_ERROR.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{Code: CodeInternalError, Message: "internal error"}
}

// IsCode reports whether err carries the given protocol code.
func IsCode(err error, code Code) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == code
}

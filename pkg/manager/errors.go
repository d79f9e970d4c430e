package manager

import "github.com/tecu23/blitz-server/pkg/messages"

var (
	errNotAuthenticated   = messages.Errorf(messages.CodeNotAuthenticated, "send hello first")
	errGameNotFound       = messages.Errorf(messages.CodeGameNotFound, "game not found")
	errGameEnded          = messages.Errorf(messages.CodeGameEnded, "game has ended")
	errGameNotEnded       = messages.Errorf(messages.CodeGameNotEnded, "game is still in progress")
	errNotAPlayer         = messages.Errorf(messages.CodeNotAPlayer, "you are not a player in this game")
	errNotYourTurn        = messages.Errorf(messages.CodeNotYourTurn, "it is not your turn")
	errCannotAbort        = messages.Errorf(messages.CodeCannotAbort, "games can only be aborted before move 2")
	errCannotTakeback     = messages.Errorf(messages.CodeCannotTakeback, "no move of yours to take back")
	errNoPendingOffer     = messages.Errorf(messages.CodeNoPendingOffer, "no pending offer from your opponent")
	errAlreadyQueued      = messages.Errorf(messages.CodeAlreadyQueued, "already in a queue")
	errNotInQueue         = messages.Errorf(messages.CodeNotInQueue, "not in a queue")
	errAlreadyInGame      = messages.Errorf(messages.CodeAlreadyInGame, "already playing a game")
	errMaintenance        = messages.Errorf(messages.CodeMaintenanceMode, "server is in maintenance mode")
	errOpponentOffline    = messages.Errorf(messages.CodeOpponentUnavailable, "opponent is not connected")
	errInvalidTimeControl = messages.Errorf(messages.CodeInvalidTimeControl, "unsupported time control")
)

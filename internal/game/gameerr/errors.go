// Package gameerr defines the error taxonomy shared by the rules engine.
//
// Every failure raised by the battlefield, team, resolver or progression machine is an
// *Error with a Kind that tells the caller who is at fault: the player (Validation,
// Conflict, NotFound, Transition) or the server (Internal).
package gameerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and user-facing messaging.
type Kind int

const (
	// KindValidation means the request was structurally invalid or out of range.
	KindValidation Kind = iota
	// KindConflict means the request was well formed but the game's data makes it impossible.
	KindConflict
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindTransition means the action is not legal in the current phase.
	KindTransition
	// KindInternal means a content or programming defect; never shown as a gameplay message.
	KindInternal
)

var kindNames = map[Kind]string{
	KindValidation: "VALIDATION",
	KindConflict:   "CONFLICT",
	KindNotFound:   "NOT_FOUND",
	KindTransition: "TRANSITION",
	KindInternal:   "INTERNAL",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

// Error is a classified rules-engine error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches errors by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels. Compare with errors.Is; construct with New.
var (
	ErrRange             = &Error{Kind: KindValidation, Code: "range"}
	ErrSameSlot          = &Error{Kind: KindValidation, Code: "same_slot"}
	ErrInvalidChoice     = &Error{Kind: KindValidation, Code: "invalid_choice"}
	ErrValidation        = &Error{Kind: KindValidation, Code: "validation"}
	ErrInvalidCardType   = &Error{Kind: KindValidation, Code: "invalid_card_type"}
	ErrInvalidIndex      = &Error{Kind: KindValidation, Code: "invalid_index"}
	ErrInvalidAmount     = &Error{Kind: KindValidation, Code: "invalid_amount"}
	ErrServerAction      = &Error{Kind: KindValidation, Code: "server_action"}
	ErrOccupiedSlot      = &Error{Kind: KindConflict, Code: "occupied_slot"}
	ErrAlreadyChosen     = &Error{Kind: KindConflict, Code: "already_chosen"}
	ErrNotTriggerable    = &Error{Kind: KindConflict, Code: "not_triggerable"}
	ErrTeamFull          = &Error{Kind: KindConflict, Code: "team_full"}
	ErrSageTaken         = &Error{Kind: KindConflict, Code: "sage_taken"}
	ErrNotEnoughGold     = &Error{Kind: KindConflict, Code: "not_enough_gold"}
	ErrEmptyDeck         = &Error{Kind: KindConflict, Code: "empty_deck"}
	ErrNotYourTurn       = &Error{Kind: KindConflict, Code: "not_your_turn"}
	ErrNotReady          = &Error{Kind: KindConflict, Code: "not_ready"}
	ErrAlreadyJoined     = &Error{Kind: KindConflict, Code: "already_joined"}
	ErrAlreadyActed      = &Error{Kind: KindConflict, Code: "already_acted"}
	ErrGameFull          = &Error{Kind: KindConflict, Code: "game_full"}
	ErrEmptySlot         = &Error{Kind: KindNotFound, Code: "empty_slot"}
	ErrPlayerNotFound    = &Error{Kind: KindNotFound, Code: "player_not_found"}
	ErrCardNotFound      = &Error{Kind: KindNotFound, Code: "card_not_found"}
	ErrGameNotFound      = &Error{Kind: KindNotFound, Code: "game_not_found"}
	ErrInvalidTransition = &Error{Kind: KindTransition, Code: "invalid_transition"}
	ErrInternal          = &Error{Kind: KindInternal, Code: "internal"}
)

// New builds an error of the sentinel's kind and code with a formatted message.
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal builds an internal error. Used for ability author bugs and broken tables.
func Internal(format string, args ...any) *Error {
	return New(ErrInternal, format, args...)
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsInternal reports whether err is a server fault.
func IsInternal(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}

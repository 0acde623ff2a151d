package domain

import (
	"errors"
	"fmt"
)

// Game-rule declines. These are reported back to the user and never mutate
// the record they were raised against.
var (
	ErrUnknownItem       = errors.New("unknown item")
	ErrInsufficientItems = errors.New("not enough items")
	ErrNoPotion          = errors.New("no potion available")
	ErrNoBait            = errors.New("no bait available")
	ErrStackLimit        = errors.New("stack limit reached")
	ErrUnknownEnemy      = errors.New("unknown enemy")
)

// Mini-game declines.
var (
	ErrGameNotFound     = errors.New("game not found")
	ErrNotParticipant   = errors.New("not a participant of this game")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrInvalidGameState = errors.New("game is not in a valid state for this action")
	ErrPositionTaken    = errors.New("position already taken")
	ErrPositionRange    = errors.New("position must be within 1..9")
	ErrSelfPlay         = errors.New("cannot play against yourself")
)

// Sub-bot provisioning declines.
var (
	ErrBotLimit          = errors.New("sub-bot limit reached")
	ErrBotNotFound       = errors.New("sub-bot not found")
	ErrInvalidTransition = errors.New("invalid sub-bot state transition")
)

// InsufficientFundsError carries the amount the failed operation required.
type InsufficientFundsError struct {
	Need int64
	Have int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient gold: need %d, have %d", e.Need, e.Have)
}

// IsInsufficientFunds reports whether err is a funds decline.
func IsInsufficientFunds(err error) bool {
	var target *InsufficientFundsError
	return errors.As(err, &target)
}

// StorageError wraps a backing-store failure. The operation is aborted, the
// user sees a generic failure, and the process keeps running.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err originated in the persistence layer.
func IsStorageError(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

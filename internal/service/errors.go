package service

import (
	"errors"
	"fmt"
	"time"
)

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("resource not found")
)

// Matchmaking errors
var (
	ErrAlreadyInQueue   = errors.New("already in queue")
	ErrNotInQueue       = errors.New("not in queue")
	ErrActiveBattle     = errors.New("user already has an active battle")
	ErrInvalidFormat    = errors.New("invalid battle format")
)

// Battle lifecycle errors
var (
	ErrBattleNotFound     = errors.New("battle not found")
	ErrRoundNotFound      = errors.New("round not found")
	ErrRoundClosed        = errors.New("round already closed")
	ErrNotParticipant     = errors.New("user is not a participant of this battle")
	ErrNotGuest           = errors.New("only the invited guest may accept")
	ErrNotHost            = errors.New("only the host may change visibility")
	ErrBattleNotWaiting   = errors.New("battle is not waiting for acceptance")
	ErrBattleNotActive    = errors.New("battle is not in progress")
	ErrCodeTooShort       = errors.New("submission code is too short")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Spectator errors
var (
	ErrBattlePrivate       = errors.New("battle is not public")
	ErrBattleNotWatchable  = errors.New("battle is not open for spectating")
	ErrParticipantSpectate = errors.New("participants cannot spectate their own battle")
	ErrAlreadySpectating   = errors.New("already spectating this battle")
)

// User errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
)

// ThrottledError rejects a submission made inside the per-user per-battle
// cooldown; Wait is the remaining cooldown.
type ThrottledError struct {
	Wait time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("please wait %d seconds before submitting again", int(e.Wait.Seconds()+0.999))
}

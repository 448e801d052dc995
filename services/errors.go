package services

import "errors"

// Errors shared across services and the HTTP mapping layer. Bracket slot
// errors (invalid size, slot not found, already completed) are owned by the
// brackets package; the ones here belong to persisted matches and rooms.
var (
	ErrMatchNotFound         = errors.New("match not found")
	ErrBracketNotFound       = errors.New("bracket not found for tournament")
	ErrBracketExists         = errors.New("bracket already generated for tournament")
	ErrMatchAlreadyCompleted = errors.New("match is already completed")
	ErrWinnerNotInMatch      = errors.New("winner team does not play in this match")
	ErrNoSchedulableSlots    = errors.New("round has no slots ready for scheduling")

	ErrRoomIDTaken               = errors.New("room id is already taken")
	ErrRoomIDGenerationExhausted = errors.New("failed to generate a unique room id")
	ErrInvalidRoomWindow         = errors.New("room expiry must be after visibility")
)

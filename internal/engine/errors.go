package engine

import "errors"

var (
	ErrInvalidSeed      = errors.New("invalid seed")
	ErrInvalidEncounter = errors.New("invalid encounter")
	ErrUnknownValue     = errors.New("unknown value")
)

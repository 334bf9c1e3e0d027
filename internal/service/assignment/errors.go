package assignment

import "errors"

// Sentinel errors for the assignment service layer.
var (
	ErrNoCandidates    = errors.New("assignment rule has no candidate users")
	ErrUnknownStrategy = errors.New("unknown assignment strategy")
	ErrCursorBusy      = errors.New("round-robin cursor is locked")
)

package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoSteps           = errors.New("drip campaign has no steps")
	ErrStepMissing       = errors.New("recipient's current step no longer exists")
)

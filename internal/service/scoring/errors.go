package scoring

import "errors"

// Sentinel errors for the scoring service layer.
var (
	ErrTriggerRequired = errors.New("trigger type is required")
)

package segment

import "errors"

// Sentinel errors for the segment service layer.
var (
	ErrNotDynamic        = errors.New("list is not dynamic")
	ErrMalformedCriteria = errors.New("malformed dynamic criteria")
)

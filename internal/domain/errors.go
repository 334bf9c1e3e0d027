package domain

import "errors"

// ErrNotFound is returned by repositories when a referenced row does not
// exist. Services translate it into a warning and a null result.
var ErrNotFound = errors.New("not found")

package milestone

import "errors"

// Sentinel kinds for evaluation errors.
var (
	ErrMalformedProgressRecord = errors.New("malformed progress record")
)

package progress

import "errors"

// Sentinel kinds for normalization errors.
var (
	ErrUnrecognizedProgressSchema = errors.New("unrecognized progress schema")
)

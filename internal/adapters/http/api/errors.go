package api

import "errors"

// ErrBadRequest is returned for malformed paths and query parameters.
var ErrBadRequest = errors.New("bad request")

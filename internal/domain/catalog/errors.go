package catalog

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrMalformedCatalogEntry = errors.New("malformed catalog entry")
)

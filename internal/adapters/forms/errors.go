package forms

import "errors"

var (
	ErrMissingColumn = errors.New("responses csv missing column")
	ErrBadRarity     = errors.New("responses csv has unparseable rarity")
)

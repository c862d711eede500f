// Package model contains domain models passed between layers.
package model

// ModuleType is the single-letter branch code of an operator module.
type ModuleType string

// Recognized module branches.
const (
	ModuleX ModuleType = "X"
	ModuleY ModuleType = "Y"
	ModuleD ModuleType = "D"

	// ModuleExcluded holds the slot of a module left out of the catalog so
	// later ordinals keep their position.
	ModuleExcluded ModuleType = ""
)

// ModuleTypes lists the recognized module branches in report order.
var ModuleTypes = []ModuleType{ModuleX, ModuleY, ModuleD}

// ParseModuleType reports whether letter names a recognized module branch.
func ParseModuleType(letter string) (ModuleType, bool) {
	switch ModuleType(letter) {
	case ModuleX, ModuleY, ModuleD:
		return ModuleType(letter), true
	default:
		return "", false
	}
}

// Operator is one cataloged entity. Values are built once per run and never mutated.
type Operator struct {
	ID     string
	Name   string
	Rarity int
	// ModuleOrder holds module branches in release order; index i is the
	// module stored at 1-based ordinal i+1 in a roster entry. Excluded
	// modules stay in place as ModuleExcluded.
	ModuleOrder []ModuleType
	CNOnly      bool
}

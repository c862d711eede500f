// Package progress collapses the two upstream encodings of per-slot levels
// (masteries, modules) into one ordinal mapping.
package progress

import (
	"fmt"
	"strconv"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// maxKeyedSlots bounds the keyed form; skills and modules never exceed three slots.
const maxKeyedSlots = 3

// Ordinals maps a 1-based slot number to its level. A missing slot means level 0.
type Ordinals map[int]int

// Level returns the level at ordinal n, or 0.
func (o Ordinals) Level(n int) int {
	return o[n]
}

// Normalize converts an encoding into ordinals.
//
//	[null, 3]          -> {2: 3}
//	{"0": 1, "1": 2}   -> {1: 1, 2: 2}
func Normalize(enc model.LevelEncoding) (Ordinals, error) {
	out := Ordinals{}
	switch enc.Kind {
	case model.EncodingAbsent:
		return out, nil
	case model.EncodingSequence:
		for i, v := range enc.Sequence {
			if v != nil && *v != 0 {
				out[i+1] = *v
			}
		}
		return out, nil
	case model.EncodingKeyed:
		for i := 1; i <= maxKeyedSlots; i++ {
			v, ok := enc.Keyed[strconv.Itoa(i-1)]
			if !ok {
				continue
			}
			out[i] = model.IntOr(v, 0)
		}
		return out, nil
	case model.EncodingInvalid:
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedProgressSchema, string(enc.Raw))
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnrecognizedProgressSchema, enc.Kind)
	}
}

// ModuleLevels maps module ordinals onto branch letters using the operator's
// release order. Every branch is present in the result; ordinals past the
// end of order and excluded slots are ignored.
func ModuleLevels(ord Ordinals, order []model.ModuleType) map[model.ModuleType]int {
	out := make(map[model.ModuleType]int, len(model.ModuleTypes))
	for _, t := range model.ModuleTypes {
		out[t] = 0
	}
	for i, letter := range order {
		if letter == model.ModuleExcluded {
			continue
		}
		out[letter] = ord.Level(i + 1)
	}
	return out
}

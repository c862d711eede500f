package catalog

import (
	"fmt"
	"sort"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Availability says whether an operator and each of its module branches can
// be counted at all on the selected server.
type Availability struct {
	ID        string
	Available bool
	Modules   map[model.ModuleType]bool
}

// AvailabilityFlags computes availability for every operator whose rarity is
// in rarities (all rarities when empty). CN-only operators are still listed,
// only flagged unavailable, unless includeCN is set.
func AvailabilityFlags(raw map[string]RawOperator, rarities []int, includeCN bool) ([]Availability, error) {
	accept := make(map[int]bool, len(rarities))
	for _, r := range rarities {
		accept[r] = true
	}

	out := make([]Availability, 0, len(raw))
	for id, data := range raw {
		if len(accept) > 0 && !accept[data.Rarity] {
			continue
		}
		a := Availability{
			ID:        id,
			Available: includeCN || !data.IsCNOnly,
			Modules:   map[model.ModuleType]bool{model.ModuleX: false, model.ModuleY: false, model.ModuleD: false},
		}
		for _, m := range data.Modules {
			if !includeCN && m.IsCNOnly {
				continue
			}
			letter, ok := moduleLetter(m.TypeName)
			if !ok {
				return nil, fmt.Errorf("%w: %s module %q", ErrMalformedCatalogEntry, id, m.TypeName)
			}
			a.Modules[letter] = true
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Package catalog builds the immutable operator catalog a run evaluates against.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/pkg/logger"
)

// Rarity bounds of the game data.
const (
	MinRarity = 1
	MaxRarity = 6

	// moduleStages is the stage count of every released module.
	moduleStages = 3
)

// RawModule mirrors one module object in operators.json.
type RawModule struct {
	TypeName string            `json:"typeName"`
	IsCNOnly bool              `json:"isCnOnly"`
	Stages   []json.RawMessage `json:"stages"`
}

// RawOperator mirrors one operator object in operators.json. Unused fields are dropped.
type RawOperator struct {
	Name     string      `json:"name"`
	Rarity   int         `json:"rarity"`
	IsCNOnly bool        `json:"isCnOnly"`
	Modules  []RawModule `json:"modules"`
}

// Option applies a build option.
type Option func(*buildOptions)

type buildOptions struct {
	includeRegionExclusive bool
	logger                 logger.Logger
}

// WithRegionExclusive controls whether CN-only operators and modules are kept.
func WithRegionExclusive(include bool) Option {
	return func(o *buildOptions) {
		o.includeRegionExclusive = include
	}
}

// WithLogger sets the logger used for catalog anomalies.
func WithLogger(l logger.Logger) Option {
	return func(o *buildOptions) {
		o.logger = l
	}
}

// Catalog is the per-run, read-only view of every known operator.
type Catalog struct {
	operators map[string]model.Operator
	ids       []string
	byRarity  map[int][]string
}

// Decode parses the operators.json payload.
func Decode(data []byte) (map[string]RawOperator, error) {
	var raw map[string]RawOperator
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode operators: %w", err)
	}
	return raw, nil
}

// Build derives the catalog from the raw operator map. Any module whose
// typeName does not end in a recognized branch letter aborts the build.
func Build(raw map[string]RawOperator, opts ...Option) (*Catalog, error) {
	o := buildOptions{includeRegionExclusive: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("catalog")
	}

	c := &Catalog{
		operators: make(map[string]model.Operator, len(raw)),
		byRarity:  make(map[int][]string, MaxRarity),
	}
	for id, data := range raw {
		if data.IsCNOnly && !o.includeRegionExclusive {
			continue
		}
		if data.Rarity < MinRarity || data.Rarity > MaxRarity {
			return nil, fmt.Errorf("%w: %s has rarity %d", ErrMalformedCatalogEntry, id, data.Rarity)
		}

		order := make([]model.ModuleType, 0, len(data.Modules))
		for _, m := range data.Modules {
			letter, ok := moduleLetter(m.TypeName)
			if !ok {
				return nil, fmt.Errorf("%w: %s module %q", ErrMalformedCatalogEntry, id, m.TypeName)
			}
			if n := len(m.Stages); n > 0 && n != moduleStages {
				o.logger.Debug(context.Background(), "module stage count differs",
					logger.String("operator", id),
					logger.String("module", m.TypeName),
					logger.Int("stages", n),
				)
			}
			if m.IsCNOnly && !o.includeRegionExclusive {
				letter = model.ModuleExcluded
			}
			order = append(order, letter)
		}

		c.operators[id] = model.Operator{
			ID:          id,
			Name:        data.Name,
			Rarity:      data.Rarity,
			ModuleOrder: order,
			CNOnly:      data.IsCNOnly,
		}
		c.ids = append(c.ids, id)
		c.byRarity[data.Rarity] = append(c.byRarity[data.Rarity], id)
	}

	sort.Strings(c.ids)
	for r := range c.byRarity {
		sort.Strings(c.byRarity[r])
	}
	return c, nil
}

func moduleLetter(typeName string) (model.ModuleType, bool) {
	if typeName == "" {
		return "", false
	}
	return model.ParseModuleType(typeName[len(typeName)-1:])
}

// Get returns the operator with the given id.
func (c *Catalog) Get(id string) (model.Operator, bool) {
	op, ok := c.operators[id]
	return op, ok
}

// Contains reports whether id is cataloged.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.operators[id]
	return ok
}

// Len returns the number of cataloged operators.
func (c *Catalog) Len() int { return len(c.ids) }

// IDs returns all operator ids in sorted order. The slice is a copy.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// ByRarity returns the set of operator ids with rarity r. A zero rarity means every operator.
func (c *Catalog) ByRarity(r int) map[string]struct{} {
	ids := c.ids
	if r != 0 {
		ids = c.byRarity[r]
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

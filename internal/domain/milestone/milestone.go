// Package milestone evaluates the fixed set of progress milestones for one
// operator on one account.
package milestone

import (
	"fmt"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/internal/domain/progress"
)

const (
	maxMasteryLevel = 3
	maxModuleLevel  = 3
	maxPotential    = 6
	// masterySkillLevel is the skill rank masteries require.
	masterySkillLevel = 7
	// caster Amiya carries masteries and promotions her listed rarity cannot have.
	amiyaID = "char_002_amiya"
)

type levelCap struct {
	promotion int
	level     int
}

// maxPromotionAndLevel is the final (promotion, level) pair per rarity.
var maxPromotionAndLevel = map[int]levelCap{
	1: {0, 30},
	2: {0, 30},
	3: {1, 55},
	4: {2, 70},
	5: {2, 80},
	6: {2, 90},
}

// moduleUnlockLevel is the E2 level at which modules open, per rarity.
var moduleUnlockLevel = map[int]int{
	4: 40,
	5: 50,
	6: 60,
}

var masteryFlags = [...]Flag{FlagS1M3, FlagS2M3, FlagS3M3}

var moduleFlags = map[model.ModuleType]Flag{
	model.ModuleX: FlagModX3,
	model.ModuleY: FlagModY3,
	model.ModuleD: FlagModD3,
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithExempt replaces the set of operators skipped by the impossibility correction.
func WithExempt(ids ...string) Option {
	return func(e *Evaluator) {
		e.exempt = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			e.exempt[id] = struct{}{}
		}
	}
}

// Evaluator computes milestone flags. It holds no mutable state and is safe
// for concurrent use.
type Evaluator struct {
	exempt map[string]struct{}
}

// NewEvaluator creates an evaluator with configuration options.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		exempt: map[string]struct{}{amiyaID: {}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEvaluator = NewEvaluator()

// Evaluate runs the default evaluator.
func Evaluate(rec model.Progress, op model.Operator) (Flags, error) {
	return defaultEvaluator.Evaluate(rec, op)
}

// Evaluate returns the milestone flags of rec. op supplies the catalog data
// (id and module release order); rarity is read from the record itself.
func (e *Evaluator) Evaluate(rec model.Progress, op model.Operator) (Flags, error) {
	var f Flags
	if rec.DecodeErr != nil {
		return Flags{}, fmt.Errorf("%w: %s: %v", ErrMalformedProgressRecord, op.ID, rec.DecodeErr)
	}
	if !rec.Owned {
		return f, nil
	}

	if rec.Rarity == nil {
		return Flags{}, fmt.Errorf("%w: %s: missing rarity", ErrMalformedProgressRecord, op.ID)
	}
	rarity := *rec.Rarity
	maxPair, ok := maxPromotionAndLevel[rarity]
	if !ok {
		return Flags{}, fmt.Errorf("%w: %s: rarity %d", ErrMalformedProgressRecord, op.ID, rarity)
	}
	if rec.Potential == nil {
		return Flags{}, fmt.Errorf("%w: %s: missing potential", ErrMalformedProgressRecord, op.ID)
	}

	f[FlagOwned] = true

	promotion := model.IntOr(rec.Promotion, 0)
	level := model.IntOr(rec.Level, 0)
	f[FlagMaxLevel] = rec.Promotion != nil && rec.Level != nil &&
		promotion == maxPair.promotion && level == maxPair.level

	f[FlagE1] = promotion >= 1
	f[FlagE2] = promotion >= 2

	mastery, err := progress.Normalize(rec.Mastery)
	if err != nil {
		return Flags{}, fmt.Errorf("%s mastery: %w", op.ID, err)
	}
	for i, flag := range masteryFlags {
		f[flag] = mastery.Level(i+1) == maxMasteryLevel
	}
	f[FlagAllM3] = rarity >= 4 && f[FlagS1M3] && f[FlagS2M3] && (f[FlagS3M3] || rarity < 6)

	if unlock, ok := moduleUnlockLevel[rarity]; ok && promotion >= 2 && level >= unlock && rec.Module.Present() {
		ord, err := progress.Normalize(rec.Module)
		if err != nil {
			return Flags{}, fmt.Errorf("%s module: %w", op.ID, err)
		}
		for letter, lvl := range progress.ModuleLevels(ord, op.ModuleOrder) {
			f[moduleFlags[letter]] = lvl == maxModuleLevel
		}
	}

	f[FlagPot6] = *rec.Potential == maxPotential

	if _, skip := e.exempt[op.ID]; !skip {
		correctImpossible(&f, rarity)
	}

	if model.IntOr(rec.SkillLevel, 0) < masterySkillLevel {
		f[FlagS1M3] = false
		f[FlagS2M3] = false
		f[FlagS3M3] = false
		f[FlagAllM3] = false
	}

	return f, nil
}

// correctImpossible clears milestones the rarity cannot reach. Stale upstream
// fields otherwise leak through.
func correctImpossible(f *Flags, rarity int) {
	if rarity < 6 {
		f[FlagS3M3] = false
	}
	if rarity < 4 {
		f[FlagE2] = false
		f[FlagS2M3] = false
		f[FlagS1M3] = false
	}
	if rarity < 3 {
		f[FlagE1] = false
	}
}

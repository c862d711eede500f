// Package aggregate folds per-account milestone flags into per-operator counts.
package aggregate

import (
	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Tally counts, per flag, how many accounts reached it.
type Tally [milestone.NumFlags]int

// Get returns the counter for f.
func (t Tally) Get(f milestone.Flag) int { return t[f] }

// add increments every counter whose flag is set.
func (t *Tally) add(fs milestone.Flags) {
	for i, v := range fs {
		if v {
			t[i]++
		}
	}
}

// Counts maps operator id to its tally.
type Counts map[string]Tally

// Merge adds other into c. Keys missing from c are added.
func (c Counts) Merge(other Counts) {
	for id, t := range other {
		cur := c[id]
		for i := range cur {
			cur[i] += t[i]
		}
		c[id] = cur
	}
}

// Clone returns an independent copy.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for id, t := range c {
		out[id] = t
	}
	return out
}

// RecordError describes one roster entry that could not be evaluated.
type RecordError struct {
	OperatorID string
	Err        error
}

func (e RecordError) Error() string { return e.OperatorID + ": " + e.Err.Error() }

// Unwrap exposes the underlying error kind.
func (e RecordError) Unwrap() error { return e.Err }

// Evaluator is the milestone evaluation the aggregator depends on.
type Evaluator interface {
	Evaluate(rec model.Progress, op model.Operator) (milestone.Flags, error)
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithAccepted restricts counting to the given operator ids. Ids that are not
// cataloged are ignored. An empty set keeps the default of every cataloged operator.
func WithAccepted(ids map[string]struct{}) Option {
	return func(a *Aggregator) {
		if len(ids) > 0 {
			a.accepted = ids
		}
	}
}

// WithEvaluator overrides the milestone evaluator.
func WithEvaluator(ev Evaluator) Option {
	return func(a *Aggregator) {
		if ev != nil {
			a.evaluator = ev
		}
	}
}

// Aggregator accumulates counts for one cohort. It is not safe for concurrent
// use; fold rosters from a single goroutine or merge separate aggregators.
type Aggregator struct {
	catalog   *catalog.Catalog
	accepted  map[string]struct{}
	evaluator Evaluator
	counts    Counts
	rosters   int
}

// New creates an aggregator with a zero tally for every accepted operator.
func New(cat *catalog.Catalog, opts ...Option) *Aggregator {
	a := &Aggregator{
		catalog:   cat,
		evaluator: milestone.NewEvaluator(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.accepted == nil {
		a.accepted = cat.ByRarity(0)
	}

	a.counts = make(Counts, len(a.accepted))
	for id := range a.accepted {
		if cat.Contains(id) {
			a.counts[id] = Tally{}
		}
	}
	return a
}

// Add folds one roster in and returns the entries that were skipped.
func (a *Aggregator) Add(roster model.Roster) []RecordError {
	a.rosters++
	var skipped []RecordError
	for id, rec := range roster {
		tally, ok := a.counts[id]
		if !ok {
			continue
		}
		op, _ := a.catalog.Get(id)
		flags, err := a.evaluator.Evaluate(rec, op)
		if err != nil {
			skipped = append(skipped, RecordError{OperatorID: id, Err: err})
			continue
		}
		tally.add(flags)
		a.counts[id] = tally
	}
	return skipped
}

// Counts returns a copy of the current counts.
func (a *Aggregator) Counts() Counts {
	return a.counts.Clone()
}

// Rosters returns how many rosters have been folded in.
func (a *Aggregator) Rosters() int { return a.rosters }

// Aggregate is the one-shot form of New followed by Add for every roster.
func Aggregate(cat *catalog.Catalog, rosters []model.Roster, opts ...Option) (Counts, []RecordError) {
	a := New(cat, opts...)
	var skipped []RecordError
	for _, r := range rosters {
		skipped = append(skipped, a.Add(r)...)
	}
	return a.Counts(), skipped
}

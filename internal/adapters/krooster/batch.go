package krooster

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Resolution is the outcome for one handle of a batch. Err is set when the
// lookup failed; the handle then counts as not found.
type Resolution struct {
	Handle    string
	AccountID model.AccountID
	Found     bool
	Err       error
}

// ResolveBatch resolves handles with at most limit lookups in flight. The
// result has one entry per distinct input handle. A failing handle never
// aborts the others.
func ResolveBatch(ctx context.Context, r Resolver, handles []string, limit int) map[string]Resolution {
	uniq := make([]string, 0, len(handles))
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		uniq = append(uniq, h)
	}

	results := make([]Resolution, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, h := range uniq {
		g.Go(func() error {
			id, ok, err := r.Resolve(gctx, h)
			results[i] = Resolution{Handle: h, AccountID: id, Found: ok && err == nil, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Resolution, len(results))
	for _, res := range results {
		out[res.Handle] = res
	}
	return out
}

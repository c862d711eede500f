package krooster

import (
	"context"
	"sync"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Upstream is what Memo wraps.
type Upstream interface {
	Resolver
	RosterFetcher
}

type resolved struct {
	id    model.AccountID
	found bool
}

// Memo remembers resolutions and rosters for the lifetime of one run.
// Failed lookups are not remembered so a later call retries them.
type Memo struct {
	upstream Upstream

	mu      sync.Mutex
	ids     map[string]resolved
	rosters map[model.AccountID]model.Roster
}

// NewMemo wraps upstream with an empty memo.
func NewMemo(upstream Upstream) *Memo {
	m := &Memo{upstream: upstream}
	m.Reset()
	return m
}

// Resolve returns the remembered resolution for handle or asks upstream.
func (m *Memo) Resolve(ctx context.Context, handle string) (model.AccountID, bool, error) {
	key := normalizeHandle(handle)

	m.mu.Lock()
	r, ok := m.ids[key]
	m.mu.Unlock()
	if ok {
		return r.id, r.found, nil
	}

	id, found, err := m.upstream.Resolve(ctx, handle)
	if err != nil {
		return "", false, err
	}

	m.mu.Lock()
	m.ids[key] = resolved{id: id, found: found}
	m.mu.Unlock()
	return id, found, nil
}

// FetchRoster returns the remembered roster for id or asks upstream.
func (m *Memo) FetchRoster(ctx context.Context, id model.AccountID) (model.Roster, error) {
	m.mu.Lock()
	r, ok := m.rosters[id]
	m.mu.Unlock()
	if ok {
		return r, nil
	}

	r, err := m.upstream.FetchRoster(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.rosters[id] = r
	m.mu.Unlock()
	return r, nil
}

// Reset forgets everything. Called at the start of each run.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make(map[string]resolved)
	m.rosters = make(map[model.AccountID]model.Roster)
}

// Len reports how many handles and rosters are remembered.
func (m *Memo) Len() (handles, rosters int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids), len(m.rosters)
}

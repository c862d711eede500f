// Package cohort splits survey submissions into the account groups a report
// is computed over.
package cohort

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// DefaultCommunities are the survey sources recognized by default.
var DefaultCommunities = []string{"Discord", "Reddit", "YouTube", "Twitter"}

// Cohort is one group of handles scored against one rarity. Rarity 0 means
// every rarity; an empty Community means every source.
type Cohort struct {
	Rarity    int
	Community string
	Handles   []string
}

// Key is the file-safe identifier of the cohort, e.g. "6" or "6_Reddit".
func (c Cohort) Key() string {
	key := "all"
	if c.Rarity != 0 {
		key = strconv.Itoa(c.Rarity)
	}
	if c.Community != "" {
		key += "_" + SafeName(c.Community)
	}
	return key
}

// SafeName keeps letters, digits and spaces, then joins words with underscores.
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// Options controls partitioning.
type Options struct {
	// Rarities to emit, in order. Empty means 1 through 6.
	Rarities []int
	// ByCommunity also emits one cohort per rarity and community.
	ByCommunity bool
	// Communities recognized when ByCommunity is set.
	Communities []string
}

// Partition groups submissions by declared rarity and, optionally, by source.
// Cohorts are returned even when empty; callers decide whether to skip them.
func Partition(subs []model.Submission, opts Options) []Cohort {
	rarities := opts.Rarities
	if len(rarities) == 0 {
		rarities = []int{1, 2, 3, 4, 5, 6}
	}
	communities := opts.Communities
	if len(communities) == 0 {
		communities = DefaultCommunities
	}

	var out []Cohort
	for _, r := range rarities {
		all := Cohort{Rarity: r}
		for _, s := range subs {
			if s.HasRarity(r) {
				all.Handles = append(all.Handles, s.Handle)
			}
		}
		out = append(out, all)

		if !opts.ByCommunity {
			continue
		}
		for _, c := range communities {
			part := Cohort{Rarity: r, Community: c}
			for _, s := range subs {
				if s.HasRarity(r) && s.HasCommunity(c) {
					part.Handles = append(part.Handles, s.Handle)
				}
			}
			out = append(out, part)
		}
	}
	return out
}

// Handles returns the distinct handles across cohorts, in first-seen order.
func Handles(cohorts []Cohort) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range cohorts {
		for _, h := range c.Handles {
			k := strings.ToLower(h)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

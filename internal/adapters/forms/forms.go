// Package forms reads survey inputs: the Google Forms responses export and
// plain one-handle-per-line lists.
package forms

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Column headers of the survey export.
const (
	ColumnHandle      = "What is your Krooster username?"
	ColumnRarities    = "What rarities have you entered data for?"
	ColumnCommunities = "How did you hear about this survey?"
)

// ReadResponses parses a responses export. Rows with a blank handle are
// dropped. When a handle repeats (case-insensitively) only its last row is
// kept, at the position of that last row.
func ReadResponses(r io.Reader) ([]model.Submission, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read responses header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	handleIdx, ok := col[ColumnHandle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnHandle)
	}
	rarityIdx, ok := col[ColumnRarities]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnRarities)
	}
	communityIdx, hasCommunities := col[ColumnCommunities]

	var subs []model.Submission
	last := map[string]int{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read responses line %d: %w", line, err)
		}

		handle := strings.TrimSpace(field(rec, handleIdx))
		if handle == "" {
			continue
		}
		rarities, err := ParseRarities(field(rec, rarityIdx))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var communities []string
		if hasCommunities {
			communities = splitList(field(rec, communityIdx))
		}

		sub := model.Submission{Handle: handle, Rarities: rarities, Communities: communities}
		key := strings.ToLower(handle)
		if i, dup := last[key]; dup {
			subs[i].Handle = ""
		}
		last[key] = len(subs)
		subs = append(subs, sub)
	}

	out := subs[:0]
	for _, s := range subs {
		if s.Handle != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// ReadResponsesFile opens path and calls ReadResponses.
func ReadResponsesFile(path string) ([]model.Submission, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadResponses(f)
}

// ParseRarities parses answers such as "6★, 5★".
func ParseRarities(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(part, " ★\t")
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 6 {
			return nil, fmt.Errorf("%w: %q", ErrBadRarity, part)
		}
		out = append(out, n)
	}
	return out, nil
}

// ReadHandles reads one handle per line, trimming whitespace and skipping blanks.
func ReadHandles(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if h := strings.TrimSpace(sc.Text()); h != "" {
			out = append(out, h)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read handles: %w", err)
	}
	return out, nil
}

// ReadHandlesFile opens path and calls ReadHandles.
func ReadHandlesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHandles(f)
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

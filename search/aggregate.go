package search

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/aquasecurity/vuln-search/nvd"
)

// Aggregate deduplicates records by ID, sorts them newest first and keeps at
// most maxResults of them.
//
// Among records sharing an ID, a dated record beats an undated one and the
// later date wins. Otherwise the first one in records is kept, so when records
// come from concurrent queries that choice follows completion order. Records
// with equal or missing dates are ordered by ID.
func Aggregate(records []nvd.Record, maxResults int) []nvd.Record {
	if maxResults < 1 {
		maxResults = DefaultMaxResults
	}

	index := make(map[string]int, len(records))
	deduped := make([]nvd.Record, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(deduped)
			deduped = append(deduped, r)
			continue
		}
		if supersedes(r, deduped[i]) {
			deduped[i] = r
		}
	}

	slices.SortStableFunc(deduped, compareRecords)
	if len(deduped) > maxResults {
		deduped = deduped[:maxResults]
	}
	return deduped
}

func supersedes(candidate, current nvd.Record) bool {
	switch {
	case candidate.Published == nil:
		return false
	case current.Published == nil:
		return true
	}
	return candidate.Published.After(*current.Published)
}

// compareRecords orders by publication date descending, undated last.
func compareRecords(a, b nvd.Record) int {
	switch {
	case a.Published != nil && b.Published != nil:
		if c := b.Published.Compare(*a.Published); c != 0 {
			return c
		}
	case a.Published != nil:
		return -1
	case b.Published != nil:
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

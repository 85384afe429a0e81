package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SortKey selects the ordering of List results. The zero value keeps
// insertion order.
type SortKey string

// Supported sort keys.
const (
	SortInsertion    SortKey = ""
	SortByID         SortKey = "id"
	SortByTitle      SortKey = "title"
	SortByStatus     SortKey = "status"
	SortByExecutedAt SortKey = "dateExecuted"
)

// ParseSortKey resolves a sort key name; an empty string selects insertion order.
func ParseSortKey(raw string) (SortKey, error) {
	switch key := SortKey(strings.TrimSpace(raw)); key {
	case SortInsertion, SortByID, SortByTitle, SortByStatus, SortByExecutedAt:
		return key, nil
	case "insertion":
		return SortInsertion, nil
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}

// Filter narrows List and Summary results. The zero value matches everything.
type Filter struct {
	// Statuses restricts results to the listed statuses when non-empty.
	Statuses []Status
	// TitleContains matches titles case-insensitively.
	TitleContains string
	SortBy        SortKey
	Descending    bool
}

// Validate rejects unknown statuses and sort keys.
func (f Filter) Validate() error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
		}
	}
	if _, err := ParseSortKey(string(f.SortBy)); err != nil {
		return err
	}
	return nil
}

// Matches reports whether tc satisfies the status and title criteria.
func (f Filter) Matches(tc TestCase) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if tc.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(tc.Title), strings.ToLower(f.TitleContains)) {
		return false
	}
	return true
}

// Sort orders records in place. Records are expected in insertion order; the
// sort is stable so ties keep that order.
func (f Filter) Sort(records []TestCase) {
	if f.SortBy == SortInsertion {
		if f.Descending {
			for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
				records[i], records[j] = records[j], records[i]
			}
		}
		return
	}
	less := func(a, b TestCase) bool {
		switch f.SortBy {
		case SortByID:
			return a.ID < b.ID
		case SortByTitle:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortByStatus:
			return statusRank(a.Status) < statusRank(b.Status)
		case SortByExecutedAt:
			return executedBefore(a.DateExecuted, b.DateExecuted)
		}
		return false
	}
	sort.SliceStable(records, func(i, j int) bool {
		if f.Descending {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

func statusRank(s Status) int {
	for i, candidate := range Statuses() {
		if candidate == s {
			return i
		}
	}
	return len(Statuses())
}

// executedBefore orders unexecuted records first.
func executedBefore(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	}
	return a.Before(*b)
}

// Summary is a point-in-time aggregate over a filtered set of records.
type Summary struct {
	Counts      map[Status]int `json:"counts"`
	Total       int            `json:"total"`
	Executed    int            `json:"executed"`
	Coverage    float64        `json:"coverage"`
	PassRate    float64        `json:"passRate"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Summarize counts records per status. Every status is present in Counts.
// Coverage is (Pass+Fail+Blocked)/Total and PassRate is Pass/Executed; both
// are zero when their denominator is zero.
func Summarize(records []TestCase, at time.Time) Summary {
	s := Summary{Counts: make(map[Status]int, len(Statuses())), GeneratedAt: at}
	for _, st := range Statuses() {
		s.Counts[st] = 0
	}
	for _, tc := range records {
		s.Counts[tc.Status]++
		s.Total++
		if tc.Status.Executed() {
			s.Executed++
		}
	}
	if s.Total > 0 {
		s.Coverage = float64(s.Executed) / float64(s.Total)
	}
	if s.Executed > 0 {
		s.PassRate = float64(s.Counts[StatusPass]) / float64(s.Executed)
	}
	return s
}

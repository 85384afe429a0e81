package memory

import (
	"caseledger/pkg/domain"
	"fmt"
	"sort"
	"strings"
)

type memoryState struct {
	records      map[string]TestCase
	order        []string
	archive      map[string]ArchivedRecord
	archiveOrder []string
	revisions    map[string][]Revision
}

// Snapshot captures a point-in-time clone of the store state. Records and
// Archive keep insertion order; Revisions are grouped by id, oldest first.
type Snapshot struct {
	Records   []TestCase       `json:"records"`
	Archive   []ArchivedRecord `json:"archive"`
	Revisions []Revision       `json:"revisions"`
}

func newMemoryState() memoryState {
	return memoryState{
		records:   make(map[string]TestCase),
		archive:   make(map[string]ArchivedRecord),
		revisions: make(map[string][]Revision),
	}
}

func (s memoryState) exists(id string) bool {
	if _, ok := s.records[id]; ok {
		return true
	}
	_, ok := s.archive[id]
	return ok
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.records {
		cloned.records[k] = v.Clone()
	}
	cloned.order = append([]string(nil), s.order...)
	for k, v := range s.archive {
		cloned.archive[k] = v.Clone()
	}
	cloned.archiveOrder = append([]string(nil), s.archiveOrder...)
	for k, revs := range s.revisions {
		cp := make([]Revision, 0, len(revs))
		for _, r := range revs {
			cp = append(cp, r.Clone())
		}
		cloned.revisions[k] = cp
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Records:   make([]TestCase, 0, len(state.order)),
		Archive:   make([]ArchivedRecord, 0, len(state.archiveOrder)),
		Revisions: make([]Revision, 0),
	}
	for _, id := range state.order {
		s.Records = append(s.Records, state.records[id].Clone())
	}
	for _, id := range state.archiveOrder {
		s.Archive = append(s.Archive, state.archive[id].Clone())
	}
	ids := make([]string, 0, len(state.revisions))
	for id := range state.revisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, r := range state.revisions[id] {
			s.Revisions = append(s.Revisions, r.Clone())
		}
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) (memoryState, error) {
	state := newMemoryState()
	for _, tc := range s.Records {
		if state.exists(tc.ID) {
			return memoryState{}, fmt.Errorf("snapshot: %w: %q", domain.ErrDuplicateID, tc.ID)
		}
		if err := tc.CheckInvariants(); err != nil {
			return memoryState{}, fmt.Errorf("snapshot record %q: %w", tc.ID, err)
		}
		state.records[tc.ID] = tc.Clone()
		state.order = append(state.order, tc.ID)
	}
	for _, a := range s.Archive {
		id := a.Record.ID
		if state.exists(id) {
			return memoryState{}, fmt.Errorf("snapshot archive: %w: %q", domain.ErrDuplicateID, id)
		}
		if err := a.Record.CheckInvariants(); err != nil {
			return memoryState{}, fmt.Errorf("snapshot archived record %q: %w", id, err)
		}
		state.archive[id] = a.Clone()
		state.archiveOrder = append(state.archiveOrder, id)
	}
	for _, r := range s.Revisions {
		state.revisions[r.ID] = append(state.revisions[r.ID], r.Clone())
	}
	return state, nil
}

// migrateSnapshot normalizes snapshots written by older or hand-edited files:
// blank ids are dropped, a missing status means NotRun, timestamps become UTC,
// archive entries get ids, and revisions are renumbered per record.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	records := make([]TestCase, 0, len(snapshot.Records))
	for _, tc := range snapshot.Records {
		tc.ID = strings.TrimSpace(tc.ID)
		if tc.ID == "" {
			continue
		}
		records = append(records, normalizeRecord(tc))
	}
	snapshot.Records = records

	archive := make([]ArchivedRecord, 0, len(snapshot.Archive))
	for _, a := range snapshot.Archive {
		a.Record.ID = strings.TrimSpace(a.Record.ID)
		if a.Record.ID == "" {
			continue
		}
		a.Record = normalizeRecord(a.Record)
		if a.EntryID == "" {
			a.EntryID = newEntryID()
		}
		a.ArchivedAt = a.ArchivedAt.UTC()
		archive = append(archive, a)
	}
	snapshot.Archive = archive

	revisions := make([]Revision, 0, len(snapshot.Revisions))
	for _, r := range snapshot.Revisions {
		if r.ID == "" {
			r.ID = r.Record.ID
		}
		if r.ID == "" {
			continue
		}
		r.Record = normalizeRecord(r.Record)
		r.SupersededAt = r.SupersededAt.UTC()
		revisions = append(revisions, r)
	}
	sort.SliceStable(revisions, func(i, j int) bool {
		if revisions[i].ID != revisions[j].ID {
			return revisions[i].ID < revisions[j].ID
		}
		return revisions[i].Sequence < revisions[j].Sequence
	})
	seq := make(map[string]int, len(revisions))
	for i := range revisions {
		seq[revisions[i].ID]++
		revisions[i].Sequence = seq[revisions[i].ID]
	}
	snapshot.Revisions = revisions
	return snapshot
}

func normalizeRecord(tc TestCase) TestCase {
	if tc.Status == "" {
		tc.Status = domain.StatusNotRun
	}
	if tc.DateExecuted != nil {
		t := tc.DateExecuted.UTC()
		tc.DateExecuted = &t
	}
	return tc
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

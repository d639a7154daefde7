package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/model"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.Record
	cursors map[string]int
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]model.Record),
		cursors: make(map[string]int),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) snapshot() []model.Record {
	out := make([]model.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	return out
}

func (s *MemoryStore) ListRecords(_ context.Context, opts ListOpts) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.snapshot()
	if err := sortRecords(all, opts.Sort); err != nil {
		return nil, err
	}
	return pageOf(all, opts), nil
}

func (s *MemoryStore) FilterRecords(_ context.Context, field, value string, limit int) ([]model.Record, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.snapshot()
	_ = sortRecords(all, SortCreated)
	return matching(all, field, value, limit), nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get record %s", id)
	}
	c := cloneRecord(r)
	return &c, nil
}

func (s *MemoryStore) CreateRecord(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareCreate(rec)
	if _, dup := s.records[rec.ID]; dup {
		return eris.Errorf("memory: record %s already exists", rec.ID)
	}
	s.records[rec.ID] = cloneRecord(*rec)
	return nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: update record %s", rec.ID)
	}
	touchUpdate(rec)
	s.records[rec.ID] = cloneRecord(*rec)
	return nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: delete record %s", id)
	}
	delete(s.records, id)
	return nil
}

// CopyRecords inserts recs all-or-nothing.
func (s *MemoryStore) CopyRecords(_ context.Context, recs []model.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range recs {
		prepareCreate(&recs[i])
		if _, dup := s.records[recs[i].ID]; dup {
			return 0, eris.Errorf("memory: copy: record %s already exists", recs[i].ID)
		}
	}
	for i := range recs {
		s.records[recs[i].ID] = cloneRecord(recs[i])
	}
	return int64(len(recs)), nil
}

// DeleteRecords removes every existing id and reports how many it removed.
func (s *MemoryStore) DeleteRecords(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LoadCursor(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name], nil
}

func (s *MemoryStore) SaveCursor(_ context.Context, name string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = position
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(r model.Record) model.Record {
	r.IndustrySectors = cloneStrings(r.IndustrySectors)
	r.QualityFlags = cloneStrings(r.QualityFlags)
	r.Tags = cloneStrings(r.Tags)
	r.Keywords = cloneStrings(r.Keywords)
	r.Synonyms = cloneStrings(r.Synonyms)
	r.SectorSynonymsUsed = cloneStrings(r.SectorSynonymsUsed)
	if r.LastVerifiedAt != nil {
		t := *r.LastVerifiedAt
		r.LastVerifiedAt = &t
	}
	return r
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

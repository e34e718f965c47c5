package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memStore is an in-memory Store used to drive the executor in tests.
type memStore struct {
	mu      sync.Mutex
	name    string
	prov    Provenance
	records map[string]Record

	checkErr   error
	failWrites int // remaining injected write failures, -1 fails forever
	failFetch  int
	afterWrite func()

	writeCalls  int
	updateCalls int
}

func newMemStore(name string, prov Provenance, recs ...Record) *memStore {
	s := &memStore{name: name, prov: prov, records: make(map[string]Record)}
	for _, r := range recs {
		r.Provenance = prov
		s.records[r.Identity] = r
	}
	return s
}

func (s *memStore) Name() string           { return s.name }
func (s *memStore) Provenance() Provenance { return s.prov }

func (s *memStore) Check(ctx context.Context) error {
	return s.checkErr
}

func (s *memStore) LoadAll(ctx context.Context, source string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, id := range s.ids() {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *memStore) LoadIdentities(ctx context.Context, source string) (IdentitySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewIdentitySet(s.ids()...), nil
}

func (s *memStore) WriteBatch(ctx context.Context, source string, records []Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if err := s.injectedWriteErr(); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if _, ok := s.records[r.Identity]; ok {
			continue
		}
		r.Provenance = s.prov
		r.Payload = r.Payload.Clone()
		s.records[r.Identity] = r
		n++
	}
	if s.afterWrite != nil {
		s.afterWrite()
	}
	return n, nil
}

func (s *memStore) UpdateBatch(ctx context.Context, source string, records []Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if err := s.injectedWriteErr(); err != nil {
		return 0, err
	}
	for _, r := range records {
		r.Provenance = s.prov
		r.Payload = r.Payload.Clone()
		s.records[r.Identity] = r
	}
	return len(records), nil
}

func (s *memStore) FetchByIdentities(ctx context.Context, source string, ids []string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFetch != 0 {
		if s.failFetch > 0 {
			s.failFetch--
		}
		return nil, NewStoreError(s.name, "fetch", ErrStoreRead, errors.New("injected"))
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			r.Payload = r.Payload.Clone()
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) injectedWriteErr() error {
	if s.failWrites == 0 {
		return nil
	}
	if s.failWrites > 0 {
		s.failWrites--
	}
	return NewStoreError(s.name, "write", ErrBatchWriteFailed, errors.New("injected"))
}

func (s *memStore) ids() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

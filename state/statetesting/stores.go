// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package statetesting provides in-memory implementations of the state
// ports for use in tests, plus stub-driven wrappers for fault
// injection.
package statetesting

import (
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/state"
)

// MemStore is an in-memory DataStore. Records are kept by primary id;
// Fetch also resolves any alternate ids the keys function reports.
type MemStore[M any] struct {
	mu   sync.Mutex
	kind string
	keys func(M) []string
	docs map[string]M
	// order keeps insertion order for deterministic All output.
	order []string
}

// NewMemStore returns an empty store for manifests whose ids are
// reported by keys, primary id first.
func NewMemStore[M any](kind string, keys func(M) []string) *MemStore[M] {
	return &MemStore[M]{
		kind: kind,
		keys: keys,
		docs: make(map[string]M),
	}
}

// NewContainerStore returns a store for journal or bundle manifests.
func NewContainerStore(kind string) *MemStore[domain.ContainerManifest] {
	return NewMemStore(kind, func(m domain.ContainerManifest) []string {
		return []string{m.DocID}
	})
}

// NewDocumentStore returns a store for document manifests, resolving
// both the primary id and the v3 PID.
func NewDocumentStore() *MemStore[domain.DocumentManifest] {
	return NewMemStore("document", func(m domain.DocumentManifest) []string {
		if m.PID != "" {
			return []string{m.DocID, m.PID}
		}
		return []string{m.DocID}
	})
}

func (s *MemStore[M]) primary(m M) string {
	return s.keys(m)[0]
}

// Add implements state.DataStore.
func (s *MemStore[M]) Add(manifest M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.primary(manifest)
	if _, ok := s.docs[id]; ok {
		return errors.AlreadyExistsf("%s %q", s.kind, id)
	}
	s.docs[id] = manifest
	s.order = append(s.order, id)
	return nil
}

// Update implements state.DataStore.
func (s *MemStore[M]) Update(manifest M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.primary(manifest)
	if _, ok := s.docs[id]; !ok {
		return errors.NotFoundf("%s %q", s.kind, id)
	}
	s.docs[id] = manifest
	return nil
}

// Fetch implements state.DataStore.
func (s *MemStore[M]) Fetch(id string) (M, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.docs[id]; ok {
		return m, nil
	}
	for _, m := range s.docs {
		for _, key := range s.keys(m) {
			if key == id {
				return m, nil
			}
		}
	}
	var zero M
	return zero, errors.NotFoundf("%s %q", s.kind, id)
}

// Delete implements state.DataStore.
func (s *MemStore[M]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return errors.NotFoundf("%s %q", s.kind, id)
	}
	delete(s.docs, id)
	for i, key := range s.order {
		if key == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *MemStore[M]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// All returns the stored manifests in insertion order.
func (s *MemStore[M]) All() []M {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]M, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// MemChangesStore is an in-memory ChangesDataStore.
type MemChangesStore struct {
	mu      sync.Mutex
	entries []state.Change
}

// NewChangesStore returns an empty change log.
func NewChangesStore() *MemChangesStore {
	return &MemChangesStore{}
}

// Add implements state.ChangesDataStore.
func (s *MemChangesStore) Add(change state.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, change)
	return nil
}

// Filter implements state.ChangesDataStore.
func (s *MemChangesStore) Filter(since string, limit int) ([]state.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = state.DefaultChangesLimit
	}
	out := make([]state.Change, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Timestamp > since {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of recorded changes.
func (s *MemChangesStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stores bundles one in-memory store per port for direct inspection
// from tests.
type Stores struct {
	Journals  *MemStore[domain.ContainerManifest]
	Bundles   *MemStore[domain.ContainerManifest]
	Documents *MemStore[domain.DocumentManifest]
	Changes   *MemChangesStore
}

// NewSession returns a session over fresh in-memory stores, along with
// the stores themselves.
func NewSession() (*state.Session, *Stores) {
	stores := &Stores{
		Journals:  NewContainerStore("journal"),
		Bundles:   NewContainerStore("documents bundle"),
		Documents: NewDocumentStore(),
		Changes:   NewChangesStore(),
	}
	session := state.NewSession(stores.Journals, stores.Bundles, stores.Documents, stores.Changes, nil)
	return session, stores
}

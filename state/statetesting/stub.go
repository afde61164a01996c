// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statetesting

import (
	"github.com/juju/testing"

	"github.com/juju/documentstore/state"
)

// StubStore consults a testing.Stub before delegating each call, so
// tests can script transient faults with stub.SetErrors.
type StubStore[M any] struct {
	Stub  *testing.Stub
	Store state.DataStore[M]
}

// NewStubStore wraps store with stub.
func NewStubStore[M any](stub *testing.Stub, store state.DataStore[M]) *StubStore[M] {
	return &StubStore[M]{Stub: stub, Store: store}
}

// Add implements state.DataStore.
func (s *StubStore[M]) Add(manifest M) error {
	s.Stub.AddCall("Add")
	if err := s.Stub.NextErr(); err != nil {
		return err
	}
	return s.Store.Add(manifest)
}

// Update implements state.DataStore.
func (s *StubStore[M]) Update(manifest M) error {
	s.Stub.AddCall("Update")
	if err := s.Stub.NextErr(); err != nil {
		return err
	}
	return s.Store.Update(manifest)
}

// Fetch implements state.DataStore.
func (s *StubStore[M]) Fetch(id string) (M, error) {
	s.Stub.AddCall("Fetch", id)
	if err := s.Stub.NextErr(); err != nil {
		var zero M
		return zero, err
	}
	return s.Store.Fetch(id)
}

// Delete implements state.DataStore.
func (s *StubStore[M]) Delete(id string) error {
	s.Stub.AddCall("Delete", id)
	if err := s.Stub.NextErr(); err != nil {
		return err
	}
	return s.Store.Delete(id)
}

// StubChangesStore is StubStore for the change log.
type StubChangesStore struct {
	Stub  *testing.Stub
	Store state.ChangesDataStore
}

// NewStubChangesStore wraps store with stub.
func NewStubChangesStore(stub *testing.Stub, store state.ChangesDataStore) *StubChangesStore {
	return &StubChangesStore{Stub: stub, Store: store}
}

// Add implements state.ChangesDataStore.
func (s *StubChangesStore) Add(change state.Change) error {
	s.Stub.AddCall("AddChange", change)
	if err := s.Stub.NextErr(); err != nil {
		return err
	}
	return s.Store.Add(change)
}

// Filter implements state.ChangesDataStore.
func (s *StubChangesStore) Filter(since string, limit int) ([]state.Change, error) {
	s.Stub.AddCall("Filter", since, limit)
	if err := s.Stub.NextErr(); err != nil {
		return nil, err
	}
	return s.Store.Filter(since, limit)
}

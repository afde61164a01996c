// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package state defines the persistence ports the services layer works
// against, the retry policy wrapped around every backend call, and the
// session that bundles one unit of work. Concrete adapters live in
// state/mongostate; tests substitute the in-memory ones from
// state/statetesting.
package state

import (
	"github.com/juju/documentstore/domain"
)

// DefaultChangesLimit caps a change feed page when the caller does not
// say otherwise.
const DefaultChangesLimit = 500

// Change is one change-log record: a latest-state pointer telling
// replicas that an entity changed and whether it is gone. The feed is
// ordered by the canonical timestamp string.
type Change struct {
	Timestamp string `bson:"timestamp" json:"timestamp"`
	Entity    string `bson:"entity" json:"entity"`
	ID        string `bson:"id" json:"id"`
	Deleted   bool   `bson:"deleted,omitempty" json:"deleted,omitempty"`
}

// DataStore is the port one entity kind persists through. Records are
// single documents keyed by the entity id; Update rewrites the full
// manifest, last writer wins. Fetch resolves documents by either of
// their identifiers.
//
// Implementations report absent ids with errors.NotFound, creation of
// existing ids with errors.AlreadyExists, and transient backend faults
// with a Retryable-marked error so the retry decorator can tell them
// apart from permanent ones.
type DataStore[M any] interface {
	Add(manifest M) error
	Update(manifest M) error
	Fetch(id string) (M, error)
	Delete(id string) error
}

// ChangesDataStore is the port the change log persists through.
// Filter returns entries with timestamp strictly greater than since
// (empty means from the beginning), ascending, at most limit entries;
// limit <= 0 means DefaultChangesLimit.
type ChangesDataStore interface {
	Add(change Change) error
	Filter(since string, limit int) ([]Change, error)
}

// JournalStore, BundleStore and DocumentStore are the concrete port
// instantiations the session carries.
type (
	JournalStore  = DataStore[domain.ContainerManifest]
	BundleStore   = DataStore[domain.ContainerManifest]
	DocumentStore = DataStore[domain.DocumentManifest]
)

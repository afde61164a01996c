// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package domain holds the entities of the periodical collection:
// journals, documents bundles and documents.
//
// Entities are pure state machines. Each one is reconstructed from its
// stored manifest (or from an ordered event history) and exposes read
// accessors over deep-copied snapshots plus mutators that validate the
// requested change and, on success, append exactly one event to the
// in-memory history. Nothing in this package touches a store; the
// services layer orchestrates persistence and change-log writes around
// these entities.
//
// Manifests are never mutated in place. Every mutator rebuilds the
// manifest copy-on-write so that previously handed-out snapshots, and
// in particular non-latest document versions, stay bit-identical across
// later mutations.
package domain

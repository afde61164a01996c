// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"github.com/juju/errors"
)

// DocumentsBundle is an ordered, named grouping of documents, most
// commonly a journal issue.
type DocumentsBundle struct {
	c *container
}

// NewDocumentsBundle creates a bundle with the given metadata section.
func NewDocumentsBundle(id string, metadata map[string]interface{}, ts string) *DocumentsBundle {
	return &DocumentsBundle{c: newContainer(KindDocumentsBundle, id, metadata, ts)}
}

// DocumentsBundleFromManifest rebuilds the entity from its stored
// manifest.
func DocumentsBundleFromManifest(m ContainerManifest) *DocumentsBundle {
	return &DocumentsBundle{c: containerFromManifest(KindDocumentsBundle, m)}
}

// DocumentsBundleFromEvents rebuilds the entity by replaying history.
func DocumentsBundleFromEvents(id string, history []Event) (*DocumentsBundle, error) {
	c, err := containerFromEvents(KindDocumentsBundle, id, history)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &DocumentsBundle{c: c}, nil
}

// ID returns the bundle identifier.
func (b *DocumentsBundle) ID() string { return b.c.id() }

// Manifest returns a deep-immutable snapshot of the current state.
func (b *DocumentsBundle) Manifest() ContainerManifest { return b.c.manifestCopy() }

// Events returns the events appended since construction.
func (b *DocumentsBundle) Events() []Event { return b.c.newEvents() }

// Deleted reports whether the bundle has been deleted.
func (b *DocumentsBundle) Deleted() bool { return b.c.manifest.Deleted }

// AddDocument appends a document reference; a present id is a no-op.
func (b *DocumentsBundle) AddDocument(ref Ref, ts string) error {
	return errors.Trace(b.c.addItem(ref, ts))
}

// InsertDocument places a document reference at index (clamped).
func (b *DocumentsBundle) InsertDocument(index int, ref Ref, ts string) error {
	return errors.Trace(b.c.insertItem(index, ref, ts))
}

// RemoveDocument drops the reference with the given id.
func (b *DocumentsBundle) RemoveDocument(id string, ts string) error {
	return errors.Trace(b.c.removeItem(id, ts))
}

// SetDocuments replaces the whole document list.
func (b *DocumentsBundle) SetDocuments(refs []Ref, ts string) error {
	return errors.Trace(b.c.setItems(refs, ts))
}

// UpdateMetadata merges meta over the metadata section.
func (b *DocumentsBundle) UpdateMetadata(meta map[string]interface{}, ts string) error {
	return errors.Trace(b.c.updateMetadata(meta, ts))
}

// Delete marks the bundle deleted. History stays readable.
func (b *DocumentsBundle) Delete(ts string) error {
	return errors.Trace(b.c.delete(ts))
}

// DocumentsBundleEvents synthesises the coarse event view of a bundle
// manifest; see containerEvents.
func DocumentsBundleEvents(m ContainerManifest) []Event {
	return containerEvents(KindDocumentsBundle, m)
}

// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"github.com/juju/errors"
)

// Journal is a periodical title: open metadata plus the ordered list
// of its issue bundles and an optional ahead-of-print bundle pointer.
type Journal struct {
	c *container
}

// NewJournal creates a journal with the given metadata section.
func NewJournal(id string, metadata map[string]interface{}, ts string) *Journal {
	return &Journal{c: newContainer(KindJournal, id, metadata, ts)}
}

// JournalFromManifest rebuilds the entity from its stored manifest.
func JournalFromManifest(m ContainerManifest) *Journal {
	return &Journal{c: containerFromManifest(KindJournal, m)}
}

// JournalFromEvents rebuilds the entity by replaying history.
func JournalFromEvents(id string, history []Event) (*Journal, error) {
	c, err := containerFromEvents(KindJournal, id, history)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Journal{c: c}, nil
}

// ID returns the journal identifier.
func (j *Journal) ID() string { return j.c.id() }

// Manifest returns a deep-immutable snapshot of the current state.
func (j *Journal) Manifest() ContainerManifest { return j.c.manifestCopy() }

// Events returns the events appended since construction.
func (j *Journal) Events() []Event { return j.c.newEvents() }

// Deleted reports whether the journal has been deleted.
func (j *Journal) Deleted() bool { return j.c.manifest.Deleted }

// AddIssue appends a bundle reference; a present id is a no-op.
func (j *Journal) AddIssue(ref Ref, ts string) error {
	return errors.Trace(j.c.addItem(ref, ts))
}

// InsertIssue places a bundle reference at index (clamped).
func (j *Journal) InsertIssue(index int, ref Ref, ts string) error {
	return errors.Trace(j.c.insertItem(index, ref, ts))
}

// RemoveIssue drops the reference with the given id.
func (j *Journal) RemoveIssue(id string, ts string) error {
	return errors.Trace(j.c.removeItem(id, ts))
}

// SetIssues replaces the whole issue list.
func (j *Journal) SetIssues(refs []Ref, ts string) error {
	return errors.Trace(j.c.setItems(refs, ts))
}

// UpdateMetadata merges meta over the metadata section.
func (j *Journal) UpdateMetadata(meta map[string]interface{}, ts string) error {
	return errors.Trace(j.c.updateMetadata(meta, ts))
}

// SetAheadOfPrint points the journal at its ahead-of-print bundle.
func (j *Journal) SetAheadOfPrint(bundleID string, ts string) error {
	return errors.Trace(j.c.setAheadOfPrint(bundleID, ts))
}

// RemoveAheadOfPrint clears the ahead-of-print pointer.
func (j *Journal) RemoveAheadOfPrint(ts string) error {
	return errors.Trace(j.c.removeAheadOfPrint(ts))
}

// Delete marks the journal deleted. History stays readable.
func (j *Journal) Delete(ts string) error {
	return errors.Trace(j.c.delete(ts))
}

// JournalEvents synthesises the coarse event view of a journal
// manifest; see containerEvents.
func JournalEvents(m ContainerManifest) []Event {
	return containerEvents(KindJournal, m)
}

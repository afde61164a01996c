// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"fmt"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Document is a versioned scholarly document. Its state is an
// append-only list of versions; each version freezes the slot set
// declared for it, and within a slot the [timestamp, uri] history only
// ever grows. Only the latest version accepts new bindings.
type Document struct {
	manifest DocumentManifest
	events   []Event
}

// NewDocument starts an empty document history. The v3 PID is handed
// in by the caller; the services layer generates it at registration.
func NewDocument(id, pid, ts string) *Document {
	d := &Document{
		manifest: DocumentManifest{
			DocID:    id,
			ID:       id,
			PID:      pid,
			Created:  ts,
			Updated:  ts,
			Versions: []Version{},
		},
	}
	d.record(Event{
		Entity:    KindDocument,
		ID:        id,
		Kind:      EventCreated,
		Timestamp: ts,
		PID:       pid,
	})
	return d
}

// DocumentFromManifest rebuilds the entity from its stored manifest.
func DocumentFromManifest(m DocumentManifest) *Document {
	return &Document{manifest: m.Copy()}
}

// DocumentFromEvents rebuilds the entity by replaying history, which
// must open with the document's create event.
func DocumentFromEvents(id string, history []Event) (*Document, error) {
	if err := validateHistory(KindDocument, id, history); err != nil {
		return nil, errors.Trace(err)
	}
	d := NewDocument(id, history[0].PID, history[0].Timestamp)
	d.events = nil
	for _, ev := range history[1:] {
		if err := d.replay(ev); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return d, nil
}

// ID returns the document identifier.
func (d *Document) ID() string {
	return d.manifest.ID
}

// PID returns the generated v3 publication identifier.
func (d *Document) PID() string {
	return d.manifest.PID
}

// Manifest returns a deep-immutable snapshot of the current state.
func (d *Document) Manifest() DocumentManifest {
	return d.manifest.Copy()
}

// Events returns the events appended since construction.
func (d *Document) Events() []Event {
	return append([]Event(nil), d.events...)
}

func (d *Document) record(ev Event) {
	d.events = append(d.events, ev)
}

// Deleted reports whether the history is closed by a deleted version.
func (d *Document) Deleted() bool {
	n := len(d.manifest.Versions)
	return n > 0 && d.manifest.Versions[n-1].Deleted
}

func (d *Document) checkLive() error {
	if d.Deleted() {
		return fmt.Errorf("document %q is deleted%w", d.ID(), errors.Hide(AlreadyDeleted))
	}
	return nil
}

// NewVersion appends a version with the declared asset and rendition
// slots, every slot starting unbound. Appending a version whose data
// URI and slot declaration match the current latest is reported as
// VersionAlreadyExists; callers that want idempotent ingestion treat
// that as success.
func (d *Document) NewVersion(data string, assetSlots, renditionSlots []string, ts string) error {
	if err := d.checkLive(); err != nil {
		return errors.Trace(err)
	}
	assets := set.NewStrings(assetSlots...)
	renditions := set.NewStrings(renditionSlots...)
	if n := len(d.manifest.Versions); n > 0 {
		latest := d.manifest.Versions[n-1]
		if latest.Data == data && sameSlotSet(latest.Assets, assets) && sameSlotSet(latest.Renditions, renditions) {
			return fmt.Errorf("document %q already at version with data %q%w",
				d.ID(), data, errors.Hide(VersionAlreadyExists))
		}
	}
	v := Version{Data: data, Timestamp: ts}
	if !assets.IsEmpty() {
		v.Assets = make(map[string][]VersionedURI, assets.Size())
		for _, name := range assets.Values() {
			v.Assets[name] = []VersionedURI{}
		}
	}
	if !renditions.IsEmpty() {
		v.Renditions = make(map[string][]VersionedURI, renditions.Size())
		for _, name := range renditions.Values() {
			v.Renditions[name] = []VersionedURI{}
		}
	}
	next := d.manifest.Copy()
	next.Versions = append(next.Versions, v)
	next.Updated = ts
	d.manifest = next
	d.record(Event{
		Entity:         KindDocument,
		ID:             d.ID(),
		Kind:           EventVersionAdded,
		Timestamp:      ts,
		Data:           data,
		AssetSlots:     assets.SortedValues(),
		RenditionSlots: renditions.SortedValues(),
	})
	return nil
}

// NewAssetVersion appends [ts, uri] to an asset slot of the latest
// version. The slot must have been declared when the version was
// created; rebinding the URI already at the tail is reported as
// VersionAlreadyExists.
func (d *Document) NewAssetVersion(slot, uri, ts string) error {
	return errors.Trace(d.newSlotVersion(slot, uri, ts, false))
}

// NewRenditionVersion is NewAssetVersion for rendition slots.
func (d *Document) NewRenditionVersion(slot, uri, ts string) error {
	return errors.Trace(d.newSlotVersion(slot, uri, ts, true))
}

func (d *Document) newSlotVersion(slot, uri, ts string, rendition bool) error {
	if err := d.checkLive(); err != nil {
		return errors.Trace(err)
	}
	n := len(d.manifest.Versions)
	if n == 0 {
		return errors.NotFoundf("versions of document %q", d.ID())
	}
	next := d.manifest.Copy()
	v := &next.Versions[n-1]
	slots, kind := v.Assets, "asset"
	if rendition {
		slots, kind = v.Renditions, "rendition"
	}
	entries, declared := slots[slot]
	if !declared {
		return fmt.Errorf("document %q latest version declares no %s slot %q%w",
			d.ID(), kind, slot, errors.Hide(UnknownSlot))
	}
	if len(entries) > 0 && entries[len(entries)-1].URI == uri {
		return fmt.Errorf("document %q %s slot %q already bound to %q%w",
			d.ID(), kind, slot, uri, errors.Hide(VersionAlreadyExists))
	}
	slots[slot] = append(entries, VersionedURI{Timestamp: ts, URI: uri})
	next.Updated = ts
	d.manifest = next
	evKind := EventAssetVersionAdded
	if rendition {
		evKind = EventRenditionVersionAdded
	}
	d.record(Event{
		Entity:    KindDocument,
		ID:        d.ID(),
		Kind:      evKind,
		Timestamp: ts,
		Slot:      slot,
		URI:       uri,
	})
	return nil
}

// Delete closes the history with a deleted version marker. Prior
// versions stay readable; no mutation is accepted afterwards.
func (d *Document) Delete(ts string) error {
	if err := d.checkLive(); err != nil {
		return errors.Trace(err)
	}
	next := d.manifest.Copy()
	next.Versions = append(next.Versions, Version{Timestamp: ts, Deleted: true})
	next.Updated = ts
	d.manifest = next
	d.record(Event{
		Entity:    KindDocument,
		ID:        d.ID(),
		Kind:      EventDeleted,
		Timestamp: ts,
	})
	return nil
}

// Version returns a snapshot of the version at index. Negative indexes
// count from the end: -1 is the latest.
func (d *Document) Version(index int) (Version, error) {
	n := len(d.manifest.Versions)
	if n == 0 {
		return Version{}, errors.NotFoundf("versions of document %q", d.ID())
	}
	i := index
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return Version{}, errors.NotFoundf("version %d of document %q", index, d.ID())
	}
	return d.manifest.Versions[i].Copy(), nil
}

// VersionAt returns the version in effect at instant at: the one with
// the greatest timestamp not after it, with every slot history
// truncated to entries bound at or before it. A slot all of whose
// bindings are later comes back empty, meaning not yet bound then.
func (d *Document) VersionAt(at string) (Version, error) {
	ts, err := CanonicalTimestamp(at)
	if err != nil {
		return Version{}, errors.Trace(err)
	}
	found := -1
	for i := range d.manifest.Versions {
		if d.manifest.Versions[i].Timestamp <= ts {
			found = i
		} else {
			break
		}
	}
	if found < 0 {
		return Version{}, errors.NotFoundf("version of document %q at %q", d.ID(), at)
	}
	v := d.manifest.Versions[found].Copy()
	v.Assets = truncateSlots(v.Assets, ts)
	v.Renditions = truncateSlots(v.Renditions, ts)
	return v, nil
}

func truncateSlots(slots map[string][]VersionedURI, ts string) map[string][]VersionedURI {
	if slots == nil {
		return nil
	}
	out := make(map[string][]VersionedURI, len(slots))
	for name, entries := range slots {
		kept := []VersionedURI{}
		for _, e := range entries {
			if e.Timestamp > ts {
				break
			}
			kept = append(kept, e)
		}
		out[name] = kept
	}
	return out
}

func sameSlotSet(declared map[string][]VersionedURI, names set.Strings) bool {
	if len(declared) != names.Size() {
		return false
	}
	for name := range declared {
		if !names.Contains(name) {
			return false
		}
	}
	return true
}

// replay applies a historical event without recording it.
func (d *Document) replay(ev Event) error {
	if ev.Entity != KindDocument || ev.ID != d.ID() {
		return errors.NotValidf("event %s/%s in history of document %q", ev.Entity, ev.ID, d.ID())
	}
	saved := d.events
	defer func() { d.events = saved }()
	switch ev.Kind {
	case EventVersionAdded:
		return errors.Trace(d.NewVersion(ev.Data, ev.AssetSlots, ev.RenditionSlots, ev.Timestamp))
	case EventAssetVersionAdded:
		return errors.Trace(d.NewAssetVersion(ev.Slot, ev.URI, ev.Timestamp))
	case EventRenditionVersionAdded:
		return errors.Trace(d.NewRenditionVersion(ev.Slot, ev.URI, ev.Timestamp))
	case EventDeleted:
		return errors.Trace(d.Delete(ev.Timestamp))
	default:
		return errors.NotValidf("event kind %q for document", ev.Kind)
	}
}

// DocumentEvents synthesises the event history of a document from its
// manifest. Version, asset and rendition instants are all recorded in
// the manifest, so the reconstruction is complete: replaying the result
// yields the manifest back. Events are ordered by timestamp, ties kept
// in recording order.
func DocumentEvents(m DocumentManifest) []Event {
	events := []Event{{
		Entity:    KindDocument,
		ID:        m.ID,
		Kind:      EventCreated,
		Timestamp: m.Created,
		PID:       m.PID,
	}}
	for _, v := range m.Versions {
		if v.Deleted {
			events = append(events, Event{
				Entity:    KindDocument,
				ID:        m.ID,
				Kind:      EventDeleted,
				Timestamp: v.Timestamp,
			})
			continue
		}
		events = append(events, Event{
			Entity:         KindDocument,
			ID:             m.ID,
			Kind:           EventVersionAdded,
			Timestamp:      v.Timestamp,
			Data:           v.Data,
			AssetSlots:     sortedSlotNames(v.Assets),
			RenditionSlots: sortedSlotNames(v.Renditions),
		})
		for _, slot := range sortedSlotNames(v.Assets) {
			for _, e := range v.Assets[slot] {
				events = append(events, Event{
					Entity:    KindDocument,
					ID:        m.ID,
					Kind:      EventAssetVersionAdded,
					Timestamp: e.Timestamp,
					Slot:      slot,
					URI:       e.URI,
				})
			}
		}
		for _, slot := range sortedSlotNames(v.Renditions) {
			for _, e := range v.Renditions[slot] {
				events = append(events, Event{
					Entity:    KindDocument,
					ID:        m.ID,
					Kind:      EventRenditionVersionAdded,
					Timestamp: e.Timestamp,
					Slot:      slot,
					URI:       e.URI,
				})
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events
}

func sortedSlotNames(slots map[string][]VersionedURI) []string {
	if len(slots) == 0 {
		return nil
	}
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

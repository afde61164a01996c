// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"fmt"
	"reflect"

	"github.com/juju/errors"
)

// container is the state machine shared by Journal and DocumentsBundle:
// open metadata plus an ordered, duplicate-free list of references to
// other entities. Mutators rebuild the manifest copy-on-write and
// append one event; re-adding a reference that is already present is a
// silent no-op so that ingestion retries stay cheap.
type container struct {
	kind     Kind
	manifest ContainerManifest
	events   []Event
}

func newContainer(kind Kind, id string, metadata map[string]interface{}, ts string) *container {
	meta := copyMetadata(metadata)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	c := &container{
		kind: kind,
		manifest: ContainerManifest{
			DocID:    id,
			ID:       id,
			Created:  ts,
			Updated:  ts,
			Metadata: meta,
			Items:    []Ref{},
		},
	}
	c.record(Event{
		Entity:    kind,
		ID:        id,
		Kind:      EventCreated,
		Timestamp: ts,
		Metadata:  copyMetadata(metadata),
	})
	return c
}

func containerFromManifest(kind Kind, m ContainerManifest) *container {
	return &container{kind: kind, manifest: m.Copy()}
}

func containerFromEvents(kind Kind, id string, history []Event) (*container, error) {
	if err := validateHistory(kind, id, history); err != nil {
		return nil, errors.Trace(err)
	}
	c := newContainer(kind, id, history[0].Metadata, history[0].Timestamp)
	c.events = nil
	for _, ev := range history[1:] {
		if err := c.replay(ev); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return c, nil
}

func (c *container) id() string {
	return c.manifest.ID
}

// manifestCopy returns a deep-immutable snapshot of the current state.
func (c *container) manifestCopy() ContainerManifest {
	return c.manifest.Copy()
}

// newEvents returns the events appended since construction.
func (c *container) newEvents() []Event {
	return append([]Event(nil), c.events...)
}

func (c *container) record(ev Event) {
	c.events = append(c.events, ev)
}

func (c *container) checkLive() error {
	if c.manifest.Deleted {
		return fmt.Errorf("%s %q is deleted%w", c.kind, c.id(), errors.Hide(AlreadyDeleted))
	}
	return nil
}

func (c *container) itemIndex(id string) int {
	for i, ref := range c.manifest.Items {
		if ref.ID == id {
			return i
		}
	}
	return -1
}

// addItem appends ref to items. An id already present is a no-op: the
// list keeps its length and order and no event is recorded.
func (c *container) addItem(ref Ref, ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	if c.itemIndex(ref.ID) >= 0 {
		return nil
	}
	next := c.manifest.Copy()
	next.Items = append(next.Items, ref.Copy())
	next.Updated = ts
	c.manifest = next
	refCopy := ref.Copy()
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventItemAdded,
		Timestamp: ts,
		Ref:       &refCopy,
	})
	return nil
}

// insertItem places ref at index, clamped to the list bounds. Duplicate
// ids are a no-op, as in addItem.
func (c *container) insertItem(index int, ref Ref, ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	if c.itemIndex(ref.ID) >= 0 {
		return nil
	}
	if index < 0 {
		index = 0
	}
	if index > len(c.manifest.Items) {
		index = len(c.manifest.Items)
	}
	next := c.manifest.Copy()
	next.Items = append(next.Items[:index], append([]Ref{ref.Copy()}, next.Items[index:]...)...)
	next.Updated = ts
	c.manifest = next
	refCopy := ref.Copy()
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventItemInserted,
		Timestamp: ts,
		Ref:       &refCopy,
		Index:     index,
	})
	return nil
}

func (c *container) removeItem(id string, ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	i := c.itemIndex(id)
	if i < 0 {
		return fmt.Errorf("%s %q does not contain %q%w", c.kind, c.id(), id, errors.Hide(UnknownReference))
	}
	next := c.manifest.Copy()
	next.Items = append(next.Items[:i], next.Items[i+1:]...)
	next.Updated = ts
	c.manifest = next
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventItemRemoved,
		Timestamp: ts,
		Ref:       &Ref{ID: id},
	})
	return nil
}

// setItems replaces the whole items list. The new list must be free of
// duplicate ids; replacing with an identical list is a no-op.
func (c *container) setItems(refs []Ref, ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	seen := make(map[string]bool, len(refs))
	next := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		if seen[ref.ID] {
			return fmt.Errorf("%s %q would contain %q twice%w", c.kind, c.id(), ref.ID, errors.Hide(DuplicateReference))
		}
		seen[ref.ID] = true
		next = append(next, ref.Copy())
	}
	if reflect.DeepEqual(next, c.manifest.Items) {
		return nil
	}
	m := c.manifest.Copy()
	m.Items = next
	m.Updated = ts
	c.manifest = m
	evRefs := make([]Ref, 0, len(next))
	for _, ref := range next {
		evRefs = append(evRefs, ref.Copy())
	}
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventItemsUpdated,
		Timestamp: ts,
		Refs:      evRefs,
	})
	return nil
}

// updateMetadata merges meta over the current metadata section. Keys
// not named keep their values.
func (c *container) updateMetadata(meta map[string]interface{}, ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	next := c.manifest.Copy()
	if next.Metadata == nil {
		next.Metadata = make(map[string]interface{}, len(meta))
	}
	for k, v := range meta {
		next.Metadata[k] = copyValue(v)
	}
	next.Updated = ts
	c.manifest = next
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventMetadataUpdated,
		Timestamp: ts,
		Metadata:  copyMetadata(meta),
	})
	return nil
}

func (c *container) setAheadOfPrint(id string, ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	if c.manifest.AheadOfPrint == id {
		return nil
	}
	next := c.manifest.Copy()
	next.AheadOfPrint = id
	next.Updated = ts
	c.manifest = next
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventAheadOfPrintSet,
		Timestamp: ts,
		Ref:       &Ref{ID: id},
	})
	return nil
}

func (c *container) removeAheadOfPrint(ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	if c.manifest.AheadOfPrint == "" {
		return nil
	}
	next := c.manifest.Copy()
	next.AheadOfPrint = ""
	next.Updated = ts
	c.manifest = next
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventAheadOfPrintRemoved,
		Timestamp: ts,
	})
	return nil
}

func (c *container) delete(ts string) error {
	if err := c.checkLive(); err != nil {
		return errors.Trace(err)
	}
	next := c.manifest.Copy()
	next.Deleted = true
	next.Updated = ts
	c.manifest = next
	c.record(Event{
		Entity:    c.kind,
		ID:        c.id(),
		Kind:      EventDeleted,
		Timestamp: ts,
	})
	return nil
}

// replay applies a historical event without recording it.
func (c *container) replay(ev Event) error {
	if ev.Entity != c.kind || ev.ID != c.id() {
		return errors.NotValidf("event %s/%s in history of %s %q", ev.Entity, ev.ID, c.kind, c.id())
	}
	saved := c.events
	defer func() { c.events = saved }()
	var err error
	switch ev.Kind {
	case EventItemAdded:
		if ev.Ref == nil {
			return errors.NotValidf("item_added event with no ref")
		}
		err = c.addItem(*ev.Ref, ev.Timestamp)
	case EventItemInserted:
		if ev.Ref == nil {
			return errors.NotValidf("item_inserted event with no ref")
		}
		err = c.insertItem(ev.Index, *ev.Ref, ev.Timestamp)
	case EventItemRemoved:
		if ev.Ref == nil {
			return errors.NotValidf("item_removed event with no ref")
		}
		err = c.removeItem(ev.Ref.ID, ev.Timestamp)
	case EventItemsUpdated:
		err = c.setItems(ev.Refs, ev.Timestamp)
	case EventMetadataUpdated:
		err = c.updateMetadata(ev.Metadata, ev.Timestamp)
	case EventAheadOfPrintSet:
		if ev.Ref == nil {
			return errors.NotValidf("aop_set event with no ref")
		}
		err = c.setAheadOfPrint(ev.Ref.ID, ev.Timestamp)
	case EventAheadOfPrintRemoved:
		err = c.removeAheadOfPrint(ev.Timestamp)
	case EventDeleted:
		err = c.delete(ev.Timestamp)
	default:
		return errors.NotValidf("event kind %q for %s", ev.Kind, c.kind)
	}
	return errors.Trace(err)
}

// containerEvents synthesises the coarse event view of a container
// manifest: its creation and, if later touched, one update marker. The
// full per-mutation history is not retained for containers, so this is
// what version diffing has to work with.
func containerEvents(kind Kind, m ContainerManifest) []Event {
	events := []Event{{
		Entity:    kind,
		ID:        m.ID,
		Kind:      EventCreated,
		Timestamp: m.Created,
		Metadata:  copyMetadata(m.Metadata),
	}}
	if m.Updated != m.Created {
		kindName := EventUpdated
		if m.Deleted {
			kindName = EventDeleted
		}
		refs := make([]Ref, 0, len(m.Items))
		for _, r := range m.Items {
			refs = append(refs, r.Copy())
		}
		events = append(events, Event{
			Entity:    kind,
			ID:        m.ID,
			Kind:      kindName,
			Timestamp: m.Updated,
			Refs:      refs,
		})
	}
	return events
}

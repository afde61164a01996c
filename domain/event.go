// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"github.com/juju/errors"
)

// Kind names an entity kind. The values double as the entity component
// of change-log records and observer topics.
type Kind string

const (
	KindJournal         Kind = "journal"
	KindDocumentsBundle Kind = "documents_bundle"
	KindDocument        Kind = "document"
)

// EventKind names a state transition within an entity history.
type EventKind string

const (
	EventCreated               EventKind = "created"
	EventUpdated               EventKind = "updated"
	EventDeleted               EventKind = "deleted"
	EventMetadataUpdated       EventKind = "metadata_updated"
	EventItemAdded             EventKind = "item_added"
	EventItemInserted          EventKind = "item_inserted"
	EventItemRemoved           EventKind = "item_removed"
	EventItemsUpdated          EventKind = "items_updated"
	EventAheadOfPrintSet       EventKind = "aop_set"
	EventAheadOfPrintRemoved   EventKind = "aop_removed"
	EventVersionAdded          EventKind = "version_added"
	EventAssetVersionAdded     EventKind = "asset_version_added"
	EventRenditionVersionAdded EventKind = "rendition_version_added"
)

// Event is one entry of an entity history. Replaying an ordered event
// list rebuilds the manifest deterministically; appending events is the
// only way mutators change state. Which payload fields are set depends
// on Kind.
type Event struct {
	Entity    Kind      `json:"entity"`
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"timestamp"`

	// Payload, by Kind:
	//   created                   PID (documents), Metadata
	//   version_added             Data, AssetSlots, RenditionSlots
	//   asset_version_added       Slot, URI
	//   rendition_version_added   Slot, URI
	//   item_added                Ref
	//   item_inserted             Ref, Index
	//   item_removed              Ref (id only)
	//   items_updated             Refs
	//   metadata_updated          Metadata
	//   aop_set                   Ref (id only)
	PID            string                 `json:"pid,omitempty"`
	Data           string                 `json:"data,omitempty"`
	AssetSlots     []string               `json:"asset_slots,omitempty"`
	RenditionSlots []string               `json:"rendition_slots,omitempty"`
	Slot           string                 `json:"slot,omitempty"`
	URI            string                 `json:"uri,omitempty"`
	Ref            *Ref                   `json:"ref,omitempty"`
	Refs           []Ref                  `json:"refs,omitempty"`
	Index          int                    `json:"index,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Topic is the observer topic the event is published under, for example
// "journal.created" or "document.asset_version_added".
func (e Event) Topic() string {
	return string(e.Entity) + "." + string(e.Kind)
}

// validateHistory checks that history opens with a create event for the
// given kind and id. Every entity constructor that replays a history
// goes through here first.
func validateHistory(kind Kind, id string, history []Event) error {
	if len(history) == 0 {
		return errors.NotValidf("empty history for %s %q", kind, id)
	}
	first := history[0]
	if first.Kind != EventCreated || first.Entity != kind || first.ID != id {
		return errors.NotValidf("history of %s %q starting with %s %s %q",
			kind, id, first.Entity, first.Kind, first.ID)
	}
	return nil
}

// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"encoding/json"

	"github.com/juju/errors"
)

// Ref is a reference to another entity held in a container's items
// list. NS is an optional ordered grouping path, conventionally things
// like ["2019", "v21", "n1"].
type Ref struct {
	ID string   `json:"id" bson:"id"`
	NS []string `json:"ns,omitempty" bson:"ns,omitempty"`
}

// Copy returns a deep copy of the reference.
func (r Ref) Copy() Ref {
	out := Ref{ID: r.ID}
	if r.NS != nil {
		out.NS = append([]string(nil), r.NS...)
	}
	return out
}

// ContainerManifest is the canonical record shape shared by journals
// and documents bundles: identity, lifecycle timestamps, an open
// metadata section and an ordered, duplicate-free list of references.
// The ahead-of-print pointer is only ever set on journals.
type ContainerManifest struct {
	DocID        string                 `json:"_id" bson:"_id"`
	ID           string                 `json:"id" bson:"id"`
	Created      string                 `json:"created" bson:"created"`
	Updated      string                 `json:"updated" bson:"updated"`
	Deleted      bool                   `json:"deleted,omitempty" bson:"deleted,omitempty"`
	Metadata     map[string]interface{} `json:"metadata" bson:"metadata"`
	Items        []Ref                  `json:"items" bson:"items"`
	AheadOfPrint string                 `json:"aop,omitempty" bson:"aop,omitempty"`
}

// Copy returns a deep copy of the manifest.
func (m ContainerManifest) Copy() ContainerManifest {
	out := m
	out.Metadata = copyMetadata(m.Metadata)
	out.Items = make([]Ref, 0, len(m.Items))
	for _, r := range m.Items {
		out.Items = append(out.Items, r.Copy())
	}
	return out
}

// VersionedURI is one entry of a slot history: the binding instant and
// the bound URI. It serialises as the two-element array the replicas
// already consume, [timestamp, uri].
type VersionedURI struct {
	Timestamp string
	URI       string
}

// MarshalJSON implements json.Marshaler.
func (v VersionedURI) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{v.Timestamp, v.URI})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *VersionedURI) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.NotValidf("slot entry %s", data)
	}
	v.Timestamp, v.URI = pair[0], pair[1]
	return nil
}

// Version is one document snapshot: the XML URI, the creation instant,
// and the asset and rendition slots declared for it together with their
// URI histories. A deleted version closes the document's history.
type Version struct {
	Data       string                    `json:"data,omitempty"`
	Timestamp  string                    `json:"timestamp"`
	Assets     map[string][]VersionedURI `json:"assets,omitempty"`
	Renditions map[string][]VersionedURI `json:"renditions,omitempty"`
	Deleted    bool                      `json:"deleted,omitempty"`
}

// Copy returns a deep copy of the version.
func (v Version) Copy() Version {
	out := v
	out.Assets = copySlots(v.Assets)
	out.Renditions = copySlots(v.Renditions)
	return out
}

// DocumentManifest is the canonical record of a document: identity,
// the generated v3 PID and the append-only version list, oldest first.
type DocumentManifest struct {
	DocID    string    `json:"_id"`
	ID       string    `json:"id"`
	PID      string    `json:"pid_v3,omitempty"`
	Created  string    `json:"created"`
	Updated  string    `json:"updated"`
	Versions []Version `json:"versions"`
}

// Copy returns a deep copy of the manifest.
func (m DocumentManifest) Copy() DocumentManifest {
	out := m
	out.Versions = make([]Version, 0, len(m.Versions))
	for _, v := range m.Versions {
		out.Versions = append(out.Versions, v.Copy())
	}
	return out
}

func copySlots(slots map[string][]VersionedURI) map[string][]VersionedURI {
	if slots == nil {
		return nil
	}
	out := make(map[string][]VersionedURI, len(slots))
	for name, entries := range slots {
		out[name] = append([]VersionedURI(nil), entries...)
	}
	return out
}

// copyMetadata deep-copies an open metadata section. Values follow the
// shapes encoding/json produces: scalars, []interface{} and
// map[string]interface{}, plus []string for convenience.
func copyMetadata(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return copyMetadata(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

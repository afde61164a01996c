// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mongostate

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/juju/errors"
	mgo "github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/state"
)

// containerStore persists journal and bundle manifests as native BSON
// documents.
type containerStore struct {
	kind string
	coll *mgo.Collection
}

// Add implements state.DataStore.
func (s *containerStore) Add(manifest domain.ContainerManifest) error {
	err := s.coll.Insert(manifest)
	if mgo.IsDup(err) {
		return errors.AlreadyExistsf("%s %q", s.kind, manifest.ID)
	}
	return maybeTransient(err)
}

// Update implements state.DataStore.
func (s *containerStore) Update(manifest domain.ContainerManifest) error {
	err := s.coll.UpdateId(manifest.DocID, manifest)
	if err == mgo.ErrNotFound {
		return errors.NotFoundf("%s %q", s.kind, manifest.ID)
	}
	return maybeTransient(err)
}

// Fetch implements state.DataStore.
func (s *containerStore) Fetch(id string) (domain.ContainerManifest, error) {
	var manifest domain.ContainerManifest
	err := s.coll.FindId(id).One(&manifest)
	if err == mgo.ErrNotFound {
		return domain.ContainerManifest{}, errors.NotFoundf("%s %q", s.kind, id)
	}
	return manifest, maybeTransient(err)
}

// Delete implements state.DataStore.
func (s *containerStore) Delete(id string) error {
	err := s.coll.RemoveId(id)
	if err == mgo.ErrNotFound {
		return errors.NotFoundf("%s %q", s.kind, id)
	}
	return maybeTransient(err)
}

// documentDoc is the stored shape of a document record: the manifest
// as a JSON string, with the v3 PID lifted out for the alternate-id
// lookup.
type documentDoc struct {
	DocID    string `bson:"_id"`
	PID      string `bson:"pid_v3,omitempty"`
	Document string `bson:"document"`
}

type documentStore struct {
	coll *mgo.Collection
}

func encodeDocument(manifest domain.DocumentManifest) (documentDoc, error) {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return documentDoc{}, errors.Trace(err)
	}
	return documentDoc{
		DocID:    manifest.DocID,
		PID:      manifest.PID,
		Document: string(raw),
	}, nil
}

func (doc documentDoc) decode() (domain.DocumentManifest, error) {
	var manifest domain.DocumentManifest
	if err := json.Unmarshal([]byte(doc.Document), &manifest); err != nil {
		return domain.DocumentManifest{}, errors.Annotatef(err, "corrupt record for document %q", doc.DocID)
	}
	return manifest, nil
}

// Add implements state.DataStore.
func (s *documentStore) Add(manifest domain.DocumentManifest) error {
	doc, err := encodeDocument(manifest)
	if err != nil {
		return errors.Trace(err)
	}
	err = s.coll.Insert(doc)
	if mgo.IsDup(err) {
		return errors.AlreadyExistsf("document %q", manifest.ID)
	}
	return maybeTransient(err)
}

// Update implements state.DataStore.
func (s *documentStore) Update(manifest domain.DocumentManifest) error {
	doc, err := encodeDocument(manifest)
	if err != nil {
		return errors.Trace(err)
	}
	err = s.coll.UpdateId(doc.DocID, doc)
	if err == mgo.ErrNotFound {
		return errors.NotFoundf("document %q", manifest.ID)
	}
	return maybeTransient(err)
}

// Fetch implements state.DataStore. Lookup falls back from _id to the
// pid_v3 field so that both identifiers resolve to the same document.
func (s *documentStore) Fetch(id string) (domain.DocumentManifest, error) {
	var doc documentDoc
	err := s.coll.FindId(id).One(&doc)
	if err == mgo.ErrNotFound {
		err = s.coll.Find(bson.M{"pid_v3": id}).One(&doc)
	}
	if err == mgo.ErrNotFound {
		return domain.DocumentManifest{}, errors.NotFoundf("document %q", id)
	}
	if err != nil {
		return domain.DocumentManifest{}, maybeTransient(err)
	}
	return doc.decode()
}

// Delete implements state.DataStore.
func (s *documentStore) Delete(id string) error {
	err := s.coll.RemoveId(id)
	if err == mgo.ErrNotFound {
		return errors.NotFoundf("document %q", id)
	}
	return maybeTransient(err)
}

// changeDoc carries an auto ObjectId so that same-timestamp changes
// from different workers never collide.
type changeDoc struct {
	ID        bson.ObjectId `bson:"_id"`
	Timestamp string        `bson:"timestamp"`
	Entity    string        `bson:"entity"`
	EntityID  string        `bson:"id"`
	Deleted   bool          `bson:"deleted,omitempty"`
}

type changesStore struct {
	coll *mgo.Collection
}

// Add implements state.ChangesDataStore.
func (s *changesStore) Add(change state.Change) error {
	return maybeTransient(s.coll.Insert(changeDoc{
		ID:        bson.NewObjectId(),
		Timestamp: change.Timestamp,
		Entity:    change.Entity,
		EntityID:  change.ID,
		Deleted:   change.Deleted,
	}))
}

// Filter implements state.ChangesDataStore.
func (s *changesStore) Filter(since string, limit int) ([]state.Change, error) {
	if limit <= 0 {
		limit = state.DefaultChangesLimit
	}
	query := bson.M{}
	if since != "" {
		query["timestamp"] = bson.M{"$gt": since}
	}
	var docs []changeDoc
	err := s.coll.Find(query).Sort("timestamp").Limit(limit).All(&docs)
	if err != nil {
		return nil, maybeTransient(err)
	}
	out := make([]state.Change, 0, len(docs))
	for _, doc := range docs {
		out = append(out, state.Change{
			Timestamp: doc.Timestamp,
			Entity:    doc.Entity,
			ID:        doc.EntityID,
			Deleted:   doc.Deleted,
		})
	}
	return out, nil
}

// maybeTransient marks network-level faults as retryable so the state
// retry decorator picks them up. Anything else passes through with its
// kind intact.
func maybeTransient(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("transient mongodb fault: %v%w", err, errors.Hide(state.Retryable))
	}
	return errors.Trace(err)
}

func isTransient(err error) bool {
	if err == io.EOF {
		return true
	}
	if _, ok := err.(net.Error); ok {
		return true
	}
	msg := err.Error()
	for _, fragment := range []string{
		"no reachable servers",
		"Closed explicitly",
		"connection reset by peer",
		"i/o timeout",
		"EOF",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package services

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/documentstore/domain"
)

// checkDocumentExists enforces that a bundle membership change names a
// currently existing document.
func (s *Services) checkDocumentExists(docID string) error {
	_, err := s.session.Documents().Fetch(docID)
	if errors.Is(err, errors.NotFound) {
		return fmt.Errorf("document %q does not exist%w",
			docID, errors.Hide(domain.UnknownReference))
	}
	return errors.Trace(err)
}

// CreateDocumentsBundle registers a new bundle, optionally populated
// with document references. Every referenced document must exist.
func (s *Services) CreateDocumentsBundle(id string, docs []domain.Ref, metadata map[string]interface{}) error {
	if id == "" {
		return errors.NotValidf("empty documents bundle id")
	}
	meta, err := ValidateBundleMetadata(metadata)
	if err != nil {
		return errors.Trace(err)
	}
	for _, doc := range docs {
		if err := s.checkDocumentExists(doc.ID); err != nil {
			return errors.Trace(err)
		}
	}
	ts := s.now()
	bundle := domain.NewDocumentsBundle(id, meta, ts)
	for _, doc := range docs {
		if err := bundle.AddDocument(doc, ts); err != nil {
			return errors.Trace(err)
		}
	}
	if err := s.session.Bundles().Add(bundle.Manifest()); err != nil {
		return errors.Trace(err)
	}
	if err := s.appendChange(domain.KindDocumentsBundle, id, ts, false); err != nil {
		return errors.Trace(err)
	}
	s.notify("documents-bundle-created", id, bundle.Manifest())
	return nil
}

// FetchDocumentsBundle returns the bundle's current manifest.
func (s *Services) FetchDocumentsBundle(id string) (domain.ContainerManifest, error) {
	manifest, err := s.session.Bundles().Fetch(id)
	return manifest, errors.Trace(err)
}

// mutateBundle is mutateJournal for bundles.
func (s *Services) mutateBundle(id, event string, deleted bool, fn func(b *domain.DocumentsBundle, ts string) error) error {
	manifest, err := s.session.Bundles().Fetch(id)
	if err != nil {
		return errors.Trace(err)
	}
	bundle := domain.DocumentsBundleFromManifest(manifest)
	ts := s.now()
	if err := fn(bundle, ts); err != nil {
		return errors.Trace(err)
	}
	if len(bundle.Events()) == 0 {
		return nil
	}
	if err := s.session.Bundles().Update(bundle.Manifest()); err != nil {
		return errors.Trace(err)
	}
	if err := s.appendChange(domain.KindDocumentsBundle, id, ts, deleted); err != nil {
		return errors.Trace(err)
	}
	s.notify(event, id, bundle.Manifest())
	return nil
}

// UpdateDocumentsBundleMetadata merges metadata over the bundle's
// section.
func (s *Services) UpdateDocumentsBundleMetadata(id string, metadata map[string]interface{}) error {
	meta, err := ValidateBundleMetadata(metadata)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateBundle(id, "documents-bundle-metadata-updated", false,
		func(b *domain.DocumentsBundle, ts string) error {
			return b.UpdateMetadata(meta, ts)
		}))
}

// AddDocumentToDocumentsBundle appends a document reference. The
// document must exist; re-adding a present id is a no-op.
func (s *Services) AddDocumentToDocumentsBundle(bundleID string, doc domain.Ref) error {
	if err := s.checkDocumentExists(doc.ID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateBundle(bundleID, "document-added-to-documents-bundle", false,
		func(b *domain.DocumentsBundle, ts string) error {
			return b.AddDocument(doc, ts)
		}))
}

// InsertDocumentToDocumentsBundle places a document reference at index
// (clamped).
func (s *Services) InsertDocumentToDocumentsBundle(bundleID string, index int, doc domain.Ref) error {
	if err := s.checkDocumentExists(doc.ID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateBundle(bundleID, "document-inserted-to-documents-bundle", false,
		func(b *domain.DocumentsBundle, ts string) error {
			return b.InsertDocument(index, doc, ts)
		}))
}

// RemoveDocumentFromDocumentsBundle drops the reference with the given
// id.
func (s *Services) RemoveDocumentFromDocumentsBundle(bundleID, docID string) error {
	return errors.Trace(s.mutateBundle(bundleID, "document-removed-from-documents-bundle", false,
		func(b *domain.DocumentsBundle, ts string) error {
			return b.RemoveDocument(docID, ts)
		}))
}

// UpdateDocumentsInDocumentsBundle replaces the bundle's whole document
// list. All referenced documents must exist.
func (s *Services) UpdateDocumentsInDocumentsBundle(bundleID string, docs []domain.Ref) error {
	for _, doc := range docs {
		if err := s.checkDocumentExists(doc.ID); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(s.mutateBundle(bundleID, "documents-updated-in-documents-bundle", false,
		func(b *domain.DocumentsBundle, ts string) error {
			return b.SetDocuments(docs, ts)
		}))
}

// DeleteDocumentsBundle marks the bundle deleted. Its id cannot be
// reused.
func (s *Services) DeleteDocumentsBundle(id string) error {
	return errors.Trace(s.mutateBundle(id, "documents-bundle-deleted", true,
		func(b *domain.DocumentsBundle, ts string) error {
			return b.Delete(ts)
		}))
}

// DiffDocumentsBundleVersions returns the bundle's synthesised events
// in the window (from, to]; see DiffJournalVersions for the coarse
// container semantics.
func (s *Services) DiffDocumentsBundleVersions(id, from, to string) ([]domain.Event, error) {
	manifest, err := s.session.Bundles().Fetch(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return eventsWindow(domain.DocumentsBundleEvents(manifest), from, to)
}

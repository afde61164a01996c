// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package services

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/documentstore/domain"
)

// Asset names one slot binding supplied at registration time. An empty
// URL declares the slot without binding it.
type Asset struct {
	ID  string
	URL string
}

func slotNames(assets []Asset) []string {
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, a.ID)
	}
	return names
}

// RegisterDocument registers a brand new document: generates its v3
// PID, records the first version with the declared slots, and binds the
// URIs provided alongside the declarations. Registering an id that is
// already in use fails AlreadyExists; idempotent ingestion callers fall
// through to RegisterDocumentVersion.
func (s *Services) RegisterDocument(id, dataURI string, assets, renditions []Asset) error {
	if id == "" {
		return errors.NotValidf("empty document id")
	}
	if dataURI == "" {
		return errors.NotValidf("empty data uri")
	}
	v3, err := s.newPID()
	if err != nil {
		return errors.Annotate(err, "cannot generate pid")
	}
	ts := s.now()
	doc := domain.NewDocument(id, v3, ts)
	if err := doc.NewVersion(dataURI, slotNames(assets), slotNames(renditions), ts); err != nil {
		return errors.Trace(err)
	}
	if err := bindSlots(doc, assets, renditions, ts); err != nil {
		return errors.Trace(err)
	}
	if err := s.session.Documents().Add(doc.Manifest()); err != nil {
		return errors.Trace(err)
	}
	if err := s.appendChange(domain.KindDocument, id, ts, false); err != nil {
		return errors.Trace(err)
	}
	s.notify("document-registered", id, doc.Manifest())
	return nil
}

func bindSlots(doc *domain.Document, assets, renditions []Asset, ts string) error {
	for _, a := range assets {
		if a.URL == "" {
			continue
		}
		if err := doc.NewAssetVersion(a.ID, a.URL, ts); err != nil {
			return errors.Trace(err)
		}
	}
	for _, r := range renditions {
		if r.URL == "" {
			continue
		}
		if err := doc.NewRenditionVersion(r.ID, r.URL, ts); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// mutateDocument is the fetch/apply/persist/log/notify sequence for
// documents. A mutation that recorded no events writes nothing.
func (s *Services) mutateDocument(id, event string, deleted bool, fn func(d *domain.Document, ts string) error) error {
	manifest, err := s.session.Documents().Fetch(id)
	if err != nil {
		return errors.Trace(err)
	}
	doc := domain.DocumentFromManifest(manifest)
	ts := s.now()
	if err := fn(doc, ts); err != nil {
		return errors.Trace(err)
	}
	if len(doc.Events()) == 0 {
		return nil
	}
	if err := s.session.Documents().Update(doc.Manifest()); err != nil {
		return errors.Trace(err)
	}
	if err := s.appendChange(domain.KindDocument, doc.ID(), ts, deleted); err != nil {
		return errors.Trace(err)
	}
	s.notify(event, doc.ID(), doc.Manifest())
	return nil
}

// RegisterDocumentVersion appends a version to an existing document.
// A version identical to the current latest (same data URI, same slot
// declaration) is an intent-level no-op: no new version, no change
// entry.
func (s *Services) RegisterDocumentVersion(id, dataURI string, assets, renditions []Asset) error {
	if dataURI == "" {
		return errors.NotValidf("empty data uri")
	}
	err := s.mutateDocument(id, "document-version-registered", false,
		func(d *domain.Document, ts string) error {
			if err := d.NewVersion(dataURI, slotNames(assets), slotNames(renditions), ts); err != nil {
				return errors.Trace(err)
			}
			return bindSlots(d, assets, renditions, ts)
		})
	if errors.Is(err, domain.VersionAlreadyExists) {
		logger.Debugf("document %q already at version %q, nothing to do", id, dataURI)
		return nil
	}
	return errors.Trace(err)
}

// RegisterAssetVersion appends a URI to an asset slot of the latest
// version. Re-binding the URI already at the tail is a no-op.
func (s *Services) RegisterAssetVersion(docID, slot, uri string) error {
	if uri == "" {
		return errors.NotValidf("empty asset uri")
	}
	err := s.mutateDocument(docID, "asset-version-registered", false,
		func(d *domain.Document, ts string) error {
			return d.NewAssetVersion(slot, uri, ts)
		})
	if errors.Is(err, domain.VersionAlreadyExists) {
		return nil
	}
	return errors.Trace(err)
}

// RegisterRenditionVersion is RegisterAssetVersion for rendition slots.
func (s *Services) RegisterRenditionVersion(docID, slot, uri string) error {
	if uri == "" {
		return errors.NotValidf("empty rendition uri")
	}
	err := s.mutateDocument(docID, "rendition-version-registered", false,
		func(d *domain.Document, ts string) error {
			return d.NewRenditionVersion(slot, uri, ts)
		})
	if errors.Is(err, domain.VersionAlreadyExists) {
		return nil
	}
	return errors.Trace(err)
}

// DeleteDocument closes the document's history with a deleted version.
// The change entry carries deleted=true so replicas drop their copies.
func (s *Services) DeleteDocument(id string) error {
	return errors.Trace(s.mutateDocument(id, "document-deleted", true,
		func(d *domain.Document, ts string) error {
			return d.Delete(ts)
		}))
}

// FetchDocumentManifest returns the document's full manifest. Manifests
// of deleted documents stay readable; only data views fail.
func (s *Services) FetchDocumentManifest(id string) (domain.DocumentManifest, error) {
	manifest, err := s.session.Documents().Fetch(id)
	return manifest, errors.Trace(err)
}

// resolveVersion picks a version by the caller's selector: versionAt
// wins an as-of-timestamp lookup, index is 1-based with 0 meaning
// latest. Supplying both selectors is invalid.
func resolveVersion(manifest domain.DocumentManifest, index int, versionAt string) (domain.Version, error) {
	doc := domain.DocumentFromManifest(manifest)
	switch {
	case index != 0 && versionAt != "":
		return domain.Version{}, errors.NotValidf("both version index and timestamp selectors")
	case versionAt != "":
		v, err := doc.VersionAt(versionAt)
		return v, errors.Trace(err)
	case index != 0:
		v, err := doc.Version(index - 1)
		return v, errors.Trace(err)
	default:
		v, err := doc.Version(-1)
		return v, errors.Trace(err)
	}
}

func checkVersionReadable(id string, v domain.Version) error {
	if v.Deleted {
		return fmt.Errorf("document %q is deleted%w", id, errors.Hide(domain.AlreadyDeleted))
	}
	return nil
}

// currentURIs resolves every slot to its current URI at the selected
// version; declared but unbound slots map to the empty string.
func currentURIs(slots map[string][]domain.VersionedURI) map[string]string {
	out := make(map[string]string, len(slots))
	for name, entries := range slots {
		uri := ""
		if len(entries) > 0 {
			uri = entries[len(entries)-1].URI
		}
		out[name] = uri
	}
	return out
}

// DocumentData is the resolved view of one document version: the XML
// URI and each slot's current URI.
type DocumentData struct {
	Data       string            `json:"data"`
	Timestamp  string            `json:"timestamp"`
	Assets     map[string]string `json:"assets"`
	Renditions map[string]string `json:"renditions,omitempty"`
}

// FetchDocumentData returns the resolved view of the selected version.
// Reads against a deleted version fail AlreadyDeleted.
func (s *Services) FetchDocumentData(id string, index int, versionAt string) (DocumentData, error) {
	manifest, err := s.session.Documents().Fetch(id)
	if err != nil {
		return DocumentData{}, errors.Trace(err)
	}
	v, err := resolveVersion(manifest, index, versionAt)
	if err != nil {
		return DocumentData{}, errors.Trace(err)
	}
	if err := checkVersionReadable(id, v); err != nil {
		return DocumentData{}, errors.Trace(err)
	}
	out := DocumentData{
		Data:      v.Data,
		Timestamp: v.Timestamp,
		Assets:    currentURIs(v.Assets),
	}
	if v.Renditions != nil {
		out.Renditions = currentURIs(v.Renditions)
	}
	return out, nil
}

// FetchAssetsList returns slot → current URI for the selected version.
func (s *Services) FetchAssetsList(id string, index int, versionAt string) (map[string]string, error) {
	data, err := s.FetchDocumentData(id, index, versionAt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data.Assets, nil
}

// FetchDocumentRenditions returns rendition slot → current URI for the
// selected version.
func (s *Services) FetchDocumentRenditions(id string, index int, versionAt string) (map[string]string, error) {
	manifest, err := s.session.Documents().Fetch(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	v, err := resolveVersion(manifest, index, versionAt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := checkVersionReadable(id, v); err != nil {
		return nil, errors.Trace(err)
	}
	return currentURIs(v.Renditions), nil
}

// DiffDocumentVersions returns the document's event history in the
// window (from, to]. Unlike containers, document manifests record every
// binding instant, so the synthesised list is complete.
func (s *Services) DiffDocumentVersions(id, from, to string) ([]domain.Event, error) {
	manifest, err := s.session.Documents().Fetch(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return eventsWindow(domain.DocumentEvents(manifest), from, to)
}

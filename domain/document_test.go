// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain_test

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/documentstore/domain"
)

const (
	docID  = "0034-8910-rsp-48-2-0347"
	docPID = "gpktqsmcqkgkhhgqxwvcxvw"
	xmlURI = "https://files.example.org/0034-8910-rsp-48-2-0347.xml"
	gf01V1 = "https://files.example.org/0034-8910-rsp-48-2-0347-gf01.jpg"
	gf01V2 = "https://files.example.org/0034-8910-rsp-48-2-0347-gf01-v2.jpg"
)

// ts returns canonical instants one minute apart, shared by the suites
// in this package.
func ts(i int) string {
	base := time.Date(2018, 8, 5, 22, 33, 49, 795151000, time.UTC)
	return domain.FormatTimestamp(base.Add(time.Duration(i) * time.Minute))
}

type documentSuite struct{}

var _ = gc.Suite(&documentSuite{})

func (s *documentSuite) TestNewDocumentManifest(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	m := d.Manifest()
	c.Check(m.ID, gc.Equals, docID)
	c.Check(m.DocID, gc.Equals, docID)
	c.Check(m.PID, gc.Equals, docPID)
	c.Check(m.Created, gc.Equals, ts(0))
	c.Check(m.Updated, gc.Equals, ts(0))
	c.Check(m.Versions, gc.HasLen, 0)

	events := d.Events()
	c.Assert(events, gc.HasLen, 1)
	c.Check(events[0].Kind, gc.Equals, domain.EventCreated)
	c.Check(events[0].Entity, gc.Equals, domain.KindDocument)
	c.Check(events[0].ID, gc.Equals, docID)
	c.Check(events[0].PID, gc.Equals, docPID)
}

func (s *documentSuite) TestNewVersionDeclaresSlots(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	err := d.NewVersion(xmlURI, []string{"gf01", "gf02"}, []string{"pdf-en"}, ts(1))
	c.Assert(err, jc.ErrorIsNil)

	m := d.Manifest()
	c.Assert(m.Versions, gc.HasLen, 1)
	v := m.Versions[0]
	c.Check(v.Data, gc.Equals, xmlURI)
	c.Check(v.Timestamp, gc.Equals, ts(1))
	c.Check(v.Assets, jc.DeepEquals, map[string][]domain.VersionedURI{
		"gf01": {}, "gf02": {},
	})
	c.Check(v.Renditions, jc.DeepEquals, map[string][]domain.VersionedURI{
		"pdf-en": {},
	})
	c.Check(m.Updated, gc.Equals, ts(1))
}

func (s *documentSuite) TestNewVersionIdenticalContentRejected(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, nil, ts(1)), jc.ErrorIsNil)

	err := d.NewVersion(xmlURI, []string{"gf01"}, nil, ts(2))
	c.Assert(err, jc.ErrorIs, domain.VersionAlreadyExists)
	c.Assert(d.Manifest().Versions, gc.HasLen, 1)
}

func (s *documentSuite) TestNewVersionDifferentSlotSetAccepted(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, nil, ts(1)), jc.ErrorIsNil)

	// Same data URI but a different slot declaration is new content.
	c.Assert(d.NewVersion(xmlURI, []string{"gf01", "gf02"}, nil, ts(2)), jc.ErrorIsNil)
	c.Assert(d.Manifest().Versions, gc.HasLen, 2)
}

func (s *documentSuite) TestNewVersionDeduplicatesDeclaredSlots(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01", "gf01"}, nil, ts(1)), jc.ErrorIsNil)
	v, err := d.Version(-1)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets, gc.HasLen, 1)
}

func (s *documentSuite) TestNewAssetVersionBindsSlot(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)

	v, err := d.Version(-1)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], jc.DeepEquals, []domain.VersionedURI{
		{Timestamp: ts(2), URI: gf01V1},
	})
}

func (s *documentSuite) TestNewAssetVersionAppends(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)
	c.Assert(d.NewAssetVersion("gf01", gf01V2, ts(3)), jc.ErrorIsNil)

	v, err := d.Version(-1)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], jc.DeepEquals, []domain.VersionedURI{
		{Timestamp: ts(2), URI: gf01V1},
		{Timestamp: ts(3), URI: gf01V2},
	})
}

func (s *documentSuite) TestNewAssetVersionSameTailRejected(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)

	err := d.NewAssetVersion("gf01", gf01V1, ts(3))
	c.Assert(err, jc.ErrorIs, domain.VersionAlreadyExists)
	v, err2 := d.Version(-1)
	c.Assert(err2, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], gc.HasLen, 1)
}

func (s *documentSuite) TestNewAssetVersionUnknownSlot(c *gc.C) {
	d := s.documentWithVersion(c)
	err := d.NewAssetVersion("gf99", gf01V1, ts(2))
	c.Assert(err, jc.ErrorIs, domain.UnknownSlot)
}

func (s *documentSuite) TestNewAssetVersionNeedsAVersion(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	err := d.NewAssetVersion("gf01", gf01V1, ts(1))
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *documentSuite) TestNewAssetVersionOnlyTouchesLatest(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)
	c.Assert(d.NewVersion(xmlURI+"?v=2", []string{"gf01"}, nil, ts(3)), jc.ErrorIsNil)
	c.Assert(d.NewAssetVersion("gf01", gf01V2, ts(4)), jc.ErrorIsNil)

	m := d.Manifest()
	c.Assert(m.Versions, gc.HasLen, 2)
	c.Check(m.Versions[0].Assets["gf01"], gc.HasLen, 1)
	c.Check(m.Versions[1].Assets["gf01"], jc.DeepEquals, []domain.VersionedURI{
		{Timestamp: ts(4), URI: gf01V2},
	})
}

func (s *documentSuite) TestRenditionVersions(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, []string{"pdf-en"}, ts(1)), jc.ErrorIsNil)

	c.Assert(d.NewRenditionVersion("pdf-en", "https://files.example.org/0347-en.pdf", ts(2)), jc.ErrorIsNil)
	v, err := d.Version(-1)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Renditions["pdf-en"], gc.HasLen, 1)

	err = d.NewRenditionVersion("pdf-pt", "https://files.example.org/0347-pt.pdf", ts(3))
	c.Assert(err, jc.ErrorIs, domain.UnknownSlot)

	// Asset slots and rendition slots are separate namespaces.
	err = d.NewRenditionVersion("gf01", gf01V1, ts(4))
	c.Assert(err, jc.ErrorIs, domain.UnknownSlot)
}

func (s *documentSuite) TestVersionTimestampsNonDecreasing(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	for i := 1; i <= 4; i++ {
		uri := xmlURI + "?rev=" + strings.Repeat("i", i)
		c.Assert(d.NewVersion(uri, []string{"gf01"}, nil, ts(i)), jc.ErrorIsNil)
	}
	m := d.Manifest()
	for i := 1; i < len(m.Versions); i++ {
		c.Assert(m.Versions[i-1].Timestamp <= m.Versions[i].Timestamp, jc.IsTrue)
	}
}

func (s *documentSuite) TestNonLatestVersionsAreFrozen(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)

	before, err := d.Version(0)
	c.Assert(err, jc.ErrorIsNil)
	rawBefore, err := json.Marshal(before)
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(d.NewVersion(xmlURI+"?v=2", []string{"gf01", "gf02"}, nil, ts(3)), jc.ErrorIsNil)
	c.Assert(d.NewAssetVersion("gf02", gf01V2, ts(4)), jc.ErrorIsNil)

	after, err := d.Version(0)
	c.Assert(err, jc.ErrorIsNil)
	rawAfter, err := json.Marshal(after)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(rawAfter), gc.Equals, string(rawBefore))
}

func (s *documentSuite) TestVersionIndexing(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, nil, ts(1)), jc.ErrorIsNil)
	c.Assert(d.NewVersion(xmlURI+"?v=2", []string{"gf01"}, nil, ts(2)), jc.ErrorIsNil)

	v, err := d.Version(0)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI)

	v, err = d.Version(-1)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI+"?v=2")

	v, err = d.Version(-2)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI)

	_, err = d.Version(2)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	_, err = d.Version(-3)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *documentSuite) TestVersionOnEmptyHistory(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	_, err := d.Version(-1)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *documentSuite) TestVersionAtSelectsVersion(c *gc.C) {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, nil, ts(1)), jc.ErrorIsNil)
	c.Assert(d.NewVersion(xmlURI+"?v=2", []string{"gf01"}, nil, ts(5)), jc.ErrorIsNil)

	v, err := d.VersionAt(ts(3))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI)

	v, err = d.VersionAt(ts(5))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI+"?v=2")

	_, err = d.VersionAt(ts(0))
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *documentSuite) TestVersionAtTruncatesSlotHistories(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)
	c.Assert(d.NewAssetVersion("gf01", gf01V2, ts(4)), jc.ErrorIsNil)

	v, err := d.VersionAt(ts(2))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], jc.DeepEquals, []domain.VersionedURI{
		{Timestamp: ts(2), URI: gf01V1},
	})

	v, err = d.VersionAt(ts(3))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], gc.HasLen, 1)

	v, err = d.VersionAt(ts(4))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], gc.HasLen, 2)
}

func (s *documentSuite) TestVersionAtUnboundSlotComesBackEmpty(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(4)), jc.ErrorIsNil)

	// At ts(2) the version existed but the slot was still unbound.
	v, err := d.VersionAt(ts(2))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(v.Assets["gf01"], gc.HasLen, 0)
}

func (s *documentSuite) TestVersionAtAcceptsDateOnly(c *gc.C) {
	d := domain.NewDocument(docID, docPID, "2018-08-05T10:00:00.000000Z")
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, nil, "2018-08-05T12:00:00.000000Z"), jc.ErrorIsNil)

	// A bare date means the end of that day, so the version published
	// at noon is visible.
	v, err := d.VersionAt("2018-08-05")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI)

	_, err = d.VersionAt("2018-08-04")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *documentSuite) TestVersionAtRejectsBadTimestamp(c *gc.C) {
	d := s.documentWithVersion(c)
	_, err := d.VersionAt("when the reviewers approved it")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *documentSuite) TestDelete(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.Delete(ts(9)), jc.ErrorIsNil)
	c.Assert(d.Deleted(), jc.IsTrue)

	m := d.Manifest()
	c.Assert(m.Versions, gc.HasLen, 2)
	c.Check(m.Versions[1].Deleted, jc.IsTrue)
	c.Check(m.Versions[1].Timestamp, gc.Equals, ts(9))

	// Only reads remain.
	c.Assert(d.NewVersion(xmlURI, nil, nil, ts(10)), jc.ErrorIs, domain.AlreadyDeleted)
	c.Assert(d.NewAssetVersion("gf01", gf01V2, ts(10)), jc.ErrorIs, domain.AlreadyDeleted)
	c.Assert(d.Delete(ts(10)), jc.ErrorIs, domain.AlreadyDeleted)

	v, err := d.Version(0)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(v.Data, gc.Equals, xmlURI)
}

func (s *documentSuite) TestManifestSnapshotIsDetached(c *gc.C) {
	d := s.documentWithVersion(c)
	m := d.Manifest()
	m.Versions[0].Assets["gf01"] = append(m.Versions[0].Assets["gf01"],
		domain.VersionedURI{Timestamp: ts(5), URI: "https://evil.example.org/x.jpg"})
	m.Versions[0].Data = "overwritten"

	fresh := d.Manifest()
	c.Check(fresh.Versions[0].Assets["gf01"], gc.HasLen, 0)
	c.Check(fresh.Versions[0].Data, gc.Equals, xmlURI)
}

func (s *documentSuite) TestDocumentFromManifest(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)

	reborn := domain.DocumentFromManifest(d.Manifest())
	c.Assert(reborn.Manifest(), jc.DeepEquals, d.Manifest())
	c.Assert(reborn.Events(), gc.HasLen, 0)

	// The reborn entity keeps enforcing invariants.
	err := reborn.NewAssetVersion("gf01", gf01V1, ts(3))
	c.Assert(err, jc.ErrorIs, domain.VersionAlreadyExists)
}

func (s *documentSuite) TestDocumentFromEvents(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)
	c.Assert(d.Delete(ts(3)), jc.ErrorIsNil)

	reborn, err := domain.DocumentFromEvents(docID, d.Events())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(reborn.Manifest(), jc.DeepEquals, d.Manifest())
	c.Assert(reborn.Deleted(), jc.IsTrue)
	c.Assert(reborn.Events(), gc.HasLen, 0)
}

func (s *documentSuite) TestDocumentFromEventsValidatesHistory(c *gc.C) {
	_, err := domain.DocumentFromEvents(docID, nil)
	c.Assert(err, jc.ErrorIs, errors.NotValid)

	_, err = domain.DocumentFromEvents(docID, []domain.Event{{
		Entity: domain.KindDocument, ID: docID, Kind: domain.EventVersionAdded, Timestamp: ts(0),
	}})
	c.Assert(err, jc.ErrorIs, errors.NotValid)

	_, err = domain.DocumentFromEvents(docID, []domain.Event{{
		Entity: domain.KindJournal, ID: docID, Kind: domain.EventCreated, Timestamp: ts(0),
	}})
	c.Assert(err, jc.ErrorIs, errors.NotValid)

	_, err = domain.DocumentFromEvents(docID, []domain.Event{{
		Entity: domain.KindDocument, ID: "someone-else", Kind: domain.EventCreated, Timestamp: ts(0),
	}})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *documentSuite) TestDocumentEventsRoundTrip(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)
	c.Assert(d.NewVersion(xmlURI+"?v=2", []string{"gf01"}, []string{"pdf-en"}, ts(3)), jc.ErrorIsNil)
	c.Assert(d.NewAssetVersion("gf01", gf01V2, ts(4)), jc.ErrorIsNil)
	c.Assert(d.NewRenditionVersion("pdf-en", "https://files.example.org/0347-en.pdf", ts(5)), jc.ErrorIsNil)

	events := domain.DocumentEvents(d.Manifest())
	reborn, err := domain.DocumentFromEvents(docID, events)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(reborn.Manifest(), jc.DeepEquals, d.Manifest())
}

func (s *documentSuite) TestDocumentEventsOrdered(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)
	c.Assert(d.Delete(ts(3)), jc.ErrorIsNil)

	events := domain.DocumentEvents(d.Manifest())
	c.Assert(events, gc.HasLen, 4)
	c.Check(events[0].Kind, gc.Equals, domain.EventCreated)
	c.Check(events[1].Kind, gc.Equals, domain.EventVersionAdded)
	c.Check(events[2].Kind, gc.Equals, domain.EventAssetVersionAdded)
	c.Check(events[3].Kind, gc.Equals, domain.EventDeleted)
	for i := 1; i < len(events); i++ {
		c.Check(events[i-1].Timestamp <= events[i].Timestamp, jc.IsTrue)
	}
}

func (s *documentSuite) TestManifestJSONPairShape(c *gc.C) {
	d := s.documentWithVersion(c)
	c.Assert(d.NewAssetVersion("gf01", gf01V1, ts(2)), jc.ErrorIsNil)

	raw, err := json.Marshal(d.Manifest())
	c.Assert(err, jc.ErrorIsNil)
	// Slot entries serialise as [timestamp, uri] pairs.
	c.Assert(string(raw), jc.Contains, `"gf01":[["`+ts(2)+`","`+gf01V1+`"]]`)

	var m domain.DocumentManifest
	c.Assert(json.Unmarshal(raw, &m), jc.ErrorIsNil)
	c.Assert(m, jc.DeepEquals, d.Manifest())
}

func (s *documentSuite) documentWithVersion(c *gc.C) *domain.Document {
	d := domain.NewDocument(docID, docPID, ts(0))
	c.Assert(d.NewVersion(xmlURI, []string{"gf01"}, nil, ts(1)), jc.ErrorIsNil)
	return d
}

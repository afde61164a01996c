// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package services_test

import (
	"fmt"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/services"
	"github.com/juju/documentstore/state"
	"github.com/juju/documentstore/state/statetesting"
)

type documentsSuite struct {
	baseSuite
}

var _ = gc.Suite(&documentsSuite{})

func (s *documentsSuite) register(c *gc.C) {
	err := s.svc.RegisterDocument(docID, xmlURI,
		[]services.Asset{{ID: "gf01", URL: gf01URI}}, nil)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *documentsSuite) TestRegisterDocument(c *gc.C) {
	s.register(c)

	m, err := s.svc.FetchDocumentManifest(docID)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(m.ID, gc.Equals, docID)
	c.Check(m.PID, gc.Equals, fakePID)
	c.Assert(m.Versions, gc.HasLen, 1)
	c.Check(m.Versions[0].Data, gc.Equals, xmlURI)
	c.Assert(m.Versions[0].Assets["gf01"], jc.DeepEquals, []domain.VersionedURI{
		{Timestamp: epochStr, URI: gf01URI},
	})

	changes := s.changes(c)
	c.Assert(changes, gc.HasLen, 1)
	c.Check(changes[0], jc.DeepEquals, state.Change{
		Timestamp: epochStr, Entity: "document", ID: docID,
	})
}

func (s *documentsSuite) TestRegisterDocumentValidatesInput(c *gc.C) {
	c.Assert(s.svc.RegisterDocument("", xmlURI, nil, nil), jc.ErrorIs, errors.NotValid)
	c.Assert(s.svc.RegisterDocument(docID, "", nil, nil), jc.ErrorIs, errors.NotValid)
	c.Assert(s.stores.Documents.Len(), gc.Equals, 0)
	c.Assert(s.changes(c), gc.HasLen, 0)
}

func (s *documentsSuite) TestRegisterDocumentDuplicate(c *gc.C) {
	s.register(c)
	err := s.svc.RegisterDocument(docID, xmlURI, nil, nil)
	c.Assert(err, jc.ErrorIs, errors.AlreadyExists)
	c.Assert(s.changes(c), gc.HasLen, 1)
}

func (s *documentsSuite) TestFetchByPID(c *gc.C) {
	s.register(c)
	m, err := s.svc.FetchDocumentManifest(fakePID)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(m.ID, gc.Equals, docID)
}

func (s *documentsSuite) TestRegisterAssetVersionAppends(c *gc.C) {
	s.register(c)
	s.tick()

	c.Assert(s.svc.RegisterAssetVersion(docID, "gf01", gf01V2), jc.ErrorIsNil)

	m, err := s.svc.FetchDocumentManifest(docID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m.Versions[0].Assets["gf01"], gc.HasLen, 2)
	c.Check(m.Versions[0].Assets["gf01"][1].URI, gc.Equals, gf01V2)

	// As-of the first instant the slot still has a single binding.
	assets, err := s.svc.FetchAssetsList(docID, 0, epochStr)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(assets["gf01"], gc.Equals, gf01URI)

	changes := s.changes(c)
	c.Assert(changes, gc.HasLen, 2)
	c.Check(changes[0].ID, gc.Equals, docID)
	c.Check(changes[1].ID, gc.Equals, docID)
	c.Check(changes[0].Timestamp < changes[1].Timestamp, jc.IsTrue)
}

func (s *documentsSuite) TestRegisterAssetVersionSameURIIsNoOp(c *gc.C) {
	s.register(c)
	s.tick()

	c.Assert(s.svc.RegisterAssetVersion(docID, "gf01", gf01URI), jc.ErrorIsNil)

	m, err := s.svc.FetchDocumentManifest(docID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m.Versions[0].Assets["gf01"], gc.HasLen, 1)
	c.Assert(s.changes(c), gc.HasLen, 1)
}

func (s *documentsSuite) TestRegisterAssetVersionUnknownSlot(c *gc.C) {
	s.register(c)
	err := s.svc.RegisterAssetVersion(docID, "gf99", gf01V2)
	c.Assert(err, jc.ErrorIs, domain.UnknownSlot)
	c.Assert(s.changes(c), gc.HasLen, 1)
}

func (s *documentsSuite) TestRegisterRenditionVersion(c *gc.C) {
	err := s.svc.RegisterDocument(docID, xmlURI, nil,
		[]services.Asset{{ID: "pdf-pt"}})
	c.Assert(err, jc.ErrorIsNil)
	s.tick()

	c.Assert(s.svc.RegisterRenditionVersion(docID, "pdf-pt", testPDF), jc.ErrorIsNil)

	renditions, err := s.svc.FetchDocumentRenditions(docID, 0, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(renditions, jc.DeepEquals, map[string]string{"pdf-pt": testPDF})
}

func (s *documentsSuite) TestRegisterDocumentVersionIdenticalIsNoOp(c *gc.C) {
	s.register(c)
	s.tick()

	err := s.svc.RegisterDocumentVersion(docID, xmlURI,
		[]services.Asset{{ID: "gf01", URL: gf01URI}}, nil)
	c.Assert(err, jc.ErrorIsNil)

	m, err := s.svc.FetchDocumentManifest(docID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m.Versions, gc.HasLen, 1)
	c.Assert(s.changes(c), gc.HasLen, 1)
}

func (s *documentsSuite) TestRegisterDocumentVersionAppends(c *gc.C) {
	s.register(c)
	s.tick()

	next := "https://files.example.org/0034-8910-rsp-48-2-0347-v2.xml"
	err := s.svc.RegisterDocumentVersion(docID, next, nil, nil)
	c.Assert(err, jc.ErrorIsNil)

	m, err := s.svc.FetchDocumentManifest(docID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(m.Versions, gc.HasLen, 2)
	c.Check(m.Versions[1].Data, gc.Equals, next)

	// The first version stayed untouched.
	c.Assert(m.Versions[0].Assets["gf01"], gc.HasLen, 1)
	c.Assert(s.changes(c), gc.HasLen, 2)
}

func (s *documentsSuite) TestVersionSelectors(c *gc.C) {
	s.register(c)
	s.tick()
	next := "https://files.example.org/0034-8910-rsp-48-2-0347-v2.xml"
	c.Assert(s.svc.RegisterDocumentVersion(docID, next, nil, nil), jc.ErrorIsNil)

	data, err := s.svc.FetchDocumentData(docID, 1, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(data.Data, gc.Equals, xmlURI)

	data, err = s.svc.FetchDocumentData(docID, 0, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(data.Data, gc.Equals, next)

	data, err = s.svc.FetchDocumentData(docID, 0, epochStr)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(data.Data, gc.Equals, xmlURI)

	_, err = s.svc.FetchDocumentData(docID, 1, epochStr)
	c.Assert(err, jc.ErrorIs, errors.NotValid)

	_, err = s.svc.FetchDocumentData(docID, 99, "")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *documentsSuite) TestDeleteDocument(c *gc.C) {
	s.register(c)
	s.tick()

	c.Assert(s.svc.DeleteDocument(docID), jc.ErrorIsNil)

	changes := s.changes(c)
	c.Assert(changes, gc.HasLen, 2)
	c.Check(changes[1].Deleted, jc.IsTrue)

	// The manifest stays readable, data views do not.
	_, err := s.svc.FetchDocumentManifest(docID)
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.svc.FetchDocumentData(docID, 0, "")
	c.Assert(err, jc.ErrorIs, domain.AlreadyDeleted)

	// No further mutation is accepted.
	err = s.svc.RegisterAssetVersion(docID, "gf01", gf01V2)
	c.Assert(err, jc.ErrorIs, domain.AlreadyDeleted)
}

func (s *documentsSuite) TestDiffDocumentVersions(c *gc.C) {
	s.register(c)
	s.tick()
	c.Assert(s.svc.RegisterAssetVersion(docID, "gf01", gf01V2), jc.ErrorIsNil)

	events, err := s.svc.DiffDocumentVersions(docID, epochStr, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(events, gc.HasLen, 1)
	c.Check(events[0].Kind, gc.Equals, domain.EventAssetVersionAdded)
	c.Check(events[0].URI, gc.Equals, gf01V2)

	// The full window starts with creation.
	events, err = s.svc.DiffDocumentVersions(docID, "", "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(events[0].Kind, gc.Equals, domain.EventCreated)
}

func (s *documentsSuite) TestNotification(c *gc.C) {
	var got services.Notification
	done := make(chan struct{}, 1)
	unsub := s.session.Observe("document-registered", func(topic string, data interface{}) {
		got = data.(services.Notification)
		done <- struct{}{}
	})
	defer unsub()

	s.register(c)

	select {
	case <-done:
	case <-time.After(longWait):
		c.Fatalf("observer never notified")
	}
	c.Check(got.Event, gc.Equals, "document-registered")
	c.Check(got.ID, gc.Equals, docID)
}

// retrySuite exercises the facade over stores that fail transiently,
// the way a flaky backend would.
type retrySuite struct {
	baseSuite

	stub *testing.Stub
}

var _ = gc.Suite(&retrySuite{})

func (s *retrySuite) SetUpTest(c *gc.C) {
	s.baseSuite.SetUpTest(c)
	s.stub = &testing.Stub{}
	policy := state.RetryPolicy{
		MaxRetries:    state.DefaultMaxRetries,
		BackoffFactor: state.DefaultBackoffFactor,
		Clock:         testclock.NewDilatedWallClock(time.Millisecond),
	}
	session := state.NewSession(
		s.stores.Journals,
		s.stores.Bundles,
		statetesting.NewStubStore(s.stub, s.stores.Documents),
		statetesting.NewStubChangesStore(s.stub, s.stores.Changes),
		nil,
	).WithRetry(policy)
	s.svc = services.New(session, s.clock)
	services.PatchPIDSource(s.svc, func() (string, error) {
		return fakePID, nil
	})
}

func transient() error {
	return fmt.Errorf("connection reset%w", errors.Hide(state.Retryable))
}

func (s *retrySuite) TestRegisterDocumentRecovers(c *gc.C) {
	s.stub.SetErrors(transient(), transient(), nil)

	err := s.svc.RegisterDocument(docID, xmlURI, nil, nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.stores.Documents.Len(), gc.Equals, 1)
	c.Assert(s.changes(c), gc.HasLen, 1)
}

func (s *retrySuite) TestRegisterDocumentExhaustsBudget(c *gc.C) {
	s.stub.SetErrors(transient(), transient(), transient(), transient(), transient())

	err := s.svc.RegisterDocument(docID, xmlURI, nil, nil)
	c.Assert(err, jc.ErrorIs, state.RetryExhausted)
	c.Assert(s.stores.Documents.Len(), gc.Equals, 0)
	c.Assert(s.changes(c), gc.HasLen, 0)
}

func (s *retrySuite) TestChangeLogAppendFailed(c *gc.C) {
	// The document write lands, the change append does not.
	s.stub.SetErrors(nil, errors.New("disk full"))

	err := s.svc.RegisterDocument(docID, xmlURI, nil, nil)
	c.Assert(err, jc.ErrorIs, state.ChangeLogAppendFailed)
	c.Assert(s.stores.Documents.Len(), gc.Equals, 1)
	c.Assert(s.changes(c), gc.HasLen, 0)
}

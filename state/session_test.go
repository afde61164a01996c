// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state_test

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/documentstore/state"
	"github.com/juju/documentstore/state/statetesting"
)

type sessionSuite struct{}

var _ = gc.Suite(&sessionSuite{})

func (s *sessionSuite) TestStoresAreWired(c *gc.C) {
	session, stores := statetesting.NewSession()
	c.Check(session.Journals(), gc.Equals, state.JournalStore(stores.Journals))
	c.Check(session.Bundles(), gc.Equals, state.BundleStore(stores.Bundles))
	c.Check(session.Documents(), gc.Equals, state.DocumentStore(stores.Documents))
	c.Check(session.Changes(), gc.Equals, state.ChangesDataStore(stores.Changes))
}

func (s *sessionSuite) TestObserversReceiveNotifications(c *gc.C) {
	session, _ := statetesting.NewSession()

	received := make(chan interface{}, 1)
	unsubscribe := session.Observe("journal-created", func(topic string, data interface{}) {
		received <- data
	})
	defer unsubscribe()

	session.NotifyAndWait("journal-created", "payload")()
	select {
	case data := <-received:
		c.Assert(data, gc.Equals, "payload")
	default:
		c.Fatalf("notification never reached the observer")
	}
}

func (s *sessionSuite) TestUnsubscribedObserverIsQuiet(c *gc.C) {
	session, _ := statetesting.NewSession()

	received := make(chan interface{}, 1)
	unsubscribe := session.Observe("journal-created", func(topic string, data interface{}) {
		received <- data
	})
	unsubscribe()

	session.NotifyAndWait("journal-created", "payload")()
	select {
	case <-received:
		c.Fatalf("observer notified after unsubscribing")
	default:
	}
}

func (s *sessionSuite) TestCloseRunsCloser(c *gc.C) {
	closed := false
	session := state.NewSession(
		statetesting.NewContainerStore("journal"),
		statetesting.NewContainerStore("documents bundle"),
		statetesting.NewDocumentStore(),
		statetesting.NewChangesStore(),
		func() { closed = true },
	)
	session.Close()
	c.Assert(closed, jc.IsTrue)
}

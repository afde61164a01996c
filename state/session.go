// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"github.com/juju/pubsub/v2"
)

// Session is the unit of work the services layer runs against: one
// handle per entity store, the change log, and a per-session observer
// hub. Sessions are cheap and request-scoped; the adapter supplies a
// closer that releases whatever backend resources the session copy
// holds.
type Session struct {
	journals  JournalStore
	bundles   BundleStore
	documents DocumentStore
	changes   ChangesDataStore
	hub       *pubsub.SimpleHub
	closer    func()
}

// NewSession assembles a session over the given stores. closer may be
// nil; mongostate passes one that closes the copied mgo session.
func NewSession(
	journals JournalStore,
	bundles BundleStore,
	documents DocumentStore,
	changes ChangesDataStore,
	closer func(),
) *Session {
	return &Session{
		journals:  journals,
		bundles:   bundles,
		documents: documents,
		changes:   changes,
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: logger.Child("hub"),
		}),
		closer: closer,
	}
}

// WithRetry returns a session whose every store is decorated with the
// retry policy. The observer hub and closer are shared with the
// receiver.
func (s *Session) WithRetry(policy RetryPolicy) *Session {
	out := *s
	out.journals = NewRetryingDataStore("journal", s.journals, policy)
	out.bundles = NewRetryingDataStore("documents bundle", s.bundles, policy)
	out.documents = NewRetryingDataStore("document", s.documents, policy)
	out.changes = NewRetryingChangesStore(s.changes, policy)
	return &out
}

// Journals returns the journal store handle.
func (s *Session) Journals() JournalStore { return s.journals }

// Bundles returns the documents bundle store handle.
func (s *Session) Bundles() BundleStore { return s.bundles }

// Documents returns the document store handle.
func (s *Session) Documents() DocumentStore { return s.documents }

// Changes returns the change log handle.
func (s *Session) Changes() ChangesDataStore { return s.changes }

// Notify publishes data to the session's observers of topic.
func (s *Session) Notify(topic string, data interface{}) {
	s.hub.Publish(topic, data)
}

// NotifyAndWait publishes like Notify and returns the hub's wait
// function, which blocks until every observer has run. Tests use it to
// synchronise.
func (s *Session) NotifyAndWait(topic string, data interface{}) func() {
	return s.hub.Publish(topic, data)
}

// Observe subscribes handler to topic on the session hub and returns
// the unsubscribe function. Subscriptions do not outlive the session.
func (s *Session) Observe(topic string, handler func(topic string, data interface{})) func() {
	return s.hub.Subscribe(topic, handler)
}

// Close releases the session's backend resources.
func (s *Session) Close() {
	if s.closer != nil {
		s.closer()
	}
}

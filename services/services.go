// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package services exposes the use cases of the document store as one
// facade. Each method fetches the current manifest, rebuilds the
// entity, applies mutators, persists the new manifest, appends one
// change-log entry and notifies the session observers, in that order.
// The change-log append deliberately follows the entity write and is
// never rolled back on failure; the gap surfaces as
// ChangeLogAppendFailed for operators to resolve.
package services

import (
	"fmt"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/documentstore/domain"
	"github.com/juju/documentstore/pid"
	"github.com/juju/documentstore/state"
)

var logger = loggo.GetLogger("kernel.services")

// Notification is the payload published on the session hub after every
// successful mutation, under a topic naming the use case, for example
// "journal-created" or "asset-version-registered".
type Notification struct {
	Event    string
	ID       string
	Manifest interface{}
}

// Services is the application facade. It is cheap to construct and
// bound to one session; build one per request.
type Services struct {
	session *state.Session
	clock   clock.Clock
	newPID  func() (string, error)
}

// New returns a facade over session, timestamping with clk.
func New(session *state.Session, clk clock.Clock) *Services {
	return &Services{
		session: session,
		clock:   clk,
		newPID:  pid.New,
	}
}

// Session returns the facade's session, for observer registration.
func (s *Services) Session() *state.Session {
	return s.session
}

func (s *Services) now() string {
	return domain.FormatTimestamp(s.clock.Now())
}

// appendChange records one latest-state pointer for the entity. A
// failure here leaves the already-written entity ahead of the change
// log; the error says so and keeps the ChangeLogAppendFailed kind.
func (s *Services) appendChange(entity domain.Kind, id, ts string, deleted bool) error {
	err := s.session.Changes().Add(state.Change{
		Timestamp: ts,
		Entity:    string(entity),
		ID:        id,
		Deleted:   deleted,
	})
	if err != nil {
		logger.Errorf("%s %q written but change log append failed: %v", entity, id, err)
		return fmt.Errorf("%s %q written but change log append failed: %v%w",
			entity, id, err, errors.Hide(state.ChangeLogAppendFailed))
	}
	return nil
}

func (s *Services) notify(event, id string, manifest interface{}) {
	s.session.Notify(event, Notification{Event: event, ID: id, Manifest: manifest})
}

// FetchChanges returns one change feed page: entries with timestamp
// strictly greater than since (empty means from the beginning),
// ascending, at most limit entries (0 means the default page size).
// Clients paginate by repeating with since set to the last returned
// timestamp.
func (s *Services) FetchChanges(since string, limit int) ([]state.Change, error) {
	if since != "" {
		canonical, err := domain.CanonicalTimestamp(since)
		if err != nil {
			return nil, errors.Trace(err)
		}
		since = canonical
	}
	changes, err := s.session.Changes().Filter(since, limit)
	return changes, errors.Trace(err)
}

// eventsWindow keeps the events in the window (from, to]. Empty bounds
// mean unbounded on that side.
func eventsWindow(events []domain.Event, from, to string) ([]domain.Event, error) {
	var err error
	if from != "" {
		if from, err = domain.CanonicalTimestamp(from); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if to != "" {
		if to, err = domain.CanonicalTimestamp(to); err != nil {
			return nil, errors.Trace(err)
		}
	}
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp <= from {
			continue
		}
		if to != "" && ev.Timestamp > to {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

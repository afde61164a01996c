// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package watcher tails the change feed on behalf of replicas. It
// implements the consumer side of the feed contract: poll with a
// cursor, group entries by entity, keep only the latest state pointer,
// and hand the collapsed batch to whoever replicates the store (site
// frontends, OAI-PMH providers).
package watcher

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/juju/documentstore/state"
)

var logger = loggo.GetLogger("kernel.watcher")

// DefaultPollInterval is how long the follower sleeps between polls
// when the configuration does not say otherwise.
const DefaultPollInterval = 10 * time.Second

// Task tells a replica what to do about one entity: refetch it, or
// drop it when Deleted is set. Timestamp is the feed cursor of the
// entry the task was derived from.
type Task struct {
	Entity    string
	ID        string
	Deleted   bool
	Timestamp string
}

// Config holds the follower dependencies.
type Config struct {
	// Fetch returns one change feed page; services.FetchChanges has
	// this shape.
	Fetch func(since string, limit int) ([]state.Change, error)

	// Clock times the polls.
	Clock clock.Clock

	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration

	// PageSize caps each feed query; zero means the store default.
	PageSize int

	// Since is the starting cursor; empty replays the feed from the
	// beginning.
	Since string
}

// Validate returns an error if the follower cannot run.
func (config Config) Validate() error {
	if config.Fetch == nil {
		return errors.NotValidf("nil Fetch")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// ChangeFollower is a worker that polls the change feed and emits
// collapsed task batches on Tasks. It dies on the first fetch error;
// transient backend faults are already absorbed below, so an error
// here is worth a restart from the outside.
type ChangeFollower struct {
	tomb   tomb.Tomb
	config Config
	out    chan []Task
}

// NewChangeFollower starts a follower.
func NewChangeFollower(config Config) (*ChangeFollower, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PageSize <= 0 {
		config.PageSize = state.DefaultChangesLimit
	}
	w := &ChangeFollower{
		config: config,
		out:    make(chan []Task),
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill implements worker.Worker.
func (w *ChangeFollower) Kill() {
	w.tomb.Kill(nil)
}

// Wait implements worker.Worker.
func (w *ChangeFollower) Wait() error {
	return w.tomb.Wait()
}

// Tasks returns the channel the follower emits batches on. Batches
// preserve feed order and hold at most one task per entity.
func (w *ChangeFollower) Tasks() <-chan []Task {
	return w.out
}

func (w *ChangeFollower) loop() error {
	since := w.config.Since
	for {
		tasks, next, err := w.poll(since)
		if err != nil {
			return errors.Trace(err)
		}
		since = next
		if len(tasks) > 0 {
			select {
			case w.out <- tasks:
			case <-w.tomb.Dying():
				return tomb.ErrDying
			}
		}
		select {
		case <-w.config.Clock.After(w.config.PollInterval):
		case <-w.tomb.Dying():
			return tomb.ErrDying
		}
	}
}

// poll drains the feed from since and collapses it: per (entity, id)
// only the last entry survives, at its first position in feed order.
func (w *ChangeFollower) poll(since string) ([]Task, string, error) {
	var entries []state.Change
	for {
		page, err := w.config.Fetch(since, w.config.PageSize)
		if err != nil {
			return nil, "", errors.Annotate(err, "cannot fetch changes")
		}
		if len(page) > 0 {
			entries = append(entries, page...)
			since = page[len(page)-1].Timestamp
		}
		if len(page) < w.config.PageSize {
			break
		}
	}
	if len(entries) == 0 {
		return nil, since, nil
	}
	logger.Debugf("collapsing %d feed entries", len(entries))

	index := make(map[string]int, len(entries))
	tasks := make([]Task, 0, len(entries))
	for _, entry := range entries {
		key := entry.Entity + "/" + entry.ID
		task := Task{
			Entity:    entry.Entity,
			ID:        entry.ID,
			Deleted:   entry.Deleted,
			Timestamp: entry.Timestamp,
		}
		if i, seen := index[key]; seen {
			tasks[i] = task
			continue
		}
		index[key] = len(tasks)
		tasks = append(tasks, task)
	}
	return tasks, since, nil
}

// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package services

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/documentstore/domain"
)

// CreateJournal registers a new journal. Metadata is filtered and
// validated; unknown keys are dropped.
func (s *Services) CreateJournal(id string, metadata map[string]interface{}) error {
	if id == "" {
		return errors.NotValidf("empty journal id")
	}
	meta, err := ValidateJournalMetadata(metadata)
	if err != nil {
		return errors.Trace(err)
	}
	ts := s.now()
	journal := domain.NewJournal(id, meta, ts)
	if err := s.session.Journals().Add(journal.Manifest()); err != nil {
		return errors.Trace(err)
	}
	if err := s.appendChange(domain.KindJournal, id, ts, false); err != nil {
		return errors.Trace(err)
	}
	s.notify("journal-created", id, journal.Manifest())
	return nil
}

// FetchJournal returns the journal's current manifest.
func (s *Services) FetchJournal(id string) (domain.ContainerManifest, error) {
	manifest, err := s.session.Journals().Fetch(id)
	return manifest, errors.Trace(err)
}

// mutateJournal runs fn against the journal's current state and, when
// fn recorded at least one event, persists the result, appends one
// change entry and notifies observers under event. A mutation that
// recorded nothing is an intent-level no-op: nothing is written.
func (s *Services) mutateJournal(id, event string, deleted bool, fn func(j *domain.Journal, ts string) error) error {
	manifest, err := s.session.Journals().Fetch(id)
	if err != nil {
		return errors.Trace(err)
	}
	journal := domain.JournalFromManifest(manifest)
	ts := s.now()
	if err := fn(journal, ts); err != nil {
		return errors.Trace(err)
	}
	if len(journal.Events()) == 0 {
		return nil
	}
	if err := s.session.Journals().Update(journal.Manifest()); err != nil {
		return errors.Trace(err)
	}
	if err := s.appendChange(domain.KindJournal, id, ts, deleted); err != nil {
		return errors.Trace(err)
	}
	s.notify(event, id, journal.Manifest())
	return nil
}

// UpdateJournalMetadata merges metadata over the journal's section.
func (s *Services) UpdateJournalMetadata(id string, metadata map[string]interface{}) error {
	meta, err := ValidateJournalMetadata(metadata)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateJournal(id, "journal-metadata-updated", false,
		func(j *domain.Journal, ts string) error {
			return j.UpdateMetadata(meta, ts)
		}))
}

// checkBundleExists enforces the loose referential requirement that a
// membership change names a currently existing bundle.
func (s *Services) checkBundleExists(bundleID string) error {
	_, err := s.session.Bundles().Fetch(bundleID)
	if errors.Is(err, errors.NotFound) {
		return fmt.Errorf("documents bundle %q does not exist%w",
			bundleID, errors.Hide(domain.UnknownReference))
	}
	return errors.Trace(err)
}

// AddIssueToJournal appends a bundle reference to the journal's issue
// list. The bundle must exist; re-adding a present id is a no-op.
func (s *Services) AddIssueToJournal(journalID string, issue domain.Ref) error {
	if err := s.checkBundleExists(issue.ID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateJournal(journalID, "issue-added-to-journal", false,
		func(j *domain.Journal, ts string) error {
			return j.AddIssue(issue, ts)
		}))
}

// InsertIssueToJournal places a bundle reference at index (clamped).
func (s *Services) InsertIssueToJournal(journalID string, index int, issue domain.Ref) error {
	if err := s.checkBundleExists(issue.ID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateJournal(journalID, "issue-inserted-to-journal", false,
		func(j *domain.Journal, ts string) error {
			return j.InsertIssue(index, issue, ts)
		}))
}

// RemoveIssueFromJournal drops the reference with the given id.
func (s *Services) RemoveIssueFromJournal(journalID, issueID string) error {
	return errors.Trace(s.mutateJournal(journalID, "issue-removed-from-journal", false,
		func(j *domain.Journal, ts string) error {
			return j.RemoveIssue(issueID, ts)
		}))
}

// UpdateIssuesInJournal replaces the journal's whole issue list. All
// referenced bundles must exist.
func (s *Services) UpdateIssuesInJournal(journalID string, issues []domain.Ref) error {
	for _, issue := range issues {
		if err := s.checkBundleExists(issue.ID); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(s.mutateJournal(journalID, "issues-updated-in-journal", false,
		func(j *domain.Journal, ts string) error {
			return j.SetIssues(issues, ts)
		}))
}

// SetAheadOfPrintBundleToJournal points the journal at its
// ahead-of-print bundle, which must exist.
func (s *Services) SetAheadOfPrintBundleToJournal(journalID, bundleID string) error {
	if err := s.checkBundleExists(bundleID); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.mutateJournal(journalID, "aop-bundle-set-to-journal", false,
		func(j *domain.Journal, ts string) error {
			return j.SetAheadOfPrint(bundleID, ts)
		}))
}

// RemoveAheadOfPrintBundleFromJournal clears the ahead-of-print
// pointer.
func (s *Services) RemoveAheadOfPrintBundleFromJournal(journalID string) error {
	return errors.Trace(s.mutateJournal(journalID, "aop-bundle-removed-from-journal", false,
		func(j *domain.Journal, ts string) error {
			return j.RemoveAheadOfPrint(ts)
		}))
}

// DeleteJournal marks the journal deleted. Its id cannot be reused.
func (s *Services) DeleteJournal(id string) error {
	return errors.Trace(s.mutateJournal(id, "journal-deleted", true,
		func(j *domain.Journal, ts string) error {
			return j.Delete(ts)
		}))
}

// DiffJournalVersions returns the journal's synthesised events in the
// window (from, to]. Containers retain only their creation and last
// update instants, so the diff is coarse: create plus at most one
// update or delete marker.
func (s *Services) DiffJournalVersions(id, from, to string) ([]domain.Event, error) {
	manifest, err := s.session.Journals().Fetch(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return eventsWindow(domain.JournalEvents(manifest), from, to)
}

// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"time"

	"github.com/juju/errors"
)

// TimestampFormat is the canonical serialisation of instants throughout
// the store: UTC, microsecond resolution, fixed width. The fixed width
// makes lexicographic order equal chronological order, which both the
// change feed cursor and VersionAt rely on.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in the canonical form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(TimestampFormat)
}

// ParseTimestamp accepts the canonical form plus the shorter spellings
// tolerated at the API boundary: date only, minute and second
// resolution with a trailing Z, and fractional seconds up to
// nanoseconds (truncated to microseconds). A date with no time of day
// means the very end of that day, so that asking for a version "at"
// 2018-09-17 includes everything published during it.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Add(24*time.Hour - time.Microsecond), nil
	}
	if t, err := time.Parse("2006-01-02T15:04Z", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Truncate(time.Microsecond), nil
	}
	return time.Time{}, errors.NotValidf("timestamp %q", s)
}

// CanonicalTimestamp parses s and re-renders it canonically.
func CanonicalTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", errors.Trace(err)
	}
	return FormatTimestamp(t), nil
}

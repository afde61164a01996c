// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package version holds the release number reported by the API root
// endpoint and the command line tools.
package version

// Current is the version of the running software. It is bumped as part
// of the release process.
const Current = "2.0.3"

// Name identifies the service in API responses and process titles.
const Name = "documentstore"

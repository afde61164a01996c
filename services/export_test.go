// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package services

// PatchPIDSource replaces the facade's PID generator so tests get
// deterministic identifiers.
func PatchPIDSource(s *Services, fn func() (string, error)) {
	s.newPID = fn
}

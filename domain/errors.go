// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"github.com/juju/errors"
)

const (
	// VersionAlreadyExists reports an append whose content is identical
	// to the current latest state: same data URI and slot declaration
	// for document versions, same tail URI for slot bindings. Services
	// treat it as a no-op success.
	VersionAlreadyExists = errors.ConstError("version already exists")

	// UnknownSlot reports a URI binding aimed at a slot that the latest
	// version never declared.
	UnknownSlot = errors.ConstError("unknown slot")

	// DuplicateReference reports a membership change that would leave a
	// container with two references to the same id.
	DuplicateReference = errors.ConstError("duplicate reference")

	// UnknownReference reports a membership change naming an id the
	// container does not hold.
	UnknownReference = errors.ConstError("unknown reference")

	// AlreadyDeleted reports a mutation against a deleted entity. Only
	// reads against history remain once an entity is deleted.
	AlreadyDeleted = errors.ConstError("already deleted")
)

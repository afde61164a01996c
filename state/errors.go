// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"github.com/juju/errors"
)

const (
	// Retryable marks a transient backend fault. Adapters attach it to
	// errors worth retrying; everything else is fatal to the retry
	// loop and passes through unchanged.
	Retryable = errors.ConstError("retryable")

	// RetryExhausted reports that the retry budget ran out without a
	// successful call. The message carries the last backend error.
	RetryExhausted = errors.ConstError("retry budget exhausted")

	// ChangeLogAppendFailed reports that an entity write landed but
	// the matching change-log append did not. The entity write is not
	// rolled back; operators resolve the gap by re-running the append.
	ChangeLogAppendFailed = errors.ConstError("change log append failed")
)

// IsRetryable reports whether err is marked as a transient backend
// fault.
func IsRetryable(err error) bool {
	return errors.Is(err, Retryable)
}

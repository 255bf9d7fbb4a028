// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"fmt"

	"github.com/GridProtectionAlliance/gsf-sub065/dictlist"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/errors"
)

var (
	// ErrDuplicateKey indicates that a keyed queue already holds an entry with the given key.
	ErrDuplicateKey = dictlist.ErrDuplicateKey

	// ErrKeyNotFound indicates that a keyed queue holds no entry with the given key.
	ErrKeyNotFound = dictlist.ErrKeyNotFound

	// ErrConfiguration indicates that a queue was constructed with an unsupported combination of settings.
	ErrConfiguration = errors.New("processqueue: invalid configuration")

	// ErrProcessingTimeout is reported to the ErrorHandler when a dispatch exceeds
	// its timeout and the items are dropped.
	ErrProcessingTimeout = errors.New("processqueue: processing timed out")

	// ErrQueueClosed indicates that the operation is now illegal because the queue has been closed.
	ErrQueueClosed = errors.New("processqueue: queue closed")

	// ErrIndexOutOfRange indicates that a positional operation referred to a position that does not exist.
	ErrIndexOutOfRange = errors.New("processqueue: index out of range")

	// ErrRetriesExhausted is reported to the ErrorHandler when items that would
	// be requeued have already been retried MaxRetries times.
	ErrRetriesExhausted = errors.New("processqueue: retries exhausted")
)

// ProcessingFailure wraps an error returned, or a panic raised, by a Handler
// or BatchHandler.
type ProcessingFailure struct {
	// Err is the error returned by the handler. For a panic it describes the
	// recovered value.
	Err error

	// Panic holds the recovered value if the handler panicked.
	Panic interface{}

	// Stack holds the goroutine stack captured when the panic was recovered.
	Stack []byte
}

func (f *ProcessingFailure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("processqueue: handler panic: %v", f.Panic)
	}
	return fmt.Sprintf("processqueue: handler failed: %v", f.Err)
}

func (f *ProcessingFailure) Unwrap() error { return f.Err }

func configError(op errors.Op, format string, args ...interface{}) error {
	return errors.E(op, errors.InvalidArgument, fmt.Errorf("%w: "+format, append([]interface{}{ErrConfiguration}, args...)...))
}

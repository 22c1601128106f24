package aio

import (
	"context"

	"github.com/ehrlich-b/go-aio/internal/interfaces"
)

// Channel and CompletionHandler are defined in internal/interfaces so
// backend packages can implement them without importing the engine.
type (
	Channel           = interfaces.Channel
	CompletionHandler = interfaces.CompletionHandler
	StatChannel       = interfaces.StatChannel
)

// Opener is the extension point a storage backend supplies.
//
// For expected failure classes an opener sets the operation status with
// op.Fail and returns (nil, nil). A returned error means the call was
// interrupted (context cancellation); the driver hands it back to the
// caller of Submit instead of turning it into a status.
type Opener interface {
	// OpenDestination opens the resource the operation writes to. It is
	// called before OpenSource.
	OpenDestination(ctx context.Context, op *Operation) (Channel, error)

	// OpenSource opens the resource the operation reads from. For CREATE
	// and COPY with an empty source path it returns (nil, nil) without
	// touching the status.
	OpenSource(ctx context.Context, op *Operation) (Channel, error)
}

// PathRequester is implemented by openers that can prepare destination
// roots.
type PathRequester interface {
	RequestNewPath(path string) (string, error)
}

// BufferAdjuster is implemented by openers that tune I/O sizing from the
// observed average transfer size.
type BufferAdjuster interface {
	AdjustIOBuffers(avgTransferSize int64, typ OpType)
}

// Scheduler feeds operations into a Driver and takes them back.
type Scheduler interface {
	// Resubmit hands back an ACTIVE operation that needs another
	// invocation. It must not block; false means the continuation was
	// refused (queue full or closed).
	Resubmit(op *Operation) bool

	// Done receives every operation once it reaches a terminal status.
	Done(op *Operation)
}

package aio

import "github.com/ehrlich-b/go-aio/internal/constants"

// Re-export constants for public API
const (
	DefaultConcurrency           = constants.DefaultConcurrency
	DefaultChunkSize             = constants.DefaultChunkSize
	MaxChunkSize                 = constants.MaxChunkSize
	DefaultWorkers               = constants.DefaultWorkers
	DefaultRingEntries           = constants.DefaultRingEntries
	DefaultContinuationQueueSize = constants.DefaultContinuationQueueSize
)

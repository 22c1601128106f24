package constants

import "time"

// Default engine configuration
const (
	// DefaultConcurrency is the default number of operations admitted at once
	DefaultConcurrency = 64

	// DefaultChunkSize bounds one I/O invocation and the buffer it borrows (1MB)
	DefaultChunkSize = 1 << 20

	// MaxChunkSize is the largest chunk the buffer pool serves (4MB)
	MaxChunkSize = 4 << 20

	// DefaultWorkers is the default goroutine count of the pread/pwrite executor
	DefaultWorkers = 16

	// DefaultRingEntries is the default io_uring submission queue size
	DefaultRingEntries = 256

	// DefaultContinuationQueueSize is the default capacity of the scheduler's
	// continuation queue
	DefaultContinuationQueueSize = 4096

	// DefaultFilePerm is used for files created by CREATE and COPY
	DefaultFilePerm = 0o644

	// DefaultDirPerm is used for destination directories
	DefaultDirPerm = 0o755
)

// Timing constants for the load scheduler
const (
	// RetryBackoff is how long the scheduler waits after the throttle
	// refuses admission before trying the unconsumed suffix again
	RetryBackoff = 200 * time.Microsecond

	// ShutdownGrace bounds how long the CLI waits for in-flight operations
	ShutdownGrace = 5 * time.Second
)

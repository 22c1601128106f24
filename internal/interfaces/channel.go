package interfaces

// CompletionHandler receives the outcome of one non-blocking channel call.
// Exactly one of Completed or Failed is invoked, possibly on a goroutine
// unrelated to the caller.
type CompletionHandler interface {
	// Completed reports n bytes transferred. For reads, n == 0 means the
	// offset is at or beyond the end of the resource.
	Completed(n int)

	// Failed reports the cause of an unsuccessful transfer.
	Failed(err error)
}

// Channel is a non-blocking, completion-based handle to one open backend
// resource. ReadAt and WriteAt return immediately; the handler is invoked
// when the transfer finishes. Implementations must not retain p after
// invoking the handler.
//
// A channel belongs to exactly one operation and is closed once.
type Channel interface {
	// ReadAt reads up to len(p) bytes into p starting at offset off.
	ReadAt(p []byte, off int64, h CompletionHandler)

	// WriteAt writes up to len(p) bytes from p at offset off. A short
	// write is not an error; the caller continues from off+n.
	WriteAt(p []byte, off int64, h CompletionHandler)

	// IsOpen reports whether the channel still accepts calls.
	IsOpen() bool

	// Close releases the resource. Calls issued after Close fail with
	// os.ErrClosed through their handler.
	Close() error
}

// StatChannel is an optional interface exposing channel statistics.
type StatChannel interface {
	Channel

	// Stats returns backend-specific counters for the channel.
	Stats() map[string]int64
}

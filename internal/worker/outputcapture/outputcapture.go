// Package outputcapture redirects a running execution's text output into
// an ordered channel of tagged chunks, mirroring
// worker/core/output_capture.py's StreamCapture/OutputCapture pair: text
// goes into the capture queue, and Image/Result chunks can be injected
// directly. Captured text is not copied to the process's own stdout or
// stderr; only its byte count is logged at debug level.
package outputcapture

import (
	"log/slog"
	"sync"

	"github.com/arndt-labs/codesandbox/protocol"
)

// Capture collects OutputChunks emitted by one execution. It is not safe
// for concurrent use by multiple executions — the Worker runs exactly one
// execution at a time, per the interpreter's single-threaded contract.
//
// The backing queue is a plain growable slice, not a buffered channel:
// output volume is unbounded by the design, and a fixed-size channel
// would force a choice between blocking the interpreter or dropping a
// chunk — possibly the terminal Result chunk — under pathological
// output. A background pump goroutine drains the slice into Chunks, so
// enqueue never blocks and never drops.
type Capture struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []protocol.OutputChunk
	closed bool

	out    chan protocol.OutputChunk
	logger *slog.Logger
}

// New returns a Capture with an unbounded backing queue and starts its
// pump goroutine.
func New(logger *slog.Logger) *Capture {
	c := &Capture{
		out:    make(chan protocol.OutputChunk),
		logger: logger,
	}
	c.cond = sync.NewCond(&c.mu)
	go c.pump()
	return c
}

// Text enqueues a text chunk and logs its byte count (not its text) at
// debug level.
func (c *Capture) Text(s string) {
	if s == "" {
		return
	}
	c.logger.Debug("stdout", "bytes", len(s))
	c.enqueue(protocol.OutputChunk{Kind: protocol.OutputText, Content: s})
}

// Error enqueues an error-output chunk.
func (c *Capture) Error(s string) {
	if s == "" {
		return
	}
	c.logger.Debug("stderr", "bytes", len(s))
	c.enqueue(protocol.OutputChunk{Kind: protocol.OutputError, Content: s})
}

// Image enqueues a base64-encoded image chunk.
func (c *Capture) Image(base64Data string) {
	c.enqueue(protocol.OutputChunk{Kind: protocol.OutputImage, Content: base64Data})
}

// Result enqueues the terminal result chunk. Callers must call this
// exactly once, last.
func (c *Capture) Result(resultJSON string) {
	c.enqueue(protocol.OutputChunk{Kind: protocol.OutputResult, Content: resultJSON})
}

func (c *Capture) enqueue(chunk protocol.OutputChunk) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, chunk)
	c.cond.Signal()
	c.mu.Unlock()
}

// pump drains buf into out in FIFO order until Close has been called and
// the buffer has fully emptied, guaranteeing a Result chunk enqueued
// before Close is always delivered before out closes.
func (c *Capture) pump() {
	for {
		c.mu.Lock()
		for len(c.buf) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.buf) == 0 {
			c.mu.Unlock()
			close(c.out)
			return
		}
		chunk := c.buf[0]
		c.buf = c.buf[1:]
		c.mu.Unlock()

		c.out <- chunk
	}
}

// Close marks the capture finished; callers must have stopped enqueueing
// before calling this. Chunks already queued are still delivered before
// Chunks' channel closes.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cond.Signal()
}

// Chunks returns the receive side of the channel for the HTTP handler to
// drain as chunks arrive.
func (c *Capture) Chunks() <-chan protocol.OutputChunk {
	return c.out
}

package llm

import (
	"io"
	"sync"
	"sync/atomic"
)

// ChunkStream is a lazy, pull-based sequence of StreamChunks. It is finite,
// single-consumer and not restartable. Recv returns io.EOF after the last
// chunk; a transport failure surfaces as exactly one terminal error.
type ChunkStream interface {
	Recv() (StreamChunk, error)
	Close() error
}

// parseAction tells the stream loop what to do with one decoded unit.
type parseAction int

const (
	emitChunk parseAction = iota
	skipUnit              // malformed or non-content unit; keep draining
	endStream             // protocol-level terminator ([DONE], message_stop)
)

// parseFunc turns one complete framing unit (a line or an event block) into
// a chunk. Unparseable units are skipped, never fatal.
type parseFunc func(data []byte) (StreamChunk, parseAction)

// httpStream adapts an HTTP response body to a ChunkStream using a framing
// decoder and a protocol-specific parser. The cancel flag, when present, is
// observed at every Recv so cancellation lands on the next chunk boundary.
type httpStream struct {
	provider string
	body     io.Closer
	next     func() ([]byte, error)
	parse    parseFunc

	cancelled *atomic.Bool // nil when the adapter cannot cancel
	release   func()       // unregisters the cancel flag; may be nil

	done   bool
	closed bool
}

func newHTTPStream(provider string, body io.Closer, next func() ([]byte, error), parse parseFunc) *httpStream {
	return &httpStream{provider: provider, body: body, next: next, parse: parse}
}

func (s *httpStream) withCancel(flag *atomic.Bool, release func()) *httpStream {
	s.cancelled = flag
	s.release = release
	return s
}

func (s *httpStream) Recv() (StreamChunk, error) {
	if s.closed {
		return StreamChunk{}, ErrStreamClosed
	}
	if s.done {
		return StreamChunk{}, io.EOF
	}

	for {
		if s.cancelled != nil && s.cancelled.Load() {
			s.finish()
			return StreamChunk{}, cancelledError(s.provider)
		}

		data, err := s.next()
		if err != nil {
			s.finish()
			if err == io.EOF {
				return StreamChunk{}, io.EOF
			}
			return StreamChunk{}, networkError(s.provider, err)
		}

		chunk, action := s.parse(data)
		switch action {
		case emitChunk:
			return chunk, nil
		case endStream:
			s.finish()
			return StreamChunk{}, io.EOF
		default:
			// skipUnit: keep draining the buffer.
		}
	}
}

func (s *httpStream) finish() {
	s.done = true
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

func (s *httpStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.finish()
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

// sliceStream serves pre-computed chunks. Used by the mock adapter.
type sliceStream struct {
	chunks []StreamChunk
	pos    int
	closed bool
}

func newSliceStream(chunks []StreamChunk) *sliceStream {
	return &sliceStream{chunks: chunks}
}

func (s *sliceStream) Recv() (StreamChunk, error) {
	if s.closed {
		return StreamChunk{}, ErrStreamClosed
	}
	if s.pos >= len(s.chunks) {
		return StreamChunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// cancelFlags tracks per-request cancellation flags for cancel-capable
// adapters. A stream registers its request id when it starts and
// unregisters when it terminates.
type cancelFlags struct {
	mu    sync.Mutex
	flags map[string]*atomic.Bool
}

func newCancelFlags() *cancelFlags {
	return &cancelFlags{flags: make(map[string]*atomic.Bool)}
}

// register returns the flag for requestID plus a release func. An empty id
// yields a private flag that Cancel can never reach.
func (c *cancelFlags) register(requestID string) (*atomic.Bool, func()) {
	flag := &atomic.Bool{}
	if requestID == "" {
		return flag, func() {}
	}
	c.mu.Lock()
	c.flags[requestID] = flag
	c.mu.Unlock()
	return flag, func() {
		c.mu.Lock()
		delete(c.flags, requestID)
		c.mu.Unlock()
	}
}

// cancel flips the flag for requestID if a stream registered it.
func (c *cancelFlags) cancel(requestID string) {
	c.mu.Lock()
	flag := c.flags[requestID]
	c.mu.Unlock()
	if flag != nil {
		flag.Store(true)
	}
}

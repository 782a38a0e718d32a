package main

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// chanSink is the I/O-owned half of state.Sink: an unbounded FIFO
// queue drained by one dedicated writer goroutine per connection.
// Grounded on horgh-catbox's Client.WriteChan/writeLoop split
// (ircd.go), generalized from a fixed-capacity channel to the
// never-blocks, always-growing queue internal/state.Sink requires
// ("Send must never block"). Backed by a mutex-guarded slice rather
// than a buffered channel plus overflow goroutines: a per-line
// overflow goroutine can race another and deliver out of order, which
// would violate the per-recipient FIFO delivery guarantee.
type chanSink struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool
}

func newChanSink() *chanSink {
	s := &chanSink{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Send implements state.Sink. It never blocks: it appends to the tail
// of the queue under a brief lock and wakes the writer goroutine.
func (s *chanSink) Send(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, line)
	s.cond.Signal()
}

// close stops accepting further lines; lines already queued are still
// handed out by next(). Safe to call once; wakes a blocked next() so
// the writer can exit.
func (s *chanSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Signal()
}

// next blocks until a line is available or the sink is closed with
// nothing left queued, in which case ok is false.
func (s *chanSink) next() (line string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return "", false
	}
	line, s.queue = s.queue[0], s.queue[1:]
	return line, true
}

// runWriter drains lines onto c, in the order Send queued them, until
// the sink is closed and drained or a write fails, then closes the
// connection. Grounded on horgh-catbox's writeLoop (ircd.go): it is
// the writer's job to close the socket, once every buffered line has
// been flushed.
func runWriter(c *conn, sink *chanSink, log *logrus.Entry) {
	for {
		line, ok := sink.next()
		if !ok {
			_ = c.Close()
			return
		}
		if err := c.writeLine(line); err != nil {
			log.WithError(err).Debug("write failed")
			_ = c.Close()
			return
		}
	}
}

package session

import (
	"io"
	"log/slog"
	"time"
)

// readResult is one outcome of a blocking Read on the SSH channel.
type readResult struct {
	n   int
	buf []byte
	err error
}

// pump is the single reader of the SSH channel's output side. ssh.Channel
// has no native read deadline, so a detached goroutine performs the
// blocking reads and reports results over a channel; the pump loop itself
// observes the 500ms deadline (as a cancellation checkpoint) and ctx.Done
// via select.
func (s *Session) pump() {
	defer s.wg.Done()

	reads := make(chan readResult, 1)
	go s.readLoop(reads)

	for {
		select {
		case <-s.ctx.Done():
			return

		case res := <-reads:
			if res.err != nil {
				if res.err != io.EOF {
					slog.Debug("ssh pump read error", "client_id", s.ClientID, "error", res.err)
				}
				s.emitter.EmitDisconnected("SSH session ended")
				// Shutdown cancels the watcher and closes the channel; run it
				// on its own goroutine since it waits on this pump's own
				// wg.Done(), which only fires after this function returns.
				go s.Shutdown()
				return
			}
			if res.n == 0 {
				continue
			}
			s.handleOutput(res.buf[:res.n])

		case <-time.After(ReadDeadline):
			// Cancellation checkpoint; loop back around to re-check ctx.Done.
		}
	}
}

// readLoop performs the actual blocking reads against the SSH channel,
// one at a time, handing each result to results.
func (s *Session) readLoop(results chan<- readResult) {
	for {
		buf := make([]byte, ReadChunk)
		n, err := s.channel.Read(buf)
		select {
		case results <- readResult{n: n, buf: buf, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleOutput processes one non-empty read: it emits an output frame,
// refreshes last_output_time, and (if watching) appends to the watch
// buffer.
func (s *Session) handleOutput(data []byte) {
	s.emitter.EmitOutput(data)

	s.mu.Lock()
	s.lastOutput = time.Now()
	watching := s.watching
	s.mu.Unlock()

	if watching {
		s.buffer.Write(data)
	}
}

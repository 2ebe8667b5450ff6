package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// outboundQueueSize bounds how far the writer goroutine may lag behind
// producers before a Send call blocks. Unlike the teacher's analysis feed,
// output frames must never be dropped, so a full queue applies
// backpressure to the caller instead of evicting the oldest entry.
const outboundQueueSize = 256

// outboundWriter is the single writer of a gateway connection's websocket,
// serialising every Send call onto one goroutine so frame ordering (in
// particular output-before-command_finished) is preserved.
type outboundWriter struct {
	conn *websocket.Conn

	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientID string
}

func newOutboundWriter(conn *websocket.Conn, clientID string) *outboundWriter {
	ctx, cancel := context.WithCancel(context.Background())
	w := &outboundWriter{
		conn:     conn,
		queue:    make(chan []byte, outboundQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		clientID: clientID,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Send enqueues v for delivery, blocking if the queue is full (backpressure,
// not drop) until space frees up or the writer is closed.
func (w *outboundWriter) Send(v outboundMessage) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal outbound frame", "client_id", w.clientID, "error", err)
		return
	}
	select {
	case w.queue <- data:
	case <-w.ctx.Done():
	}
}

func (w *outboundWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case data := <-w.queue:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := w.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("outbound write failed", "client_id", w.clientID, "error", err)
				// Cancel so any Send blocked on a full queue (backpressure)
				// unblocks immediately instead of waiting for the external
				// Close() that only arrives once the session finishes
				// tearing down.
				w.cancel()
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// Close stops the writer goroutine. Queued frames that have not yet been
// written are discarded; callers must not call Send after Close.
func (w *outboundWriter) Close() {
	w.cancel()
	w.wg.Wait()
}

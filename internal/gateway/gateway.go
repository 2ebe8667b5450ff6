// Package gateway implements the browser-facing duplex: it authenticates
// the handshake, dials the SSH backend, installs a session into the pool,
// and dispatches inbound frames to the session core while serialising
// outbound frames back to the browser.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/sshgw/internal/auth"
	"github.com/ashureev/sshgw/internal/heuristics"
	"github.com/ashureev/sshgw/internal/pool"
	"github.com/ashureev/sshgw/internal/session"
	"github.com/ashureev/sshgw/internal/sshdial"
	"github.com/ashureev/sshgw/internal/store"
)

// closeUnauthorized is the websocket close code used when the handshake
// token fails verification (§4.5).
const closeUnauthorized websocket.StatusCode = 4001

// Handler serves the terminal duplex endpoint. One Handler is shared
// across all connections; per-connection state lives in conn.
type Handler struct {
	Connections store.ConnectionStore
	Dialer      *sshdial.Dialer
	Pool        *pool.Pool
	Audit       store.AuditStore
	Verifier    auth.TokenVerifier

	// AllowedOrigins mirrors the HTTP CORS allow-list; "*" accepts any
	// origin for the websocket upgrade.
	AllowedOrigins []string
}

// conn binds one browser duplex to its session core, for the lifetime of
// a single ws connection.
type conn struct {
	h        *Handler
	ws       *websocket.Conn
	out      *outboundWriter
	identity auth.Identity
	clientID string

	sess *session.Session
}

// ServeHTTP upgrades the request to a websocket, verifies the handshake
// token, and runs the message loop until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	token := r.URL.Query().Get("token")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	id, err := h.Verifier.VerifyToken(token)
	if err != nil {
		slog.Warn("websocket handshake rejected", "client_id", clientID, "error", err)
		_ = ws.Close(closeUnauthorized, "Unauthorized")
		return
	}

	c := &conn{h: h, ws: ws, identity: id, clientID: clientID}
	c.out = newOutboundWriter(ws, clientID)
	defer c.out.Close()
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	c.out.Send(outboundMessage{Type: outboundStatus, Content: "ready"})

	c.messageLoop(r.Context())

	if c.sess != nil {
		h.teardownSession(c)
	}
}

func (h *Handler) originPatterns() []string {
	if len(h.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return h.AllowedOrigins
}

// wsReadResult is one outcome of a blocking Read on the browser duplex.
type wsReadResult struct {
	data []byte
	err  error
}

// messageLoop reads inbound frames until the client disconnects, the
// context is cancelled, a "disconnect" frame is received, or the
// installed session ends on its own (SSH EOF, §4.4). Reads run on a
// detached goroutine, mirroring the session pump's own read pattern, so
// the loop can also select on the session's Done channel.
func (c *conn) messageLoop(ctx context.Context) {
	reads := make(chan wsReadResult, 1)
	go func() {
		for {
			_, data, err := c.ws.Read(ctx)
			select {
			case reads <- wsReadResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var sessDone <-chan struct{}
		if c.sess != nil {
			sessDone = c.sess.Done()
		}

		select {
		case <-ctx.Done():
			return

		case <-sessDone:
			slog.Debug("session ended, closing duplex", "client_id", c.clientID)
			return

		case res := <-reads:
			if res.err != nil {
				if websocket.CloseStatus(res.err) == -1 {
					slog.Debug("websocket read error", "client_id", c.clientID, "error", res.err)
				}
				return
			}

			var msg inboundMessage
			if err := json.Unmarshal(res.data, &msg); err != nil {
				c.out.Send(outboundMessage{Type: outboundError, Content: "malformed message"})
				continue
			}

			if done := c.dispatch(ctx, msg); done {
				return
			}
		}
	}
}

// dispatch handles one inbound frame. It returns true when the loop
// should stop reading further frames.
func (c *conn) dispatch(ctx context.Context, msg inboundMessage) bool {
	switch msg.Type {
	case inboundPing:
		ts := msg.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		c.out.Send(outboundMessage{Type: outboundPong, Timestamp: ts})

	case inboundConnect:
		c.handleConnect(ctx, msg.ConnectionID)

	case inboundData, inboundInput:
		if c.sess != nil {
			c.sess.Feed([]byte(msg.Data))
		}

	case inboundResize:
		if c.sess != nil {
			c.sess.Resize(msg.Cols, msg.Rows)
		}

	case inboundWatch:
		if c.sess != nil {
			c.sess.WatchBegin()
		}

	case inboundStopWatch:
		if c.sess != nil {
			c.sess.WatchEnd()
		}

	case inboundDisconnect:
		return true

	default:
		slog.Debug("ignoring unknown message type", "client_id", c.clientID, "type", msg.Type)
	}
	return false
}

// handleConnect resolves the credential record, dials SSH, opens the audit
// row, starts the session core, and installs it into the pool.
func (c *conn) handleConnect(ctx context.Context, connectionID string) {
	if c.sess != nil {
		c.out.Send(outboundMessage{Type: outboundError, Content: "already connected"})
		return
	}

	c.out.Send(outboundMessage{Type: outboundStatus, Content: "querying config"})

	cred, err := c.h.Connections.LoadConnection(ctx, c.identity.UserID, connectionID)
	if err != nil {
		c.out.Send(outboundMessage{Type: outboundError, Content: "connection not found"})
		return
	}

	c.out.Send(outboundMessage{Type: outboundStatus, Content: fmt.Sprintf("connecting to %s:%d", cred.Host, cred.Port)})
	c.out.Send(outboundMessage{Type: outboundStatus, Content: "establishing SSH"})

	channel, err := c.h.Dialer.Dial(cred)
	if err != nil {
		c.out.Send(outboundMessage{Type: outboundError, Content: err.Error()})
		return
	}

	c.out.Send(outboundMessage{Type: outboundStatus, Content: "creating PTY"})

	sess := session.New(c.clientID, c.identity.UserID, connectionID, cred.Host, cred.Username, channel, c)
	c.sess = sess

	start := time.Now()
	logID, err := c.h.Audit.OpenSessionLog(ctx, c.identity.UserID, connectionID, cred.Host, cred.Username, start)
	if err != nil {
		slog.Warn("open session log failed, continuing without audit row", "client_id", c.clientID, "error", err)
		c.out.Send(outboundMessage{Type: outboundError, Content: "audit log unavailable; session continues without an audit record"})
	} else {
		sess.SetSessionLogID(logID)
	}

	c.h.Pool.Add(c.clientID, sess)
	sess.Run()

	c.out.Send(outboundMessage{Type: outboundConnected, Content: fmt.Sprintf("connected to %s", cred.Host)})
}

// teardownSession, if the session is still in the pool, removes it, writes
// the audit row's close fields, and tears it down. A session no longer in
// the pool (evicted or drained) is left as it is.
func (h *Handler) teardownSession(c *conn) {
	if entry, ok := h.Pool.Remove(c.clientID); ok {
		if s, ok := entry.(*session.Session); ok {
			h.closeAudit(s)
		}
		entry.Teardown()
	}
}

func (h *Handler) closeAudit(s *session.Session) {
	logID, ok := s.SessionLogID()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Audit.CloseSessionLog(ctx, logID, time.Now(), s.CommandLog()); err != nil {
		slog.Warn("close session log failed", "session_log_id", logID, "error", err)
	}
}

// EmitOutput implements session.Emitter.
func (c *conn) EmitOutput(data []byte) {
	c.out.Send(outboundMessage{Type: outboundOutput, Data: string(data)})
}

// EmitInteractiveDetected implements session.Emitter.
func (c *conn) EmitInteractiveDetected(state heuristics.InteractiveState, output string, hint heuristics.Hint) {
	c.out.Send(outboundMessage{
		Type:            outboundInteractiveDetected,
		InteractiveType: string(state),
		Output:          output,
		Hint:            &outboundHint{Message: hint.Message, Actions: hintActionsToSlice(hint.Actions)},
	})
}

// EmitCommandFinished implements session.Emitter.
func (c *conn) EmitCommandFinished(output, detection string) {
	c.out.Send(outboundMessage{Type: outboundCommandFinished, Output: output, Detection: detection})
}

// EmitDisconnected implements session.Emitter.
func (c *conn) EmitDisconnected(content string) {
	c.out.Send(outboundMessage{Type: outboundDisconnected, Content: content})
}

func hintActionsToSlice(actions []heuristics.HintAction) []outboundHintAction {
	if len(actions) == 0 {
		return nil
	}
	out := make([]outboundHintAction, len(actions))
	for i, a := range actions {
		out[i] = outboundHintAction{Label: a.Label, Data: a.Data}
	}
	return out
}

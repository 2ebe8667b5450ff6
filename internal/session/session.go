// Package session implements the per-client terminal state machine: it
// owns an SSH channel, pumps bytes between it and the gateway, runs the
// command watcher, and coordinates shutdown.
package session

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/sshgw/internal/domain"
	"github.com/ashureev/sshgw/internal/heuristics"
)

// Channel is the duplex PTY stream a Session pumps bytes over.
// *sshdial.Channel satisfies this.
type Channel interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	WindowChange(rows, cols int) error
	Close() error
}

// Emitter receives the structured outbound events a Session produces.
// The gateway implements this, serialising sends to the browser duplex.
type Emitter interface {
	EmitOutput(data []byte)
	EmitInteractiveDetected(state heuristics.InteractiveState, output string, hint heuristics.Hint)
	EmitCommandFinished(output string, detection string)
	EmitDisconnected(content string)
}

// Detection values for command_finished frames.
const (
	DetectionPrompt       = "prompt"
	DetectionIdleTimeout  = "idle_timeout"
	DetectionTotalTimeout = "total_timeout"
	DetectionEmptyTimeout = "empty_timeout"
)

// Timing/capacity constants from §4.4.
const (
	PromptIdle      = 2 * time.Second
	InteractiveIdle = 3 * time.Second
	ForceIdle       = 30 * time.Second
	ForceTotal      = 300 * time.Second
	PollInterval    = 900 * time.Millisecond
	WatchCap        = 50000
	ReadChunk       = 4096
	ReadDeadline    = 500 * time.Millisecond
	maxCommandLog   = 100
)

// Session is the central per-client entity described in §3/§4.4.
type Session struct {
	ClientID     string
	UserID       string
	ConnectionID string
	Host         string
	Username     string

	channel Channel
	emitter Emitter

	promptPattern *regexp.Regexp

	mu                  sync.Mutex
	watching            bool
	buffer              *watchBuffer
	watchStart          time.Time
	lastOutput          time.Time
	interactiveState    heuristics.InteractiveState
	interactiveNotified bool
	commandLog          []domain.CommandEntry
	pendingCommand      strings.Builder

	sessionLogID   int64
	hasSessionLog  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
	done         chan struct{}
}

// New constructs a Session that pumps bytes over channel and emits
// structured events to emitter. The watcher and pump are started by Run.
func New(clientID, userID, connectionID, host, username string, channel Channel, emitter Emitter) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ClientID:      clientID,
		UserID:        userID,
		ConnectionID:  connectionID,
		Host:          host,
		Username:      username,
		channel:       channel,
		emitter:       emitter,
		promptPattern: heuristics.BuildPromptPattern(username),
		buffer:        newWatchBuffer(WatchCap),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// SetSessionLogID records the audit row id opened for this session, if
// the audit collaborator succeeded at creation time.
func (s *Session) SetSessionLogID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLogID = id
	s.hasSessionLog = true
}

// SessionLogID returns the audit row id and whether one was opened.
func (s *Session) SessionLogID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLogID, s.hasSessionLog
}

// Run starts the pump and watcher goroutines. It does not block.
func (s *Session) Run() {
	s.wg.Add(2)
	go s.pump()
	go s.watcherLoop()
}

// Feed forwards raw bytes to the SSH input stream.
func (s *Session) Feed(data []byte) {
	if _, err := s.channel.Write(data); err != nil {
		slog.Warn("ssh input write failed", "client_id", s.ClientID, "error", err)
	}

	s.mu.Lock()
	if bytes.ContainsAny(data, "\r\n") {
		s.pendingCommand.Write(data)
		cmd := strings.TrimSpace(s.pendingCommand.String())
		s.pendingCommand.Reset()
		if cmd != "" {
			s.appendCommandLocked(cmd)
		}
	} else {
		s.pendingCommand.Write(data)
	}

	if s.watching {
		s.interactiveNotified = false
		s.interactiveState = heuristics.StateNone
		s.lastOutput = time.Now()
	}
	s.mu.Unlock()
}

func (s *Session) appendCommandLocked(cmd string) {
	s.commandLog = append(s.commandLog, domain.CommandEntry{Command: cmd, Timestamp: time.Now()})
	if len(s.commandLog) > maxCommandLog {
		s.commandLog = s.commandLog[len(s.commandLog)-maxCommandLog:]
	}
}

// WatchBegin starts a watch window.
func (s *Session) WatchBegin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watching = true
	s.buffer.Reset()
	now := time.Now()
	s.watchStart = now
	s.lastOutput = now
	s.interactiveState = heuristics.StateNone
	s.interactiveNotified = false
}

// WatchEnd ends the current watch window without emitting an event.
func (s *Session) WatchEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watching = false
	s.buffer.Reset()
	s.interactiveState = heuristics.StateNone
}

// Resize forwards a terminal resize to the PTY. Errors are non-fatal.
func (s *Session) Resize(cols, rows int) {
	if err := s.channel.WindowChange(rows, cols); err != nil {
		slog.Debug("pty resize failed", "client_id", s.ClientID, "error", err)
	}
}

// CommandLog returns a copy of the command log, capped at the most recent
// 100 entries, for the audit close-write.
func (s *Session) CommandLog() []domain.CommandEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CommandEntry, len(s.commandLog))
	copy(out, s.commandLog)
	return out
}

// Shutdown cancels the pump and watcher, awaits their termination, and
// closes the SSH channel. It is idempotent and safe to call from the pump
// itself (on SSH EOF) as well as from the gateway (on disconnect or pool
// eviction).
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if err := s.channel.Close(); err != nil {
			slog.Debug("ssh channel close error", "client_id", s.ClientID, "error", err)
		}
		close(s.done)
	})
}

// Done returns a channel closed once Shutdown has fully run, regardless of
// what triggered it. The gateway selects on this alongside the browser
// duplex read so an SSH-side EOF (§4.4) ends the message loop and drives
// pool removal / audit close the same as an explicit disconnect.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Teardown implements pool.Teardown: eviction from the pool shuts the
// session down the same way an explicit disconnect does, except the
// audit row's end_time is left unwritten (see §4.2).
func (s *Session) Teardown() {
	s.Shutdown()
}

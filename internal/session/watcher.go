package session

import (
	"strings"
	"time"

	"github.com/ashureev/sshgw/internal/heuristics"
)

// watcherLoop polls at ~1Hz and applies the four ordered completion rules
// from §4.4 while a watch window is active.
func (s *Session) watcherLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.inspect()
		}
	}
}

// inspect applies rules 1-4 in order and stops at the first that fires.
func (s *Session) inspect() {
	s.mu.Lock()
	if !s.watching {
		s.mu.Unlock()
		return
	}
	raw := s.buffer.Bytes()
	now := time.Now()
	idle := now.Sub(s.lastOutput)
	total := now.Sub(s.watchStart)
	s.mu.Unlock()

	if len(raw) == 0 {
		// Rule 4: empty buffer, idle >= 30s.
		if idle >= ForceIdle {
			s.finishWatch("", DetectionEmptyTimeout)
		}
		return
	}

	clean := heuristics.StripANSI(string(raw))

	// Rule 1: idle >= 2s, prompt matches the tail, and nothing interactive
	// is going on.
	if idle >= PromptIdle {
		tail := lastNLines(clean, 5)
		if s.promptPattern.MatchString(tail) && heuristics.DetectInteractiveState(clean) == heuristics.StateNone {
			s.finishWatch(clean, DetectionPrompt)
			return
		}
	}

	// Rule 2: idle >= 3s and the shell looks blocked on something
	// interactive. Re-entrant only on state changes.
	if idle >= InteractiveIdle {
		if state := heuristics.DetectInteractiveState(clean); state != heuristics.StateNone {
			s.maybeNotifyInteractive(state, clean)
			return
		}
	}

	// Rule 3: force caps with non-empty buffer.
	if idle >= ForceIdle || total >= ForceTotal {
		detection := DetectionIdleTimeout
		if total >= ForceTotal {
			detection = DetectionTotalTimeout
		}
		s.finishWatch(clean, detection)
	}
}

// maybeNotifyInteractive emits interactive_detected only when the
// notification flag is unset or the detected state changed.
func (s *Session) maybeNotifyInteractive(state heuristics.InteractiveState, clean string) {
	s.mu.Lock()
	shouldNotify := !s.interactiveNotified || s.interactiveState != state
	s.interactiveState = state
	s.interactiveNotified = true
	s.mu.Unlock()

	if shouldNotify {
		s.emitter.EmitInteractiveDetected(state, clean, heuristics.HintFor(state))
	}
}

// finishWatch clears the watch window and emits command_finished.
func (s *Session) finishWatch(output string, detection string) {
	s.mu.Lock()
	s.watching = false
	s.buffer.Reset()
	s.interactiveState = heuristics.StateNone
	s.mu.Unlock()

	s.emitter.EmitCommandFinished(output, detection)
}

// lastNLines returns the last n lines of text, joined by newlines, to
// validate prompt matches against recent output only.
func lastNLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

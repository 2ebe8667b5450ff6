package heuristics

import (
	"regexp"
	"strings"
)

// InteractiveState describes what an interactive shell currently appears to
// be blocked on.
type InteractiveState string

const (
	StateNone        InteractiveState = "none"
	StatePager       InteractiveState = "pager"
	StateConfirm     InteractiveState = "confirm"
	StateInteractive InteractiveState = "interactive"
)

// BuildPromptPattern compiles a regex that matches a shell prompt ending a
// line for the given username: "user@host:path$#", "[user@host]$#", or
// "root@host:path#". It does not handle custom PS1 — this is a known
// limitation of tail-of-output heuristics.
func BuildPromptPattern(username string) *regexp.Regexp {
	u := regexp.QuoteMeta(username)
	pattern := `(?m)(` +
		u + `@[\w.-]+:[^\n]*[$#]\s*$` + `|` +
		`\[` + u + `@[\w.-]+\][$#]\s*$` + `|` +
		`root@[\w.-]+:[^\n]*#\s*$` +
		`)`
	return regexp.MustCompile(pattern)
}

var (
	pagerLineRange  = regexp.MustCompile(`(?i)lines?\s+\d+\s*-\s*\d+`)
	pagerEnd        = regexp.MustCompile(`\(END\)`)
	pagerMore       = regexp.MustCompile(`--More--`)
	pagerByte       = regexp.MustCompile(`(?i)byte\s+\d+`)
	pagerBareColon  = regexp.MustCompile(`^\s*:\s*$`)
	confirmYN       = regexp.MustCompile(`\[[Yy]/[Nn]\]`)
	confirmYesNo    = regexp.MustCompile(`(?i)\(yes/no[^)]*\)\s*[:?]?\s*$`)
	confirmPassword = regexp.MustCompile(`(?i)password\s*:\s*$`)
	confirmPassphr  = regexp.MustCompile(`(?i)passphrase\s*:\s*$`)
	confirmContinue = regexp.MustCompile(`(?i)continue\?\s*$`)
	confirmProceed  = regexp.MustCompile(`(?i)proceed\?\s*$`)
	confirmDoWant   = regexp.MustCompile(`(?i)do you want to continue`)
	replPython      = regexp.MustCompile(`>>>\s*$`)
	replPythonCont  = regexp.MustCompile(`\.\.\.\s*$`)
	replMysql       = regexp.MustCompile(`mysql>\s*$`)
	replPostgres    = regexp.MustCompile(`postgres=[#>]\s*$`)
	replRedis       = regexp.MustCompile(`redis(\[\d+\])?>\s*$`)
	replGdb         = regexp.MustCompile(`\(gdb\)\s*$`)
	replIrb         = regexp.MustCompile(`irb\(main\):\d+:\d+>\s*$`)
	replNode        = regexp.MustCompile(`node>\s*$`)
)

// DetectInteractiveState inspects the trimmed tail of clean (ANSI-stripped)
// text and reports what the shell looks blocked on. Precedence is
// pager -> confirm -> interactive; the first match wins.
func DetectInteractiveState(cleanText string) InteractiveState {
	lastLine, lastThree := tail(cleanText)

	if pagerLineRange.MatchString(lastThree) || pagerEnd.MatchString(lastThree) ||
		pagerMore.MatchString(lastThree) || pagerByte.MatchString(lastThree) ||
		pagerBareColon.MatchString(lastLine) {
		return StatePager
	}

	if confirmYN.MatchString(lastThree) || confirmYesNo.MatchString(lastThree) ||
		confirmPassword.MatchString(lastThree) || confirmPassphr.MatchString(lastThree) ||
		confirmContinue.MatchString(lastThree) || confirmProceed.MatchString(lastThree) ||
		confirmDoWant.MatchString(lastThree) {
		return StateConfirm
	}

	if replPython.MatchString(lastLine) || replPythonCont.MatchString(lastLine) ||
		replMysql.MatchString(lastLine) || replPostgres.MatchString(lastLine) ||
		replRedis.MatchString(lastLine) || replGdb.MatchString(lastLine) ||
		replIrb.MatchString(lastLine) || replNode.MatchString(lastLine) {
		return StateInteractive
	}

	return StateNone
}

// tail drops trailing blank lines from text, then returns its last line and
// its last three lines joined by newlines. Blank lines before the last line
// are kept and count toward the three.
func tail(text string) (lastLine string, lastThree string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	// drop trailing blank lines
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return "", ""
	}
	lastLine = lines[len(lines)-1]
	start := len(lines) - 3
	if start < 0 {
		start = 0
	}
	lastThree = strings.Join(lines[start:], "\n")
	return lastLine, lastThree
}

// HintAction is a single quick-action button offered to the browser.
type HintAction struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Hint is the UI hint surfaced with an interactive_detected event.
type Hint struct {
	Message string       `json:"message"`
	Actions []HintAction `json:"actions"`
}

// HintFor returns the fixed hint for a given interactive state.
func HintFor(state InteractiveState) Hint {
	switch state {
	case StatePager:
		return Hint{
			Message: "Output is paused in a pager. Send a key to continue or quit.",
			Actions: []HintAction{
				{Label: "Next page", Data: " "},
				{Label: "Go to end", Data: "G"},
				{Label: "Quit", Data: "q"},
			},
		}
	case StateConfirm:
		return Hint{
			Message: "The shell is waiting for a yes/no answer.",
			Actions: []HintAction{
				{Label: "Yes", Data: "Y\r"},
				{Label: "No", Data: "n\r"},
				{Label: "Cancel", Data: "\x03"},
			},
		}
	case StateInteractive:
		return Hint{
			Message: "You're inside an interactive program.",
			Actions: []HintAction{
				{Label: "Exit", Data: "exit\r"},
				{Label: "Ctrl+D", Data: "\x04"},
				{Label: "Ctrl+C", Data: "\x03"},
			},
		}
	default:
		return Hint{Message: "", Actions: nil}
	}
}

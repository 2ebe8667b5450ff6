package heuristics

import "testing"

func TestStripANSI(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"csi color", "\x1b[31mred\x1b[0m", "red"},
		{"cursor move", "a\x1b[2Kb", "ab"},
		{"osc title", "\x1b]0;title\x07rest", "rest"},
		{"charset", "\x1b(Bhello", "hello"},
		{"bare cr", "line1\r\nline2", "line1\nline2"},
		{"keeps lf", "a\nb\n", "a\nb\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := StripANSI(c.in); got != c.want {
				t.Errorf("StripANSI(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestBuildPromptPattern(t *testing.T) {
	re := BuildPromptPattern("alice")
	cases := []struct {
		text  string
		match bool
	}{
		{"alice@host:~$ ", true},
		{"[alice@host]$ ", true},
		{"root@host:/etc# ", true},
		{"bob@host:~$ ", false},
		{"some output\nalice@host:/var/log$", true},
	}
	for _, c := range cases {
		if got := re.MatchString(c.text); got != c.match {
			t.Errorf("MatchString(%q) = %v, want %v", c.text, got, c.match)
		}
	}
}

func TestDetectInteractiveState(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want InteractiveState
	}{
		{"none", "alice@host:~$ ls\nfile1 file2\n", StateNone},
		{"pager end", "some text\n(END)", StatePager},
		{"pager colon", "some text\n:", StatePager},
		{"pager more", "output\n--More--", StatePager},
		{"confirm yn", "Do you want to proceed? [Y/n]", StateConfirm},
		{"confirm password", "Enter password:", StateConfirm},
		{"confirm do you want", "Do you want to continue? [Y/n]", StateConfirm},
		{"repl python", ">>> ", StateInteractive},
		{"repl mysql", "mysql> ", StateInteractive},
		{"repl gdb", "(gdb) ", StateInteractive},
		{"pager wins over confirm", "lines 1-24\npassword:", StatePager},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectInteractiveState(c.in); got != c.want {
				t.Errorf("DetectInteractiveState(%q) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestHintFor(t *testing.T) {
	for _, s := range []InteractiveState{StatePager, StateConfirm, StateInteractive} {
		h := HintFor(s)
		if h.Message == "" {
			t.Errorf("HintFor(%v) has empty message", s)
		}
		if len(h.Actions) == 0 {
			t.Errorf("HintFor(%v) has no actions", s)
		}
	}
	if h := HintFor(StateNone); h.Message != "" || h.Actions != nil {
		t.Errorf("HintFor(none) should be empty, got %+v", h)
	}
}

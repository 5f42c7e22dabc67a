package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

var errAborted = errors.New("aborted by user")

// prompter asks the operator questions on an interactive terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (c *commandContext) prompter() *prompter {
	if c.Prompt == nil {
		c.Prompt = newPrompter(os.Stdin, os.Stderr)
	}
	return c.Prompt
}

func (p *prompter) ask(question string) (string, error) {
	if err := write(p.out, question); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirmation describes a destructive step awaiting operator approval.
type confirmation struct {
	Action  string // "revoke session"
	Target  string // `session "abc"`
	Warning string
	// Preapproved skips the prompt (--yes). Ignored when Phrase is set.
	Preapproved bool
	// Phrase, when set, must be typed back verbatim instead of y/N.
	Phrase string
}

func (p *prompter) confirm(c confirmation) error {
	if c.Preapproved && c.Phrase == "" {
		return nil
	}
	if c.Warning != "" {
		if err := writeln(p.out, c.Warning); err != nil {
			return err
		}
	}
	if c.Target != "" {
		if err := writef(p.out, "About to %s for %s.\n", c.Action, c.Target); err != nil {
			return err
		}
	}

	if c.Phrase != "" {
		answer, err := p.ask(fmt.Sprintf("Type %q to continue: ", c.Phrase))
		if err != nil || answer != c.Phrase {
			return errAborted
		}
		return nil
	}

	answer, err := p.ask("Continue? [y/N]: ")
	if err != nil {
		return errAborted
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return nil
	}
	return errAborted
}

// checkRemoteDB refuses non-local database hosts unless allowed. It reports
// whether the host looked remote so callers can demand a typed confirmation.
func checkRemoteDB(host string, allow bool) (bool, error) {
	if !isLikelyRemoteHost(host) {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf("database host %q does not look local; pass --allow-remote to proceed", host)
	}
	return true, nil
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	switch {
	case h == "", h == "localhost", strings.HasSuffix(h, ".local"), strings.HasSuffix(h, ".localhost"):
		return false
	}
	if ip := net.ParseIP(strings.Trim(h, "[]")); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

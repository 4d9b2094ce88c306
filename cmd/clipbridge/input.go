package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// errNoInput is returned when a command needs content and got neither an
// argument nor piped input.
var errNoInput = errors.New("no input: pass it as an argument or pipe it on stdin")

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readInput returns args[0] when given, otherwise all of stdin. An interactive
// stdin is refused rather than waiting for the user to type EOF.
func readInput(args []string, stdin io.Reader, limit int64) ([]byte, error) {
	if len(args) > 0 {
		return []byte(args[0]), nil
	}
	if isTerminal(stdin) {
		return nil, errNoInput
	}

	data, err := io.ReadAll(io.LimitReader(stdin, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, errNoInput
	}
	return data, nil
}

package console

import (
	"os"

	"github.com/moby/term"
)

// IsTerminal reports whether a user is interacting with us on stdin.
func IsTerminal() bool {
	return term.IsTerminal(os.Stdin.Fd())
}

// GetWidth returns the width of the terminal, probed on stderr because
// stdout might be piped.
//
// Returns 0 outside a terminal.
func GetWidth() (uint16, error) {
	fd := os.Stderr.Fd()
	if term.IsTerminal(fd) {
		ws, err := term.GetWinsize(fd)
		if err != nil {
			return 0, err
		}
		return ws.Width, nil
	}
	return 0, nil
}

package report

import (
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// minTitleWidth keeps titles readable on very narrow terminals.
const minTitleWidth = 20

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TitleWidth bounds maxWidth by the terminal width of f, leaving room for
// the other table columns. Non-terminals keep maxWidth.
func TitleWidth(f *os.File, maxWidth int) int {
	if !IsTerminal(f) {
		return maxWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return maxWidth
	}
	available := max(w-24, minTitleWidth)
	if maxWidth <= 0 || available < maxWidth {
		return available
	}
	return maxWidth
}

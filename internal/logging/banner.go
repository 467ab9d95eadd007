package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	green  = "\033[32m"
	yellow = "\033[33m"
	purple = "\033[35m"
	dim    = "\033[2m"
)

// PrintBanner prints a one-line startup banner naming the run mode,
// version and listen address. Colors are used only when stderr is a TTY.
func PrintBanner(mode, ver, addr string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	modeColor := purple
	switch mode {
	case "hub":
		modeColor = green
	case "wrapper":
		modeColor = yellow
	}

	if color {
		fmt.Fprintf(os.Stderr, "%sagentchattr%s %s%s%s  %sversion%s %s  %saddr%s %s\n\n",
			bold, reset, bold+modeColor, mode, reset, dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "agentchattr %s  version %s  addr %s\n\n", mode, ver, addr)
	}
}

//go:build !darwin && !linux

package ptyterm

// detectDefaultShell returns /bin/sh on unsupported platforms.
func detectDefaultShell() string {
	return "/bin/sh"
}

// Package ptyterm wraps a single PTY-hosted agent process: spawn, input
// injection, resize, a ring-buffer screen snapshot for restart recovery,
// and the activity-hash primitive the wrapper's activity watcher polls
// (spec.md §4.4).
package ptyterm

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

const screenBufferSize = 100 * 1024 // 100KB ring buffer for screen restore

// ScreenBuffer is a thread-safe ring buffer that stores recent PTY output.
type ScreenBuffer struct {
	mu   sync.Mutex
	buf  []byte
	pos  int
	full bool
}

// NewScreenBuffer creates a new screen buffer.
func NewScreenBuffer() *ScreenBuffer {
	return &ScreenBuffer{buf: make([]byte, screenBufferSize)}
}

// Write appends data to the ring buffer.
func (sb *ScreenBuffer) Write(data []byte) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for len(data) > 0 {
		n := copy(sb.buf[sb.pos:], data)
		data = data[n:]
		sb.pos += n
		if sb.pos >= len(sb.buf) {
			sb.pos = 0
			sb.full = true
		}
	}
}

// Snapshot returns a copy of the buffered data in chronological order.
func (sb *ScreenBuffer) Snapshot() []byte {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.full {
		out := make([]byte, sb.pos)
		copy(out, sb.buf[:sb.pos])
		return out
	}

	out := make([]byte, len(sb.buf))
	n := copy(out, sb.buf[sb.pos:])
	copy(out[n:], sb.buf[:sb.pos])
	return out
}

// Hash returns a content hash of the current snapshot, used by the
// activity watcher to detect whether the screen has changed since the
// last poll without comparing full buffers.
func (sb *ScreenBuffer) Hash() [32]byte {
	return sha256.Sum256(sb.Snapshot())
}

// OutputHandler is called for each chunk of output from the PTY.
type OutputHandler func(data []byte)

// Session is the capability surface a wrapper supervisor drives. Terminal
// implements it; alternate platform-specific backends (e.g. a Windows
// ConPTY session) can satisfy it without the supervisor changing.
type Session interface {
	Inject(text string) error
	Resize(cols, rows uint16) error
	ScreenSnapshot() []byte
	ScreenHash() [32]byte
	Alive() bool
	Kill()
	Wait() int
}

// Terminal manages a single PTY session hosting one agent's CLI process.
type Terminal struct {
	id        string
	cmd       *exec.Cmd
	ptmx      *os.File
	outputFn  OutputHandler
	screenBuf *ScreenBuffer
	mu        sync.Mutex
	stopped   bool
	exitCode  int
	exitCh    chan struct{}
}

// Options configures a new Terminal.
type Options struct {
	ID         string
	Command    string
	Args       []string
	WorkingDir string
	Cols       uint16
	Rows       uint16
}

// Start spawns opts.Command (falling back to the platform default shell if
// unset) inside a PTY and begins streaming its output to outputFn.
func Start(opts Options, outputFn OutputHandler) (*Terminal, error) {
	command := opts.Command
	var args []string
	if command == "" {
		command = resolveDefaultShell()
	} else {
		args = opts.Args
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	winSize := &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows}
	if winSize.Cols == 0 {
		winSize.Cols = 80
	}
	if winSize.Rows == 0 {
		winSize.Rows = 24
	}

	ptmx, err := pty.StartWithSize(cmd, winSize)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	screenBuf := NewScreenBuffer()
	wrappedOutput := func(data []byte) {
		screenBuf.Write(data)
		if outputFn != nil {
			outputFn(data)
		}
	}

	t := &Terminal{
		id:        opts.ID,
		cmd:       cmd,
		ptmx:      ptmx,
		outputFn:  wrappedOutput,
		screenBuf: screenBuf,
		exitCh:    make(chan struct{}),
	}

	go t.readOutput()
	go t.waitForExit()

	slog.Info("agent terminal started", "agent", opts.ID, "command", command, "pid", cmd.Process.Pid)

	return t, nil
}

// clearLine, escSeq, and injectPause implement the deterministic injection
// sequence: clear the input line, escape any modal state, pause, send the
// literal prompt, pause again, then return (spec.md §4.4 "Trigger
// watcher").
const (
	clearLine    = "\x15" // Ctrl-U
	escSeq       = "\x1b"
	injectPause  = 150 * time.Millisecond
)

// Inject types text into the terminal as a short wake-up prompt, following
// the fixed clear/escape/pause/type/pause/return sequence.
func (t *Terminal) Inject(text string) error {
	if err := t.SendInput([]byte(clearLine)); err != nil {
		return err
	}
	if err := t.SendInput([]byte(escSeq)); err != nil {
		return err
	}
	time.Sleep(injectPause)
	if err := t.SendInput([]byte(text)); err != nil {
		return err
	}
	time.Sleep(injectPause)
	return t.SendInput([]byte("\r"))
}

// SendInput writes raw data to the PTY.
func (t *Terminal) SendInput(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return fmt.Errorf("terminal is stopped")
	}

	_, err := t.ptmx.Write(data)
	return err
}

// Resize changes the terminal dimensions.
func (t *Terminal) Resize(cols, rows uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return fmt.Errorf("terminal is stopped")
	}

	return pty.Setsize(t.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates the terminal's process without waiting for exit.
func (t *Terminal) Kill() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true

	_ = t.ptmx.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
}

// Wait blocks until the terminal process exits and returns its exit code.
func (t *Terminal) Wait() int {
	<-t.exitCh
	return t.exitCode
}

// Alive reports whether the underlying process has not yet exited.
func (t *Terminal) Alive() bool {
	select {
	case <-t.exitCh:
		return false
	default:
		return true
	}
}

// ID returns the terminal's ID (the agent name).
func (t *Terminal) ID() string {
	return t.id
}

// ScreenSnapshot returns the recent PTY output for screen restore.
func (t *Terminal) ScreenSnapshot() []byte {
	return t.screenBuf.Snapshot()
}

// ScreenHash returns a content hash of the current screen snapshot.
func (t *Terminal) ScreenHash() [32]byte {
	return t.screenBuf.Hash()
}

func (t *Terminal) readOutput() {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.outputFn(data)
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("terminal read error", "terminal_id", t.id, "error", err)
			}
			return
		}
	}
}

func (t *Terminal) waitForExit() {
	err := t.cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			t.exitCode = exitErr.ExitCode()
		} else {
			t.exitCode = -1
		}
	}
	close(t.exitCh)

	slog.Info("agent terminal exited", "terminal_id", t.id, "exit_code", t.exitCode)
}

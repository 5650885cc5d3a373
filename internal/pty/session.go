// Package pty manages pseudo-terminal sessions for pane child processes.
//
// Each pane owns exactly one Session. This package handles PTY creation,
// I/O, resizing, and cleanup; it knows nothing about VT emulation or
// layout — that's internal/term and internal/layout's job. A Session
// delivers raw output to an OnOutput callback supplied at Spawn time, so
// the owning workerpool shard can feed it through query.Filter and
// term.Wrapper without this package importing either.
package pty

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Session encapsulates all state for one pseudo-terminal-backed child
// process.
type Session struct {
	id string

	ptyFile *os.File
	cmd     *exec.Cmd

	rows, cols uint16

	onOutput func([]byte)

	done     chan struct{}
	closeOnce sync.Once
	readerWg sync.WaitGroup

	logger *slog.Logger
}

// New creates a Session with the given id and initial dimensions. id is
// opaque to this package; the owning workerpool shard assigns it.
func New(id string, rows, cols uint16, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:     id,
		rows:   rows,
		cols:   cols,
		done:   make(chan struct{}),
		logger: logger,
	}
}

// SpawnConfig configures the child process a Session hosts.
type SpawnConfig struct {
	// Command is the shell command line to run. If Args is empty, Command
	// is run through the default shell ($SHELL, or /bin/bash when unset) as
	// "<shell> -c <command>"; otherwise Command is the executable and Args its arguments.
	Command string
	Args    []string
	Dir     string
	Env     []string

	// OnOutput is invoked from the reader goroutine with each chunk read
	// from the PTY, in order. It must not block.
	OnOutput func(chunk []byte)
}

// Spawn starts the child process attached to this session's PTY and begins
// the reader loop.
func (s *Session) Spawn(cfg SpawnConfig) error {
	args := cfg.Args
	command := cfg.Command
	if len(args) == 0 && command != "" {
		args = []string{"-c", command}
		command = defaultShell()
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: s.rows, Cols: s.cols})
	if err != nil {
		return fmt.Errorf("pty: spawn %q: %w", cfg.Command, err)
	}

	s.ptyFile = ptmx
	s.cmd = cmd
	s.onOutput = cfg.OnOutput

	s.readerWg.Add(1)
	go s.readerLoop()

	s.logger.Info("pty spawned", "pane", s.id, "command", cfg.Command, "dir", cfg.Dir)
	return nil
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

func (s *Session) readerLoop() {
	defer s.readerWg.Done()

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.ptyFile.Read(buf)
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("pty read error", "pane", s.id, "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		if s.onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.onOutput(chunk)
		}
	}
}

// Write sends input bytes to the child process.
func (s *Session) Write(p []byte) (int, error) {
	if s.ptyFile == nil {
		return 0, nil
	}
	return s.ptyFile.Write(p)
}

// WriteString is a convenience wrapper around Write.
func (s *Session) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Read reads raw PTY output directly, for callers (like internal/attach)
// that want to stream bytes without going through OnOutput.
func (s *Session) Read(p []byte) (int, error) {
	if s.ptyFile == nil {
		return 0, io.EOF
	}
	return s.ptyFile.Read(p)
}

// Resize changes the PTY's dimensions.
func (s *Session) Resize(rows, cols uint16) error {
	s.rows, s.cols = rows, cols
	if s.ptyFile == nil {
		return nil
	}
	return pty.Setsize(s.ptyFile, &pty.Winsize{Rows: rows, Cols: cols})
}

// ResizeSSH adapts Resize to the int-typed dimensions internal/attach's
// PaneSession interface uses.
func (s *Session) ResizeSSH(rows, cols int) error {
	return s.Resize(uint16(rows), uint16(cols))
}

// ID returns this session's pane id.
func (s *Session) ID() string { return s.id }

// Size returns the current dimensions.
func (s *Session) Size() (rows, cols uint16) { return s.rows, s.cols }

// IsSpawned reports whether a child process has been started.
func (s *Session) IsSpawned() bool { return s.ptyFile != nil }

// Kill terminates the child process and waits for the reader loop to exit.
// Safe to call more than once.
func (s *Session) Kill(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			s.logger.Warn("failed to kill pty child", "pane", s.id, "error", err)
		}
		_ = s.cmd.Wait()
	}
	if s.ptyFile != nil {
		s.ptyFile.Close()
	}

	done := make(chan struct{})
	go func() { s.readerWg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

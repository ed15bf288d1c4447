// Package process runs the shell commands that feed sessions.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	sglog "github.com/sourcegraph/log"
)

// Runner runs cmd in dir and returns its stdout.
type Runner interface {
	Output(ctx context.Context, dir, cmd string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir, cmd string) ([]byte, error)

func (f RunnerFunc) Output(ctx context.Context, dir, cmd string) ([]byte, error) {
	return f(ctx, dir, cmd)
}

// CommandError is returned when a command exits unsuccessfully.
type CommandError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("command %q: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("command %q: %v: %s", e.Cmd, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Shell runs commands with "sh -c".
type Shell struct {
	Logger sglog.Logger
}

func (s *Shell) logger() sglog.Logger {
	if s.Logger == nil {
		return sglog.NoOp()
	}
	return s.Logger
}

func (s *Shell) Output(ctx context.Context, dir, cmd string) ([]byte, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir
	c.Stdin = &bytes.Buffer{}

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	c.Stdout = outBuf
	c.Stderr = errBuf

	start := time.Now()
	err := c.Run()
	logger := s.logger().With(sglog.String("cmd", cmd), sglog.String("dir", dir), sglog.Duration("duration", time.Since(start)))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("command failed", sglog.Error(err), sglog.String("stderr", errBuf.String()))
		return nil, &CommandError{Cmd: cmd, Stderr: strings.TrimSpace(errBuf.String()), Err: err}
	}
	logger.Debug("command done", sglog.Int("bytes", outBuf.Len()))
	return outBuf.Bytes(), nil
}

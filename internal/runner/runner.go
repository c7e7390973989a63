// Package runner executes the external programs pylambda drives: pip, python
// and docker buildx.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
)

// PythonEnv overrides the interpreter used for pip and local invocations
const PythonEnv = "PYLAMBDA_PYTHON"

// Python returns the python interpreter to run
func Python() string {
	if p := os.Getenv(PythonEnv); p != "" {
		return p
	}
	return "python3"
}

// Command describes one process invocation
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current process environment
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String returns the command line as typed in a shell
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner runs commands
type Runner interface {
	// Run executes the command, streaming output to the command's writers
	Run(ctx context.Context, cmd Command) error
	// Output executes the command and returns its standard output
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// Exec runs commands with os/exec
type Exec struct {
	log *logger.Logger
}

// New creates an os/exec backed runner
func New(log *logger.Logger) *Exec {
	return &Exec{log: log}
}

func (e *Exec) command(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	return cmd
}

// Run executes the command. Output defaults to the process stdout and the
// logger output.
func (e *Exec) Run(ctx context.Context, c Command) error {
	cmd := e.command(ctx, c)
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = e.log.Writer()
	}

	e.log.Debug().Str("command", c.String()).Str("dir", c.Dir).Msg("Running command")
	if err := cmd.Run(); err != nil {
		return errors.NewExecutionError(c.Name, fmt.Sprintf("%s failed", c.String()), err)
	}
	return nil
}

// Output executes the command and captures stdout. Stderr is included in the
// error when the command fails.
func (e *Exec) Output(ctx context.Context, c Command) ([]byte, error) {
	cmd := e.command(ctx, c)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Debug().Str("command", c.String()).Msg("Capturing command output")
	out, err := cmd.Output()
	if err != nil {
		msg := fmt.Sprintf("%s failed", c.String())
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg += ": " + s
		}
		return nil, errors.NewExecutionError(c.Name, msg, err)
	}
	return out, nil
}

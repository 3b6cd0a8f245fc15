// Package proc launches coder subprocesses and resolves their environment.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
)

// Scanner buffer sizing. Stream-JSON coders emit single lines well past the
// bufio default of 64KiB.
const (
	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 16 * 1024 * 1024
)

// Result carries the accumulated output of a successful subprocess run.
// Line order is preserved within each stream; interleaving between the two
// streams is not defined.
type Result struct {
	Stdout string
	Stderr string
}

// ExitError reports a subprocess that started but exited non-zero. The
// captured output is retained so adapters that convert execution failures
// into failed results can still surface partial output.
type ExitError struct {
	Command []string
	Code    int
	Stdout  string
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %s exited with status %d", shellquote.Join(e.Command...), e.Code)
}

// echo destinations, overridable in tests to keep output quiet.
var (
	echoStdout io.Writer = os.Stdout
	echoStderr io.Writer = os.Stderr
)

// Run launches command with the given concrete environment and drains its
// stdout and stderr concurrently, one goroutine per stream, echoing each
// line to the caller's corresponding stream as it arrives. Both drains are
// joined before Run returns.
//
// A non-zero exit status is returned as *ExitError. No timeout is applied
// here; cancel ctx from an external supervisor to kill a hung child.
func Run(ctx context.Context, command []string, env map[string]string) (*Result, error) {
	if len(command) == 0 {
		return nil, errors.New("command is required")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	if env != nil {
		cmd.Env = EnvSlice(env)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command[0], err)
	}

	var (
		wg          sync.WaitGroup
		stdoutLines []string
		stderrLines []string
		stdoutErr   error
		stderrErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stdoutLines, stdoutErr = drainLines(stdoutPipe, echoStdout)
	}()
	go func() {
		defer wg.Done()
		stderrLines, stderrErr = drainLines(stderrPipe, echoStderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	result := &Result{
		Stdout: strings.Join(stdoutLines, "\n"),
		Stderr: strings.Join(stderrLines, "\n"),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &ExitError{
				Command: command,
				Code:    exitErr.ExitCode(),
				Stdout:  result.Stdout,
				Stderr:  result.Stderr,
			}
		}
		return nil, fmt.Errorf("wait for %s: %w", command[0], waitErr)
	}
	if stdoutErr != nil {
		return nil, fmt.Errorf("drain stdout: %w", stdoutErr)
	}
	if stderrErr != nil {
		return nil, fmt.Errorf("drain stderr: %w", stderrErr)
	}

	return result, nil
}

func drainLines(pipe io.Reader, echo io.Writer) ([]string, error) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBuffer)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(echo, line)
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

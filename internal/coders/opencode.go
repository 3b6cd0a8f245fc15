package coders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	"metacoder/internal/proc"
	"metacoder/internal/workdir"
)

// Opencode runs the opencode CLI. Its output has no machine-readable mode,
// so the raw stdout is the result text verbatim. Tool extensions are not
// accepted.
type Opencode struct {
	Base
}

func (o *Opencode) Name() string { return "opencode" }

func (o *Opencode) IsAvailable() bool {
	_, err := exec.LookPath("opencode")
	return err == nil
}

func (o *Opencode) SupportsExtensions() bool { return false }

func (o *Opencode) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{
		"AGENTS.md": RolePrimaryInstruction,
	}
}

func (o *Opencode) DefaultConfigObjects() ([]ConfigObject, error) {
	if o.Config.HasEnabledExtensions() {
		return nil, extensionsRejected(o.Name())
	}
	return nil, nil
}

// Run invokes opencode. A failed subprocess becomes a failed Output with
// the captured streams preserved.
func (o *Opencode) Run(ctx context.Context, input string) (*Output, error) {
	defaults, err := o.DefaultConfigObjects()
	if err != nil {
		return nil, err
	}
	if err := o.PrepareWorkdir(defaults); err != nil {
		return nil, err
	}

	var out *Output
	runErr := workdir.With(o.Workdir, func() error {
		env := proc.ExpandEnv(o.Env)
		env["HOME"] = "."
		command := []string{"opencode", "run", o.ExpandPrompt(input)}
		if model := o.Params["model"]; model != "" {
			command = append(command, "--model", model)
		}

		fmt.Fprintf(os.Stderr, "running command: %s\n", shellquote.Join(command...))
		start := time.Now()
		result, err := proc.Run(ctx, command, env)
		if err != nil {
			var exitErr *proc.ExitError
			if errors.As(err, &exitErr) {
				out = &Output{
					Stdout:     exitErr.Stdout,
					Stderr:     exitErr.Stderr,
					ResultText: fmt.Sprintf("Error: %s", exitErr),
					Success:    success(false),
				}
				return nil
			}
			return err
		}
		fmt.Fprintf(os.Stderr, "command took %s\n", time.Since(start).Round(time.Millisecond))

		out = &Output{
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
			ResultText: result.Stdout,
			Success:    success(true),
		}
		return nil
	})
	return out, runErr
}

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

// Codex runs the codex CLI in non-interactive JSON mode. It reads task
// instructions from AGENTS.md and does not accept tool extensions; the
// registry rejects configs that declare any. Non-interactive codex needs
// OPENAI_API_KEY in its environment.
type Codex struct {
	Base
}

func (c *Codex) Name() string { return "codex" }

func (c *Codex) IsAvailable() bool {
	_, err := exec.LookPath("codex")
	return err == nil
}

func (c *Codex) SupportsExtensions() bool { return false }

func (c *Codex) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{
		"AGENTS.md": RolePrimaryInstruction,
		".codex":    RoleConfig,
	}
}

func (c *Codex) DefaultConfigObjects() ([]ConfigObject, error) {
	if c.Config.HasEnabledExtensions() {
		return nil, extensionsRejected(c.Name())
	}
	return nil, nil
}

// Run invokes codex and parses its line-delimited JSON events. When no
// structured result text is found the raw stdout stands in for it.
func (c *Codex) Run(ctx context.Context, input string) (*Output, error) {
	env := proc.ExpandEnv(c.Env)
	if _, ok := env["OPENAI_API_KEY"]; !ok {
		return nil, errors.New("OPENAI_API_KEY environment variable is required for codex; set it in your environment or pass it via the env overrides")
	}

	defaults, err := c.DefaultConfigObjects()
	if err != nil {
		return nil, err
	}
	if err := c.PrepareWorkdir(defaults); err != nil {
		return nil, err
	}

	var out *Output
	runErr := workdir.With(c.Workdir, func() error {
		env["HOME"] = "."
		text := c.ExpandPrompt(input)
		command := []string{"codex", "exec", "--json", text}

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

		out = &Output{Stdout: result.Stdout, Stderr: result.Stderr}
		messages, err := parseJSONLines(result.Stdout)
		if err != nil {
			return err
		}
		out.Messages = messages

		cost, errFlag, resultText := scanStreamMessages(messages, streamKeys{
			cost:    "total_cost_usd",
			errFlag: "error",
			result:  "last_agent_message",
		})
		out.TotalCostUSD = cost
		if resultText != nil {
			out.ResultText = *resultText
		} else {
			out.ResultText = result.Stdout
		}
		failed := errFlag != nil && *errFlag
		out.Success = success(!failed)
		if failed {
			return fmt.Errorf("codex reported an error: %s", firstNonEmpty(out.Stderr, "see structured messages"))
		}
		return nil
	})
	return out, runErr
}

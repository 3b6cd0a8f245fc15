package coders

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	"metacoder/internal/config"
	"metacoder/internal/proc"
	"metacoder/internal/workdir"
)

// Claude runs the claude CLI in non-interactive stream-json mode.
//
// Well-known files in the workdir: CLAUDE.md instructions, .claude.json and
// .claude/settings.json for settings, .mcp.json for tool extensions. Cost
// is reported per invocation through the stream-json output.
type Claude struct {
	Base
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) IsAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

func (c *Claude) SupportsExtensions() bool { return true }

func (c *Claude) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{
		"CLAUDE.md":             RolePrimaryInstruction,
		".claude.json":          RoleConfig,
		".mcp.json":             RoleConfig,
		".claude":               RoleConfig,
		".claude/settings.json": RoleConfig,
		".claude/agents":        RoleAgents,
	}
}

// extensionToServer translates one extension into claude's mcpServers entry
// shape, preserving command, args and env verbatim.
func (c *Claude) extensionToServer(ext config.Extension) (map[string]any, error) {
	if ext.Type == config.ExtensionHTTP {
		return nil, httpUnsupported(c.Name(), ext.Name)
	}
	server := map[string]any{}
	if ext.Type == config.ExtensionStdio && ext.Cmd != "" {
		server["command"] = ext.Cmd
		if len(ext.Args) > 0 {
			server["args"] = ext.Args
		}
		if len(ext.Env) > 0 {
			server["env"] = ext.Env
		}
	}
	return server, nil
}

func (c *Claude) DefaultConfigObjects() ([]ConfigObject, error) {
	if c.Config == nil {
		return nil, nil
	}
	servers := map[string]any{}
	for _, ext := range c.Config.EnabledExtensions() {
		server, err := c.extensionToServer(ext)
		if err != nil {
			return nil, err
		}
		servers[ext.Name] = server
	}
	if len(servers) == 0 {
		return nil, nil
	}
	return []ConfigObject{{
		FileType:     FileTypeJSON,
		RelativePath: ".mcp.json",
		Content:      map[string]any{"mcpServers": servers},
	}}, nil
}

// Run invokes claude and parses its stream-json output. An explicit error
// flag in the output fails the invocation even on a clean exit.
func (c *Claude) Run(ctx context.Context, input string) (*Output, error) {
	env := proc.ExpandEnv(c.Env)
	defaults, err := c.DefaultConfigObjects()
	if err != nil {
		return nil, err
	}
	if err := c.PrepareWorkdir(defaults); err != nil {
		return nil, err
	}

	var out *Output
	runErr := workdir.With(c.Workdir, func() error {
		// Pin HOME so claude only sees config inside the workdir.
		env["HOME"] = "."
		text := c.ExpandPrompt(input)

		command := []string{"claude", "-p", "--verbose", "--output-format", "stream-json"}
		if c.Config.HasEnabledExtensions() {
			command = append(command, "--mcp-config", ".mcp.json", "--dangerously-skip-permissions")
		}
		command = append(command, text)

		fmt.Fprintf(os.Stderr, "running command: %s\n", shellquote.Join(command...))
		start := time.Now()
		result, err := proc.Run(ctx, command, env)
		if err != nil {
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
			errFlag: "is_error",
			result:  "result",
		})
		out.TotalCostUSD = cost
		if resultText != nil {
			out.ResultText = *resultText
		}
		failed := errFlag != nil && *errFlag
		out.Success = success(!failed)
		if failed {
			return fmt.Errorf("claude reported an error: %s", firstNonEmpty(out.Stderr, out.ResultText, "see structured messages"))
		}
		return nil
	})
	return out, runErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

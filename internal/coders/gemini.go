package coders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	"metacoder/internal/config"
	"metacoder/internal/proc"
	"metacoder/internal/workdir"
)

// geminiExtensionTimeoutMS is the default mcpServers timeout the gemini
// settings format requires when the common model supplies none.
const geminiExtensionTimeoutMS = 30000

// Gemini runs the gemini CLI. The CLI is conversational, so the prompt is
// piped through a shell. Well-known files: GEMINI.md instructions and
// .gemini/settings.json, which carries the mcpServers tool extensions.
type Gemini struct {
	Base
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) IsAvailable() bool {
	_, err := exec.LookPath("gemini")
	return err == nil
}

func (g *Gemini) SupportsExtensions() bool { return true }

func (g *Gemini) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{
		"GEMINI.md":             RolePrimaryInstruction,
		".gemini/settings.json": RoleConfig,
		".gemini/commands":      RoleConfig,
	}
}

// geminiServerEntry translates one extension into gemini's mcpServers entry
// shape. The settings format requires a timeout, defaulted when the common
// model has none.
func geminiServerEntry(coderName string, ext config.Extension) (map[string]any, error) {
	if ext.Type == config.ExtensionHTTP {
		return nil, httpUnsupported(coderName, ext.Name)
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
		timeout := geminiExtensionTimeoutMS
		if ext.Timeout > 0 {
			timeout = ext.Timeout * 1000
		}
		server["timeout"] = timeout
	}
	return server, nil
}

// geminiSettingsObjects builds the .gemini-style settings.json config
// object shared by the gemini and qwen coders.
func geminiSettingsObjects(coderName, settingsPath string, cfg *config.CoderConfig) ([]ConfigObject, error) {
	if cfg == nil {
		return nil, nil
	}
	servers := map[string]any{}
	for _, ext := range cfg.EnabledExtensions() {
		server, err := geminiServerEntry(coderName, ext)
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
		RelativePath: settingsPath,
		Content:      map[string]any{"mcpServers": servers},
	}}, nil
}

func (g *Gemini) DefaultConfigObjects() ([]ConfigObject, error) {
	return geminiSettingsObjects(g.Name(), ".gemini/settings.json", g.Config)
}

// Run invokes gemini and segments its stdout into debug blocks. The last
// block's text is the result; with no blocks at all the raw stdout stands
// in. A failed subprocess is folded into a failed Output rather than
// propagated.
func (g *Gemini) Run(ctx context.Context, input string) (*Output, error) {
	return runDebugBlockCoder(ctx, &g.Base, debugBlockInvocation{
		coderName:   g.Name(),
		binary:      "gemini",
		defaults:    g.DefaultConfigObjects,
		fallbackRaw: true,
	}, input)
}

// debugBlockInvocation parameterizes the gemini-family run sequence. The
// two coders differ only in binary name, config paths and the policy for
// output without any parsed blocks.
type debugBlockInvocation struct {
	coderName string
	binary    string
	defaults  func() ([]ConfigObject, error)
	// fallbackRaw selects the empty-parse policy: raw stdout as result
	// text when true, ErrNoResultText when false. The divergence is
	// deliberate per-coder behavior.
	fallbackRaw bool
}

func runDebugBlockCoder(ctx context.Context, base *Base, inv debugBlockInvocation, input string) (*Output, error) {
	env := proc.ExpandEnv(base.Env)
	defaults, err := inv.defaults()
	if err != nil {
		return nil, err
	}
	if err := base.PrepareWorkdir(defaults); err != nil {
		return nil, err
	}

	var out *Output
	runErr := workdir.With(base.Workdir, func() error {
		env["HOME"] = "."
		text := base.ExpandPrompt(input)

		// The CLI reads the prompt from stdin, so pipe it through a shell.
		command := []string{"sh", "-c", fmt.Sprintf("echo %s | %s", shellquote.Join(text), inv.binary)}

		fmt.Fprintf(os.Stderr, "running command: %s with prompt\n", inv.binary)
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
		blocks := parseDebugBlocks(result.Stdout)
		out.Messages = debugBlockMessages(blocks)

		if len(blocks) > 0 {
			out.ResultText = blocks[len(blocks)-1].Text
		} else if inv.fallbackRaw {
			out.ResultText = result.Stdout
		} else {
			out.Success = success(false)
			return fmt.Errorf("%s produced no parseable output: %w", inv.coderName, ErrNoResultText)
		}
		out.Success = success(true)
		return nil
	})
	return out, runErr
}

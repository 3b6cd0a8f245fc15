package coders

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"metacoder/internal/config"
	"metacoder/internal/proc"
	"metacoder/internal/workdir"
)

const (
	// gooseExtensionTimeoutSec is goose's required per-extension timeout,
	// applied when the common model supplies none.
	gooseExtensionTimeoutSec = 300
	gooseConfigPath          = ".config/goose/config.yaml"
	// gooseSessionMarker announces the session log file path on stdout.
	gooseSessionMarker = "logging to "
)

// Goose runs the goose CLI. Goose keeps all of its configuration under a
// simulated home directory inside the workdir and writes a JSONL session
// log whose path it announces on stdout; the result text comes from that
// log, not from stdout itself.
type Goose struct {
	Base
}

func (g *Goose) Name() string { return "goose" }

func (g *Goose) IsAvailable() bool {
	_, err := exec.LookPath("goose")
	return err == nil
}

func (g *Goose) SupportsExtensions() bool { return true }

func (g *Goose) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{
		".goosehints":   RolePrimaryInstruction,
		gooseConfigPath: RoleConfig,
	}
}

// gooseExtensionEntry translates one extension into goose's config.yaml
// extensions shape.
func (g *Goose) gooseExtensionEntry(ext config.Extension) (map[string]any, error) {
	switch ext.Type {
	case config.ExtensionHTTP:
		return nil, httpUnsupported(g.Name(), ext.Name)
	case config.ExtensionBuiltin:
		return map[string]any{
			"bundled":      ext.Bundled != nil && *ext.Bundled,
			"display_name": firstNonEmpty(ext.DisplayName, ext.Name),
			"enabled":      true,
			"name":         ext.Name,
			"timeout":      extensionTimeout(ext, gooseExtensionTimeoutSec),
			"type":         "builtin",
		}, nil
	default:
		entry := map[string]any{
			"args":        ext.Args,
			"bundled":     nil,
			"cmd":         ext.Cmd,
			"description": ext.Description,
			"enabled":     true,
			"env_keys":    ext.EnvKeys,
			"envs":        ext.Env,
			"name":        ext.Name,
			"timeout":     extensionTimeout(ext, gooseExtensionTimeoutSec),
			"type":        "stdio",
		}
		return entry, nil
	}
}

func extensionTimeout(ext config.Extension, fallback int) int {
	if ext.Timeout > 0 {
		return ext.Timeout
	}
	return fallback
}

// DefaultConfigObjects builds goose's config.yaml: model and provider
// selection plus the extensions map. The builtin developer extension is
// always present so goose can edit files at all.
func (g *Goose) DefaultConfigObjects() ([]ConfigObject, error) {
	model := "gpt-4o"
	provider := "openai"
	if g.Config != nil && g.Config.AIModel.Name != "" {
		model = g.Config.AIModel.Name
	}
	if g.Config != nil && g.Config.AIModel.Provider != nil && g.Config.AIModel.Provider.Name != "" {
		provider = g.Config.AIModel.Provider.Name
	}

	extensions := map[string]any{
		"developer": map[string]any{
			"bundled":      true,
			"display_name": "Developer",
			"enabled":      true,
			"name":         "developer",
			"timeout":      gooseExtensionTimeoutSec,
			"type":         "builtin",
		},
	}
	if g.Config != nil {
		for _, ext := range g.Config.EnabledExtensions() {
			entry, err := g.gooseExtensionEntry(ext)
			if err != nil {
				return nil, err
			}
			extensions[ext.Name] = entry
		}
	}

	return []ConfigObject{{
		FileType:     FileTypeYAML,
		RelativePath: gooseConfigPath,
		Content: map[string]any{
			"GOOSE_MODEL":    model,
			"GOOSE_PROVIDER": provider,
			"extensions":     extensions,
		},
	}}, nil
}

// Run invokes goose and extracts the result from its announced session log.
// A clean exit without an extractable result is a failure in its own right.
func (g *Goose) Run(ctx context.Context, input string) (*Output, error) {
	env := proc.ExpandEnv(g.Env)
	defaults, err := g.DefaultConfigObjects()
	if err != nil {
		return nil, err
	}
	if err := g.PrepareWorkdir(defaults); err != nil {
		return nil, err
	}

	var out *Output
	runErr := workdir.With(g.Workdir, func() error {
		// Goose resolves ~/.config against HOME; pin it to the workdir so
		// only the materialized config is visible.
		env["HOME"] = "."
		text := g.ExpandPrompt(input)
		command := []string{"goose", "run", "-t", text}

		fmt.Fprintf(os.Stderr, "running command: %s\n", shellquote.Join(command...))
		start := time.Now()
		result, err := proc.Run(ctx, command, env)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "command took %s\n", time.Since(start).Round(time.Millisecond))

		out = &Output{Stdout: result.Stdout, Stderr: result.Stderr}

		sessionPath := findSessionPath(result.Stdout)
		if sessionPath != "" {
			messages, err := readSessionLog(sessionPath)
			if err != nil {
				return err
			}
			out.Messages = messages
		}
		out.ResultText = sessionResultText(out.Messages)
		if out.ResultText == "" {
			out.Success = success(false)
			return fmt.Errorf("goose session log yielded nothing: %w", ErrNoResultText)
		}
		out.Success = success(true)
		return nil
	})
	return out, runErr
}

// findSessionPath scans stdout for the announced session log path.
func findSessionPath(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		if idx := strings.Index(line, gooseSessionMarker); idx >= 0 {
			return strings.TrimSpace(line[idx+len(gooseSessionMarker):])
		}
	}
	return ""
}

// readSessionLog reads a goose session file: one JSON message per line. A
// missing file is not an error; goose may have logged a path it never
// wrote.
func readSessionLog(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}
	defer file.Close()

	var messages []map[string]any
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var message map[string]any
		if err := json.Unmarshal([]byte(line), &message); err != nil {
			return nil, fmt.Errorf("parse session log %s: %w", path, err)
		}
		messages = append(messages, message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session log %s: %w", path, err)
	}
	return messages, nil
}

// sessionResultText extracts the final text content entry from the session
// messages. Later entries win.
func sessionResultText(messages []map[string]any) string {
	var resultText string
	for _, message := range messages {
		content, ok := message["content"].([]any)
		if !ok {
			continue
		}
		for _, entry := range content {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := fields["text"].(string); ok {
				resultText = text
			}
		}
	}
	return resultText
}

package coders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"metacoder/internal/config"
	"metacoder/internal/workdir"
)

// promptToken is the placeholder a prompt template substitutes with the
// caller's task text.
const promptToken = "{input_text}"

// Base carries the state shared by every coder and implements workdir
// preparation. Coders embed it and supply their own translation, invocation
// and parsing on top.
type Base struct {
	// Workdir is the guarded directory scoping this invocation.
	Workdir string
	// Config is the common configuration, optional.
	Config *config.CoderConfig
	// Params holds coder-specific raw parameters such as a model override.
	Params map[string]string
	// Env holds raw environment overrides, expanded before launch.
	Env map[string]string
	// Prompt is an optional template applied to the task text.
	Prompt string
	// ConfigObjects overrides the coder's default config objects when set.
	ConfigObjects []ConfigObject
}

// ExpandPrompt applies the prompt template to the task text. Without a
// template the text passes through unchanged.
func (b *Base) ExpandPrompt(input string) string {
	if b.Prompt == "" {
		return input
	}
	return strings.ReplaceAll(b.Prompt, promptToken, input)
}

// PrepareWorkdir materializes the given config objects beneath the guarded
// workdir. Explicitly supplied ConfigObjects take precedence over the
// coder's defaults. This is the only setup step that writes into the
// workdir.
func (b *Base) PrepareWorkdir(defaults []ConfigObject) error {
	objects := b.ConfigObjects
	if objects == nil {
		objects = defaults
	}
	fmt.Fprintf(os.Stderr, "preparing workdir: %s\n", b.Workdir)
	return workdir.With(b.Workdir, func() error {
		for _, object := range objects {
			if err := materialize(object); err != nil {
				return err
			}
		}
		return nil
	})
}

// materialize writes one config object relative to the current (guarded)
// directory, creating parent directories as needed.
func materialize(object ConfigObject) error {
	data, err := encodeConfigObject(object)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(object.RelativePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir %s: %w", dir, err)
		}
	}
	fmt.Fprintf(os.Stderr, "writing config object: %s type=%s\n", object.RelativePath, object.FileType)
	reportOverwrite(object.RelativePath, data)
	if err := os.WriteFile(object.RelativePath, data, 0o644); err != nil {
		return fmt.Errorf("write config object %s: %w", object.RelativePath, err)
	}
	return nil
}

func encodeConfigObject(object ConfigObject) ([]byte, error) {
	switch object.FileType {
	case FileTypeText:
		text, ok := object.Content.(string)
		if !ok {
			return nil, fmt.Errorf("config object %s: text content must be a string, got %T", object.RelativePath, object.Content)
		}
		return []byte(text), nil
	case FileTypeYAML:
		data, err := yaml.Marshal(object.Content)
		if err != nil {
			return nil, fmt.Errorf("config object %s: marshal yaml: %w", object.RelativePath, err)
		}
		return data, nil
	case FileTypeJSON:
		data, err := json.MarshalIndent(object.Content, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("config object %s: marshal json: %w", object.RelativePath, err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("config object %s: unknown file type: %s", object.RelativePath, object.FileType)
	}
}

// reportOverwrite prints a unified diff when a config object replaces an
// existing file with different content, so drift between invocations is
// visible to the operator.
func reportOverwrite(path string, next []byte) {
	previous, err := os.ReadFile(path)
	if err != nil || bytes.Equal(previous, next) {
		return
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(previous)),
		B:        difflib.SplitLines(string(next)),
		FromFile: path + " (previous)",
		ToFile:   path,
		Context:  3,
	}
	text, diffErr := difflib.GetUnifiedDiffString(diff)
	if diffErr != nil || text == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "config object %s changed since last run:\n%s", path, text)
}

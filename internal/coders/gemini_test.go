package coders

import (
	"context"
	"errors"
	"testing"

	"metacoder/internal/config"
)

func geminiTestConfig(extra ...config.Extension) *config.CoderConfig {
	off := false
	exts := []config.Extension{
		{
			Name: "filesystem",
			Type: config.ExtensionStdio,
			Cmd:  "npx",
			Args: []string{"-y", "@modelcontextprotocol/server-filesystem"},
		},
		{
			Name: "github",
			Type: config.ExtensionStdio,
			Cmd:  "uvx",
			Args: []string{"mcp-github"},
			Env:  map[string]string{"GITHUB_TOKEN": "${GITHUB_TOKEN}"},
		},
		{
			Name:    "disabled_server",
			Type:    config.ExtensionStdio,
			Cmd:     "uvx",
			Args:    []string{"mcp-disabled"},
			Enabled: &off,
		},
	}
	return &config.CoderConfig{
		AIModel:    config.AIModel{Name: "gemini-2.0-flash-exp"},
		Extensions: append(exts, extra...),
	}
}

func TestGeminiSettingsGeneration(t *testing.T) {
	gemini := &Gemini{Base: Base{Workdir: t.TempDir(), Config: geminiTestConfig()}}
	objects, err := gemini.DefaultConfigObjects()
	if err != nil {
		t.Fatalf("DefaultConfigObjects: %v", err)
	}
	if len(objects) != 1 || objects[0].RelativePath != ".gemini/settings.json" {
		t.Fatalf("expected .gemini/settings.json, got %+v", objects)
	}

	servers := objects[0].Content.(map[string]any)["mcpServers"].(map[string]any)
	if _, ok := servers["disabled_server"]; ok {
		t.Fatalf("disabled server must not appear")
	}
	fs := servers["filesystem"].(map[string]any)
	if fs["command"] != "npx" || fs["timeout"] != 30000 {
		t.Fatalf("unexpected filesystem entry %v", fs)
	}
	gh := servers["github"].(map[string]any)
	if gh["command"] != "uvx" || gh["timeout"] != 30000 {
		t.Fatalf("unexpected github entry %v", gh)
	}
}

func TestGeminiExtensionTimeoutConverted(t *testing.T) {
	cfg := &config.CoderConfig{Extensions: []config.Extension{{
		Name:    "slow",
		Type:    config.ExtensionStdio,
		Cmd:     "uvx",
		Timeout: 120,
	}}}
	gemini := &Gemini{Base: Base{Workdir: t.TempDir(), Config: cfg}}
	objects, err := gemini.DefaultConfigObjects()
	if err != nil {
		t.Fatalf("DefaultConfigObjects: %v", err)
	}
	servers := objects[0].Content.(map[string]any)["mcpServers"].(map[string]any)
	if servers["slow"].(map[string]any)["timeout"] != 120000 {
		t.Fatalf("expected seconds converted to milliseconds, got %v", servers["slow"])
	}
}

func TestGeminiHTTPExtensionRejected(t *testing.T) {
	gemini := &Gemini{Base: Base{
		Workdir: t.TempDir(),
		Config: &config.CoderConfig{
			Extensions: []config.Extension{{Name: "http_server", Type: config.ExtensionHTTP}},
		},
	}}
	_, err := gemini.DefaultConfigObjects()
	if !errors.Is(err, ErrExtensionUnsupported) {
		t.Fatalf("expected ErrExtensionUnsupported, got %v", err)
	}
}

func TestGeminiNoExtensionsNoSettings(t *testing.T) {
	gemini := &Gemini{Base: Base{Workdir: t.TempDir()}}
	objects, err := gemini.DefaultConfigObjects()
	if err != nil || objects != nil {
		t.Fatalf("expected no settings without extensions, got %v err=%v", objects, err)
	}
}

func TestGeminiRunParsesDebugBlocks(t *testing.T) {
	fakeBinary(t, "gemini", `
cat > /dev/null
echo '[DEBUG] [BfsFileSearch] searching files'
echo 'final answer'
`)
	gemini := &Gemini{Base: Base{Workdir: t.TempDir()}}
	out, err := gemini.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Succeeded() {
		t.Fatalf("expected success, got %v", out.Success)
	}
	if out.ResultText != "final answer\n" {
		t.Fatalf("expected last block text, got %q", out.ResultText)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %v", len(out.Messages), out.Messages)
	}
	if out.Messages[0]["debug_type"] != "BfsFileSearch" {
		t.Fatalf("unexpected first block %v", out.Messages[0])
	}
}

// Gemini and qwen deliberately diverge when parsing yields no blocks:
// gemini falls back to the raw stdout, qwen fails. See the qwen tests for
// the other half of the pair.
func TestGeminiRunNoBlocksFallsBackToRawStdout(t *testing.T) {
	fakeBinary(t, "gemini", `
cat > /dev/null
exit 0
`)
	gemini := &Gemini{Base: Base{Workdir: t.TempDir()}}
	out, err := gemini.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Succeeded() {
		t.Fatalf("expected success on empty output, got %v", out.Success)
	}
	if out.ResultText != out.Stdout {
		t.Fatalf("expected raw stdout fallback, got %q", out.ResultText)
	}
}

func TestGeminiRunSubprocessFailureBecomesFailedOutput(t *testing.T) {
	fakeBinary(t, "gemini", `
cat > /dev/null
echo 'partial progress'
echo 'quota exceeded' 1>&2
exit 1
`)
	gemini := &Gemini{Base: Base{Workdir: t.TempDir()}}
	out, err := gemini.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("subprocess failure must be folded into the output, got %v", err)
	}
	if out.Succeeded() {
		t.Fatalf("expected failed output")
	}
	if out.Stdout != "partial progress" {
		t.Fatalf("partial stdout must be preserved, got %q", out.Stdout)
	}
	if out.Stderr != "quota exceeded" {
		t.Fatalf("stderr must be preserved, got %q", out.Stderr)
	}
}

package coders

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"metacoder/internal/config"
)

func TestClaudeConfigObjectsTranslateExtensions(t *testing.T) {
	off := false
	claude := &Claude{Base: Base{
		Workdir: t.TempDir(),
		Config: &config.CoderConfig{
			AIModel: config.AIModel{Name: "claude-sonnet"},
			Extensions: []config.Extension{
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
			},
		},
	}}

	objects, err := claude.DefaultConfigObjects()
	if err != nil {
		t.Fatalf("DefaultConfigObjects: %v", err)
	}
	if len(objects) != 1 || objects[0].RelativePath != ".mcp.json" {
		t.Fatalf("expected a single .mcp.json object, got %+v", objects)
	}

	content := objects[0].Content.(map[string]any)
	servers := content["mcpServers"].(map[string]any)
	if _, ok := servers["disabled_server"]; ok {
		t.Fatalf("disabled extension must never be materialized")
	}
	github := servers["github"].(map[string]any)
	if github["command"] != "uvx" {
		t.Fatalf("command not preserved: %v", github)
	}
	if !reflect.DeepEqual(github["args"], []string{"mcp-github"}) {
		t.Fatalf("args not preserved: %v", github["args"])
	}
	if !reflect.DeepEqual(github["env"], map[string]string{"GITHUB_TOKEN": "${GITHUB_TOKEN}"}) {
		t.Fatalf("env not preserved: %v", github["env"])
	}
}

func TestClaudeHTTPExtensionRejected(t *testing.T) {
	claude := &Claude{Base: Base{
		Workdir: t.TempDir(),
		Config: &config.CoderConfig{
			Extensions: []config.Extension{{Name: "remote", Type: config.ExtensionHTTP}},
		},
	}}
	_, err := claude.DefaultConfigObjects()
	if !errors.Is(err, ErrExtensionUnsupported) {
		t.Fatalf("expected ErrExtensionUnsupported, got %v", err)
	}
}

func TestClaudeNoExtensionsNoConfigObjects(t *testing.T) {
	claude := &Claude{Base: Base{Workdir: t.TempDir()}}
	objects, err := claude.DefaultConfigObjects()
	if err != nil || objects != nil {
		t.Fatalf("expected no objects, got %v err=%v", objects, err)
	}
}

func TestClaudeRunParsesStreamJSON(t *testing.T) {
	fakeBinary(t, "claude", `
echo '{"type":"system","subtype":"init"}'
echo '{"type":"result","result":"done","total_cost_usd":0.5,"is_error":false}'
`)
	claude := &Claude{Base: Base{Workdir: t.TempDir()}}
	out, err := claude.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ResultText != "done" {
		t.Fatalf("expected result text done, got %q", out.ResultText)
	}
	if out.TotalCostUSD == nil || *out.TotalCostUSD != 0.5 {
		t.Fatalf("expected cost 0.5, got %v", out.TotalCostUSD)
	}
	if !out.Succeeded() {
		t.Fatalf("expected success, got %v", out.Success)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected 2 structured messages, got %d", len(out.Messages))
	}
}

func TestClaudeRunErrorFlagFailsInvocation(t *testing.T) {
	fakeBinary(t, "claude", `
echo '{"type":"result","is_error":true,"result":"something broke"}'
`)
	claude := &Claude{Base: Base{Workdir: t.TempDir()}}
	out, err := claude.Run(context.Background(), "do the thing")
	if err == nil {
		t.Fatalf("expected error when claude reports is_error")
	}
	if out == nil || out.Success == nil || *out.Success {
		t.Fatalf("expected failed output, got %+v", out)
	}
	if out.ResultText != "something broke" {
		t.Fatalf("partial output must be preserved, got %q", out.ResultText)
	}
}

func TestClaudeRunMaterializesMCPConfig(t *testing.T) {
	fakeBinary(t, "claude", `echo '{"result":"ok","is_error":false}'`)
	dir := t.TempDir()
	claude := &Claude{Base: Base{
		Workdir: dir,
		Config: &config.CoderConfig{
			AIModel:    config.AIModel{Name: "claude-sonnet"},
			Extensions: []config.Extension{enabledStdioExtension("github", "uvx", "mcp-github")},
		},
	}}
	if _, err := claude.Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".mcp.json"))
	if err != nil {
		t.Fatalf("expected .mcp.json materialized: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal .mcp.json: %v", err)
	}
	if _, ok := decoded["mcpServers"].(map[string]any)["github"]; !ok {
		t.Fatalf("github server missing from %v", decoded)
	}
}

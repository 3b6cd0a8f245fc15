package coders

import (
	"context"
	"errors"
	"testing"

	"metacoder/internal/config"
)

func TestQwenSettingsUseQwenPath(t *testing.T) {
	qwen := &Qwen{Base: Base{
		Workdir: t.TempDir(),
		Config: &config.CoderConfig{
			Extensions: []config.Extension{enabledStdioExtension("github", "uvx", "mcp-github")},
		},
	}}
	objects, err := qwen.DefaultConfigObjects()
	if err != nil {
		t.Fatalf("DefaultConfigObjects: %v", err)
	}
	if len(objects) != 1 || objects[0].RelativePath != ".qwen/settings.json" {
		t.Fatalf("expected .qwen/settings.json, got %+v", objects)
	}
}

func TestQwenHTTPExtensionRejected(t *testing.T) {
	qwen := &Qwen{Base: Base{
		Workdir: t.TempDir(),
		Config: &config.CoderConfig{
			Extensions: []config.Extension{{Name: "remote", Type: config.ExtensionHTTP}},
		},
	}}
	_, err := qwen.DefaultConfigObjects()
	if !errors.Is(err, ErrExtensionUnsupported) {
		t.Fatalf("expected ErrExtensionUnsupported, got %v", err)
	}
}

func TestQwenRunParsesDebugBlocks(t *testing.T) {
	fakeBinary(t, "qwen", `
cat > /dev/null
echo '[DEBUG] [Init] starting'
echo 'the answer'
`)
	qwen := &Qwen{Base: Base{Workdir: t.TempDir()}}
	out, err := qwen.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ResultText != "the answer\n" {
		t.Fatalf("expected last block text, got %q", out.ResultText)
	}
}

// The other half of the gemini/qwen divergence: qwen treats an invocation
// with no parseable blocks as fatal where gemini falls back to raw stdout.
func TestQwenRunNoBlocksIsFatal(t *testing.T) {
	fakeBinary(t, "qwen", `
cat > /dev/null
exit 0
`)
	qwen := &Qwen{Base: Base{Workdir: t.TempDir()}}
	out, err := qwen.Run(context.Background(), "question")
	if !errors.Is(err, ErrNoResultText) {
		t.Fatalf("expected ErrNoResultText, got %v", err)
	}
	if out == nil || out.Succeeded() {
		t.Fatalf("expected failed output, got %+v", out)
	}
}

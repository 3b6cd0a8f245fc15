package coders

import (
	"context"
	"os/exec"
)

// Qwen runs the qwen CLI, a close relative of gemini: same piped prompt,
// same debug-block output, same mcpServers settings shape under .qwen/.
// Unlike gemini it treats output with no parseable blocks as a failure
// instead of falling back to raw stdout.
type Qwen struct {
	Base
}

func (q *Qwen) Name() string { return "qwen" }

func (q *Qwen) IsAvailable() bool {
	_, err := exec.LookPath("qwen")
	return err == nil
}

func (q *Qwen) SupportsExtensions() bool { return true }

func (q *Qwen) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{
		"QWEN.md":             RolePrimaryInstruction,
		".qwen/settings.json": RoleConfig,
	}
}

func (q *Qwen) DefaultConfigObjects() ([]ConfigObject, error) {
	return geminiSettingsObjects(q.Name(), ".qwen/settings.json", q.Config)
}

func (q *Qwen) Run(ctx context.Context, input string) (*Output, error) {
	return runDebugBlockCoder(ctx, &q.Base, debugBlockInvocation{
		coderName:   q.Name(),
		binary:      "qwen",
		defaults:    q.DefaultConfigObjects,
		fallbackRaw: false,
	}, input)
}

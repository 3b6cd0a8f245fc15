// Package coders adapts a common task-invocation contract onto the
// individual AI coding-assistant CLIs. Each coder prepares an isolated
// workdir, translates the common configuration into the assistant's native
// config files, invokes the assistant, and normalizes its output into one
// result shape.
package coders

import (
	"context"
	"errors"
	"fmt"
)

// FileType identifies how a config object's content is serialized to disk.
type FileType string

const (
	FileTypeText FileType = "text"
	FileTypeYAML FileType = "yaml"
	FileTypeJSON FileType = "json"
)

// ConfigObject describes one file to materialize into the workdir before a
// coder is invoked. Content is a string for FileTypeText and any YAML- or
// JSON-marshalable value for the structured kinds.
type ConfigObject struct {
	FileType     FileType
	RelativePath string
	Content      any
}

// ConfigRole classifies the purpose of a coder's well-known config paths.
type ConfigRole string

const (
	RolePrimaryInstruction ConfigRole = "primary_instruction"
	RoleConfig             ConfigRole = "config"
	RoleAgents             ConfigRole = "agents"
)

// Output is the normalized result of one coder invocation, regardless of
// the assistant's native output format.
type Output struct {
	// Stdout and Stderr hold the full captured streams, always present.
	Stdout string
	Stderr string
	// ResultText is the extracted primary result, when the coder produced
	// one.
	ResultText string
	// TotalCostUSD is reported only by coders that surface cost.
	TotalCostUSD *float64
	// Success is nil until determined.
	Success *bool
	// Messages holds the coder-native structured records: stream-JSON
	// objects, parsed debug blocks, or session-log entries.
	Messages []map[string]any
}

// Succeeded reports whether the invocation was determined to be successful.
func (o *Output) Succeeded() bool {
	return o != nil && o.Success != nil && *o.Success
}

// Coder is the capability set every assistant adapter implements.
type Coder interface {
	// Name is the registry key.
	Name() string
	// IsAvailable reports whether the assistant binary is present on the
	// host. Used by orchestration tooling to filter candidates.
	IsAvailable() bool
	// SupportsExtensions reports whether the coder accepts tool extension
	// declarations at all.
	SupportsExtensions() bool
	// DefaultConfigPaths enumerates the coder's well-known config paths,
	// relative to the workdir, by role.
	DefaultConfigPaths() map[string]ConfigRole
	// DefaultConfigObjects translates the coder's configuration into its
	// native config files. Translation failures (unsupported extension
	// kinds) surface here, before anything launches.
	DefaultConfigObjects() ([]ConfigObject, error)
	// Run executes one task prompt and returns the normalized result. A
	// returned Output may accompany a non-nil error so callers can inspect
	// partial output on failure.
	Run(ctx context.Context, input string) (*Output, error)
}

// ErrExtensionUnsupported marks extension declarations a coder has no
// native translation for. It is raised at translation or construction time,
// never deferred to invocation.
var ErrExtensionUnsupported = errors.New("extension not supported")

// ErrNoResultText marks an invocation whose process exited cleanly but
// yielded no extractable result.
var ErrNoResultText = errors.New("no result text found")

func success(ok bool) *bool {
	return &ok
}

func httpUnsupported(coderName, extName string) error {
	return fmt.Errorf("http extension %q is not supported for %s yet: %w", extName, coderName, ErrExtensionUnsupported)
}

func extensionsRejected(coderName string) error {
	return fmt.Errorf("%s does not accept tool extensions: %w", coderName, ErrExtensionUnsupported)
}

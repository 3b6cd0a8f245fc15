package coders

import (
	"regexp"
	"strings"
)

// debugLineRe matches the tagged debug lines the gemini-family CLIs emit:
// [DEBUG] [SomeType] text.
var debugLineRe = regexp.MustCompile(`\[DEBUG\] \[(.*)\] (.*)`)

// debugBlock is one segment of gemini-family output: either a tagged debug
// line or a run of free text between tags.
type debugBlock struct {
	DebugType string
	Text      string
}

func (b debugBlock) toMessage() map[string]any {
	message := map[string]any{"text": b.Text}
	if b.DebugType != "" {
		message["debug_type"] = b.DebugType
	}
	return message
}

// parseDebugBlocks splits stdout into typed debug blocks and free-text
// blocks. A [DEBUG] line closes the current free-text block and contributes
// a typed block of its own; every other line appends to the current
// free-text block with a trailing newline. The final block is flushed when
// non-empty.
func parseDebugBlocks(stdout string) []debugBlock {
	var blocks []debugBlock
	current := debugBlock{}
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "[DEBUG]") {
			if current.Text != "" {
				blocks = append(blocks, current)
				current = debugBlock{}
			}
			if m := debugLineRe.FindStringSubmatch(line); m != nil {
				blocks = append(blocks, debugBlock{DebugType: m[1], Text: m[2]})
			}
			continue
		}
		current.Text += line + "\n"
	}
	// A final block of pure separators means the CLI said nothing; dropping
	// it lets callers distinguish "no output" from a real trailing block.
	if strings.TrimSpace(current.Text) != "" {
		blocks = append(blocks, current)
	}
	return blocks
}

func debugBlockMessages(blocks []debugBlock) []map[string]any {
	if len(blocks) == 0 {
		return nil
	}
	messages := make([]map[string]any, 0, len(blocks))
	for _, block := range blocks {
		messages = append(messages, block.toMessage())
	}
	return messages
}

package coders

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseJSONLines decodes line-delimited JSON output: one object per
// non-empty line. An empty slice is not an error; a malformed line is.
func parseJSONLines(stdout string) ([]map[string]any, error) {
	var messages []map[string]any
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var message map[string]any
		if err := json.Unmarshal([]byte(line), &message); err != nil {
			return nil, fmt.Errorf("parse stream-json line %q: %w", truncate(line, 120), err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// streamKeys names the fields a stream-JSON coder reports its cost, error
// flag and result text under.
type streamKeys struct {
	cost    string
	errFlag string
	result  string
}

// scanStreamMessages walks the decoded messages for the coder's cost, error
// and result fields. The last occurrence of each wins.
func scanStreamMessages(messages []map[string]any, keys streamKeys) (cost *float64, errFlag *bool, resultText *string) {
	for _, message := range messages {
		if value, ok := message[keys.cost]; ok {
			if number, ok := value.(float64); ok {
				cost = &number
			}
		}
		if value, ok := message[keys.errFlag]; ok {
			flag := truthy(value)
			errFlag = &flag
		}
		if value, ok := message[keys.result]; ok {
			if text, ok := value.(string); ok {
				resultText = &text
			}
		}
	}
	return cost, errFlag, resultText
}

// truthy interprets an error-flag value: booleans directly, anything else
// by presence.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

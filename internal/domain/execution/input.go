package execution

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NormalizeInput turns an execution input into the user message sent to
// the LLM. A JSON string yields its text; any other JSON value yields its
// compact JSON encoding; an empty input yields "".
func NormalizeInput(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode input string: %w", err)
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", fmt.Errorf("compact input: %w", err)
	}
	return buf.String(), nil
}

// TextInput encodes plain text as an execution input.
func TextInput(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

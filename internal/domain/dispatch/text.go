package dispatch

import (
	"bytes"
	"encoding/json"
)

// MaxOutputTextLen is the maximum number of characters of output rendered
// into Slack and email bodies.
const MaxOutputTextLen = 2000

// preferredFields are looked up, in order, on object outputs.
var preferredFields = []string{"result", "output", "consensus"}

// OutputText renders an execution output for humans: a JSON string is used
// as-is; an object exposing result, output or consensus (in that order)
// renders that field; anything else renders as JSON. The result is
// truncated to MaxOutputTextLen characters.
func OutputText(raw json.RawMessage) string {
	return Truncate(renderOutput(raw), MaxOutputTextLen)
}

func renderOutput(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		for _, key := range preferredFields {
			v, ok := obj[key]
			if !ok || isNull(v) {
				continue
			}
			return renderValue(v)
		}
	}
	return compact(trimmed)
}

func renderValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return compact(v)
}

func compact(v []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// Truncate cuts s to at most n characters (runes).
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

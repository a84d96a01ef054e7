package correct

import (
	"encoding/json"
	"strings"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
)

// parseReplyObject extracts a JSON object from a correction-service reply.
// Upstream replies are not guaranteed well-formed, so parsing is layered:
// strict parse first, then fenced-code-block extraction, then the outermost
// brace-delimited substring. Only when every strategy fails is the reply
// classified as malformed.
func parseReplyObject(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)

	if m, ok := tryUnmarshal(content); ok {
		return m, nil
	}
	if fenced := stripFences(content); fenced != content {
		if m, ok := tryUnmarshal(fenced); ok {
			return m, nil
		}
	}
	if sub := braceSubstring(content); sub != "" {
		if m, ok := tryUnmarshal(sub); ok {
			return m, nil
		}
	}
	return nil, common.WrapError(common.ErrMalformedReply, "no parse strategy succeeded")
}

func tryUnmarshal(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

// stripFences removes markdown code fences (```json ... ```) some models wrap
// around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// braceSubstring returns the substring from the first '{' to the last '}',
// or "" when no such span exists.
func braceSubstring(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

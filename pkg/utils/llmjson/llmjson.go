// Package llmjson decodes structured JSON out of freeform LLM responses.
// Models wrap JSON in markdown fences or surround it with prose; this
// decoder strips the noise and extracts the first top-level object span.
// Each call site decides its own default-on-failure policy.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var ErrNoJSONFound = goerr.New("no JSON object found in response")

var fencePattern = regexp.MustCompile("```(?:json)?\\n?")

// Decode parses the first JSON object found in raw into v
func Decode(raw string, v any) error {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))

	// Fast path: the response is already clean JSON
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	span, ok := extractObject(cleaned)
	if !ok {
		return goerr.Wrap(ErrNoJSONFound, "", goerr.V("raw", truncate(raw, 200)))
	}

	if err := json.Unmarshal([]byte(span), v); err != nil {
		return goerr.Wrap(err, "failed to unmarshal extracted JSON",
			goerr.V("json", truncate(span, 200)))
	}

	return nil
}

// extractObject returns the first balanced {...} span, tracking strings so
// braces inside values do not unbalance the scan.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

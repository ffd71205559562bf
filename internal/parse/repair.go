package parse

import (
	"regexp"
	"strings"
)

var (
	fenceOpenRe = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	bareKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// stripFences removes a leading ``` (with optional language tag) and a
// trailing ``` marker. Text without fences is returned unchanged.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	stripped := fenceOpenRe.ReplaceAllString(trimmed, "")
	stripped = strings.TrimSpace(stripped)
	if strings.HasSuffix(stripped, "```") {
		stripped = strings.TrimSpace(strings.TrimSuffix(stripped, "```"))
	}
	return stripped
}

// braceSlice returns the substring from the first '{' through the last '}'.
func braceSlice(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// repair applies the light syntactic fixes that recover the most common
// model malformations: Python-style single quotes, doubled backslash
// escapes, and unquoted object keys. The output is not guaranteed to be
// valid JSON; the caller decodes it and falls through on failure.
func repair(text string) string {
	text = strings.ReplaceAll(text, `\\`, `\`)
	text = bareKeyRe.ReplaceAllString(text, `$1"$2":`)
	text = strings.ReplaceAll(text, "'", `"`)
	return text
}

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block emitted by reasoning models.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// fencePattern matches ``` fenced blocks with an optional language tag.
var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n?(.*?)```")

// StripThinking removes a leading <think> block.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// FencedBlock is one ``` fenced section of a model reply.
type FencedBlock struct {
	Tag  string // lower-cased language tag, empty if none
	Body string // trimmed contents
}

// FencedBlocks returns the fenced sections of response in order.
func FencedBlocks(response string) []FencedBlock {
	matches := fencePattern.FindAllStringSubmatch(response, -1)
	blocks := make([]FencedBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, FencedBlock{Tag: strings.ToLower(m[1]), Body: strings.TrimSpace(m[2])})
	}
	return blocks
}

// StripFences removes a single surrounding ``` fence, with or without a tag.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil && strings.HasPrefix(text, "```") {
		return strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(strings.Trim(text, "`"))
}

// ExtractJSON returns the first balanced JSON object or array in response.
func ExtractJSON(response string) (string, error) {
	cleaned := StripThinking(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if s, ok := balanced(cleaned[objStart:], '{', '}'); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}
	if arrStart >= 0 {
		if s, ok := balanced(cleaned[arrStart:], '[', ']'); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// balanced returns the prefix of s that closes the bracket s starts with,
// ignoring brackets inside strings.
func balanced(s string, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

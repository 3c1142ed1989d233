package parser

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a provider response holds no recoverable JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSONFromMarkdown extracts JSON from markdown code blocks or from
// the first '{' to the last '}' of free text.
func ExtractJSONFromMarkdown(response string) string {
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 || endIdx < startIdx {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// decodeObject pulls a JSON object out of a provider response. Field values
// stay loosely typed; sanitizers decide what is usable.
func decodeObject(response string) (map[string]any, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonContent), &obj); err != nil {
		// A code block may carry prose around the object.
		start := strings.Index(jsonContent, "{")
		end := strings.LastIndex(jsonContent, "}")
		if start == -1 || end <= start {
			return nil, ErrNoJSON
		}
		if err := json.Unmarshal([]byte(jsonContent[start:end+1]), &obj); err != nil {
			return nil, errors.Join(ErrNoJSON, err)
		}
	}
	if obj == nil {
		return nil, ErrNoJSON
	}
	return obj, nil
}

package proxy

import (
	"encoding/json"
	"strings"
)

// inferUserPrompt guesses the plain-language request that most likely
// triggered a tools/call message, given only the tool name and its
// arguments. The proxy never sees the actual chat turn, so this is a best
// guess used to give otherwise-invisible tool calls a human-readable label
// in the event store - not a claim about what the user actually typed.
func inferUserPrompt(toolName string, args json.RawMessage) string {
	switch toolName {
	case "getMastraCourseStatus":
		return "get me the course status"
	case "startMastraCourse":
		if email := stringArg(args, "email"); email != "" {
			return "begin mastra course with " + email
		}
		return "begin mastra course"
	case "nextMastraCourseStep":
		return "continue to next step"
	case "clearMastraCourseHistory":
		return "clear the course history"
	case "startMastraCourseLesson":
		if lesson := stringArg(args, "lessonName"); lesson != "" {
			return "start lesson " + lesson
		}
		return "start a lesson"
	}

	lower := strings.ToLower(toolName)
	switch {
	case strings.Contains(lower, "search"):
		if query := firstStringArg(args, "query", "search_term"); query != "" {
			return "search for " + query
		}
		return "search for something"
	case strings.Contains(lower, "file"):
		if filename := firstStringArg(args, "target_file", "file"); filename != "" {
			return "work with file " + filename
		}
		return "work with a file"
	case strings.Contains(lower, "memory"):
		return "access or update memory"
	case strings.Contains(lower, "workflow"):
		return "run workflow or automation"
	}

	if toolName == "" {
		return "[Inferred] User request requiring tool usage"
	}
	return "use " + toolName + " tool"
}

func firstStringArg(args json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if v := stringArg(args, key); v != "" {
			return v
		}
	}
	return ""
}

func stringArg(args json.RawMessage, key string) string {
	if len(args) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

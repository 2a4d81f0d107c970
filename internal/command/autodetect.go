package command

import (
	"regexp"
	"strings"
)

// glmVersionPattern matches the GLM version tags that trigger the glm45
// tool-call parser. The mapping is intentionally a fixed lookup table,
// not something to extend speculatively.
var glmVersionPattern = regexp.MustCompile(`4\.5|4\.6|4\.7`)

// detectReasoningParser infers a vLLM reasoning parser from the lowercased
// model id, unless the recipe already sets one explicitly.
func detectReasoningParser(modelID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "qwen3"):
		return "qwen3"
	case strings.Contains(id, "glm") && glmVersionPattern.MatchString(id):
		return "glm45"
	default:
		return ""
	}
}

// detectToolCallParser infers a vLLM tool-call parser from the lowercased
// model id, unless the recipe already sets one explicitly.
func detectToolCallParser(modelID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "qwen3"):
		return "qwen3"
	case strings.Contains(id, "glm") && glmVersionPattern.MatchString(id):
		return "glm45"
	case strings.Contains(id, "minimax") && strings.Contains(id, "m2"):
		return "minimax_m2_append_think"
	default:
		return ""
	}
}

// isMiniMaxM2 reports whether the model id names the MiniMax-M2 family, used
// by the tensor-parallel expert-parallel heuristic.
func isMiniMaxM2(modelID string) bool {
	id := strings.ToLower(modelID)
	return strings.Contains(id, "minimax") && strings.Contains(id, "m2")
}

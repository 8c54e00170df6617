package ai

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"candidate-evaluator/metrics"
)

// stripFences removes markdown code fences and any chatter around the
// outermost JSON object. Models occasionally wrap JSON output even when told
// not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		content = content[start : end+1]
	}

	return strings.TrimSpace(content)
}

// decodeLenient parses a structured response. A payload that is not valid
// JSON degrades to an empty object: logged and counted, never an error, so
// the retry policy is not triggered for a non-transient fault.
func decodeLenient(raw string, log *zap.Logger) map[string]any {
	cleaned := stripFences(raw)

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		metrics.MalformedLLMResponses.Inc()
		log.Warn("malformed structured response, degrading to empty object",
			zap.Error(err),
			zap.Int("response_length", len(raw)),
		)
		return map[string]any{}
	}

	return out
}

// Number reads a numeric field from a structured response, tolerating the
// string-typed numbers some models emit. ok is false when the field is
// missing or unusable.
func Number(m map[string]any, key string) (float64, bool) {
	v, present := m[key]
	if !present {
		return 0, false
	}

	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Str reads a string field from a structured response.
func Str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

package providers

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	authModeAPIKey = "api_key"

	defaultMaxTokens = 4096

	defaultHTTPTimeout = 300 * time.Second
)

func optionAsInt(opts map[string]interface{}, key string) (int, bool) {
	if len(opts) == 0 {
		return 0, false
	}
	v, ok := opts[key]
	if !ok || v == nil {
		return 0, false
	}
	switch vv := v.(type) {
	case int:
		return vv, true
	case int32:
		return int(vv), true
	case int64:
		return int(vv), true
	case float32:
		return int(vv), true
	case float64:
		return int(vv), true
	default:
		return 0, false
	}
}

func optionAsFloat(opts map[string]interface{}, key string) (float64, bool) {
	if len(opts) == 0 {
		return 0, false
	}
	v, ok := opts[key]
	if !ok || v == nil {
		return 0, false
	}
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	default:
		return 0, false
	}
}

// decodeArguments parses a tool call's JSON arguments. Unparseable input is
// kept under "raw" so the tool can report it.
func decodeArguments(raw string) map[string]interface{} {
	arguments := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return arguments
	}
	if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
		arguments = map[string]interface{}{"raw": raw}
	}
	return arguments
}

// toolCallArguments returns the JSON form of a call's arguments, preferring
// the already-encoded function payload.
func toolCallArguments(tc ToolCall) string {
	if tc.Function != nil && tc.Function.Arguments != "" {
		return tc.Function.Arguments
	}
	if tc.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toolCallName(tc ToolCall) string {
	if tc.Function != nil && tc.Function.Name != "" {
		return tc.Function.Name
	}
	return tc.Name
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ABOUTME: The five built-in transformation rules, each a pure (value, params) -> value
// ABOUTME: function with best-effort semantics: a failed transform keeps the original value.
package resolve

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ruleVariableExtract extracts a named variable from an object by a
// dotted key path, e.g. params["path"] == "user.name".
func ruleVariableExtract(value any, params map[string]any) (any, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return value, nil
	}

	cur := value
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("variable_extract: %q is not an object at segment %q", cur, key)
		}
		next, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("variable_extract: key %q not found", key)
		}
		cur = next
	}
	return cur, nil
}

// ruleFormatString applies "hello {value}" style substitution.
// params["template"] is the format string; "{value}" substitutes the
// whole value, and when value is an object, "{key}" substitutes each of
// its top-level fields.
func ruleFormatString(value any, params map[string]any) (any, error) {
	tpl, _ := params["template"].(string)
	if tpl == "" {
		return value, nil
	}

	out := strings.ReplaceAll(tpl, "{value}", fmt.Sprint(value))
	if obj, ok := value.(map[string]any); ok {
		for k, v := range obj {
			out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
		}
	}
	return out, nil
}

// ruleContentTypeConvert parses a JSON-looking string value into its
// decoded form. Non-string values pass through unchanged; a string that
// doesn't look like JSON (doesn't start with '{' or '[') also passes
// through; a parse failure on a JSON-looking string returns the original
// value unchanged rather than erroring.
func ruleContentTypeConvert(value any, _ map[string]any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return value, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return value, nil
	}
	return decoded, nil
}

// ruleExtractToolResults pulls the "tool_results" field out of a PersonJob
// output object. Values that aren't objects, or objects without that key,
// pass through unchanged.
func ruleExtractToolResults(value any, _ map[string]any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}
	results, ok := obj["tool_results"]
	if !ok {
		return value, nil
	}
	return results, nil
}

// ruleBranchOnCondition is a no-op at runtime: it returns value unchanged.
// The compiler's resolveTransformRules never attaches it to an edge and
// performs no validation based on it.
func ruleBranchOnCondition(value any, _ map[string]any) (any, error) {
	return value, nil
}

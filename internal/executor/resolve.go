package executor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/skeinworks/skein"
)

var placeholderPattern = regexp.MustCompile(`#[TE]\d+`)

// ResolveArguments substitutes #T<n>/#E<n> placeholders in an argument
// string with the recorded results of the referenced tasks. Arguments shaped
// like a JSON object are resolved structurally first, so a substituted value
// never breaks quoting inside the payload; single-quoted pseudo-JSON (a
// frequent model habit) is normalized to double quotes before parsing. The
// remaining textual pass substitutes placeholders anywhere else they appear.
// Inputs without placeholders come back unchanged. References to tasks with
// no recorded result are left as-is.
func ResolveArguments(arguments string, plan *skein.ExecutionPlan) (string, error) {
	resolved := arguments

	trimmed := strings.TrimSpace(resolved)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if structural, ok := resolveJSONArguments(trimmed, plan); ok {
			resolved = structural
		}
	}

	resolved = placeholderPattern.ReplaceAllStringFunc(resolved, func(ref string) string {
		taskID := ref[1:]
		if task, exists := plan.GetTask(taskID); exists {
			if result, done := task.Result(); done {
				return result
			}
		}
		return ref
	})

	return resolved, nil
}

// resolveJSONArguments replaces string values that are a bare placeholder
// reference with the referenced result, keeping the payload valid JSON. A
// payload that does not parse is left to the textual pass.
func resolveJSONArguments(jsonStr string, plan *skein.ExecutionPlan) (string, bool) {
	if strings.Contains(jsonStr, "'") && !strings.Contains(jsonStr, `"`) {
		jsonStr = strings.ReplaceAll(jsonStr, "'", `"`)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return "", false
	}

	for key, value := range parsed {
		str, isString := value.(string)
		if !isString || !placeholderPattern.MatchString(str) {
			continue
		}
		// Whole-value references swap in the raw result; mixed content is
		// handled by the textual pass after re-marshaling.
		if placeholderPattern.FindString(str) == str {
			taskID := str[1:]
			if task, exists := plan.GetTask(taskID); exists {
				if result, done := task.Result(); done {
					parsed[key] = result
				}
			}
		}
	}

	out, err := json.Marshal(parsed)
	if err != nil {
		return "", false
	}
	return string(out), true
}

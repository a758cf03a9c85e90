package catalog

import (
	"fmt"
	"strings"
)

// ValidateStepData evaluates submitted step data against the step definition
// and returns a map of field name to a human-readable reason. An empty map
// means the data passes. All violations are collected in a single pass; the
// function is pure and never mutates its inputs.
//
// Rules, in order:
//   - a field whose display condition (DependsOn) is not met is exempt, even
//     when otherwise required — this mirrors the show/hide behavior of the
//     form layer and avoids false failures on hidden fields;
//   - required fields fail when missing or empty;
//   - conditional fields fail when missing or empty while their trigger holds.
func ValidateStepData(def *StepDefinition, data map[string]interface{}) map[string]string {
	violations := make(map[string]string)

	for _, f := range def.Fields {
		if f.DependsOn != "" && !conditionHolds(f, data) {
			continue
		}

		switch f.Required {
		case Required:
			if isEmpty(data[f.Name]) {
				violations[f.Name] = fmt.Sprintf("%s is required", f.Label)
			}
		case Conditional:
			// Display condition already held (checked above), so the
			// requirement is triggered.
			if isEmpty(data[f.Name]) {
				violations[f.Name] = fmt.Sprintf("%s is required", f.Label)
			}
		}
	}

	return violations
}

// conditionHolds evaluates the DependsOn rule of a field against the
// submitted data. With DependsOnValue set the dependent field must equal it;
// without, any truthy dependent value triggers the condition.
func conditionHolds(f FieldDefinition, data map[string]interface{}) bool {
	dep, ok := data[f.DependsOn]
	if !ok {
		return false
	}
	if f.DependsOnValue != nil {
		return valuesEqual(dep, f.DependsOnValue)
	}
	return isTruthy(dep)
}

func valuesEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	// JSON decoding yields float64 for numbers and string for everything the
	// form serializes as text; compare through their printed form so that
	// catalog literals (int, bool) match submitted values.
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// isEmpty reports whether a submitted value counts as absent. A boolean false
// is a value, not an absence: a required boolean is satisfied by false.
func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

// isTruthy reports whether a value triggers a bare DependsOn condition.
// false, zero, empty string (including "false"/"no") and empty collections
// are falsy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s != "" && s != "false" && s != "no" && s != "0"
	case float64:
		return val != 0
	case int:
		return val != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagnosisDef(t *testing.T) *StepDefinition {
	t.Helper()
	def, err := Get(StepDiagnosis)
	require.NoError(t, err)
	return def
}

func TestValidateStepData_RequiredFields(t *testing.T) {
	def := diagnosisDef(t)

	violations := ValidateStepData(def, map[string]interface{}{})
	assert.Contains(t, violations, "reported_fault")
	assert.Contains(t, violations, "diagnosis_result")

	violations = ValidateStepData(def, map[string]interface{}{
		"reported_fault":   "does not power on",
		"diagnosis_result": "faulty mainboard",
	})
	assert.Empty(t, violations)
}

func TestValidateStepData_WhitespaceOnlyIsEmpty(t *testing.T) {
	def := diagnosisDef(t)

	violations := ValidateStepData(def, map[string]interface{}{
		"reported_fault":   "   ",
		"diagnosis_result": "ok",
	})
	assert.Contains(t, violations, "reported_fault")
	assert.NotContains(t, violations, "diagnosis_result")
}

func TestValidateStepData_ConditionalTriggered(t *testing.T) {
	def := diagnosisDef(t)

	// further_damage_description requires further_damage_found == true.
	violations := ValidateStepData(def, map[string]interface{}{
		"reported_fault":       "noise",
		"diagnosis_result":     "fan",
		"further_damage_found": true,
	})
	assert.Contains(t, violations, "further_damage_description")

	violations = ValidateStepData(def, map[string]interface{}{
		"reported_fault":             "noise",
		"diagnosis_result":           "fan",
		"further_damage_found":       true,
		"further_damage_description": "cracked housing",
	})
	assert.Empty(t, violations)
}

func TestValidateStepData_ConditionalNotTriggered(t *testing.T) {
	def := diagnosisDef(t)

	violations := ValidateStepData(def, map[string]interface{}{
		"reported_fault":       "noise",
		"diagnosis_result":     "fan",
		"further_damage_found": false,
	})
	assert.NotContains(t, violations, "further_damage_description")
}

func TestValidateStepData_ValueMatchedCondition(t *testing.T) {
	def, err := Get(StepCostEstimate)
	require.NoError(t, err)

	base := map[string]interface{}{
		"labor_cost": 120.0,
		"parts_cost": 80.5,
	}

	data := map[string]interface{}{"customer_decision": "rejected"}
	for k, v := range base {
		data[k] = v
	}
	violations := ValidateStepData(def, data)
	assert.Contains(t, violations, "rejection_reason")

	data["customer_decision"] = "approved"
	violations = ValidateStepData(def, data)
	assert.NotContains(t, violations, "rejection_reason")
}

func TestValidateStepData_HiddenRequiredFieldExempt(t *testing.T) {
	// tracking_number on the return shipment step is conditional on carrier;
	// with no carrier submitted the field is hidden and not validated.
	def, err := Get(StepReturnShipment)
	require.NoError(t, err)

	violations := ValidateStepData(def, map[string]interface{}{
		"shipped_date": "2026-03-01",
	})
	assert.Contains(t, violations, "carrier")
	assert.NotContains(t, violations, "tracking_number")
}

func TestValidateStepData_RequiredBooleanFalseIsPresent(t *testing.T) {
	def, err := Get(StepClosure)
	require.NoError(t, err)

	violations := ValidateStepData(def, map[string]interface{}{
		"closed_date":       "2026-03-10",
		"customer_notified": false,
	})
	assert.Empty(t, violations)
}

func TestValidateStepData_CollectsAllViolations(t *testing.T) {
	def, err := Get(StepReception)
	require.NoError(t, err)

	violations := ValidateStepData(def, map[string]interface{}{
		"accessories_included": true,
	})
	assert.Contains(t, violations, "received_date")
	assert.Contains(t, violations, "device_condition")
	assert.Contains(t, violations, "intake_checklist")
	assert.Contains(t, violations, "accessories_list")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(""))
	assert.True(t, isEmpty("  \t"))
	assert.True(t, isEmpty([]interface{}{}))
	assert.True(t, isEmpty(map[string]interface{}{}))
	assert.False(t, isEmpty(false))
	assert.False(t, isEmpty(0.0))
	assert.False(t, isEmpty("x"))
	assert.False(t, isEmpty([]interface{}{"a"}))
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.False(t, isTruthy(""))
	assert.False(t, isTruthy("false"))
	assert.False(t, isTruthy("no"))
	assert.False(t, isTruthy("0"))
	assert.False(t, isTruthy(0.0))
	assert.False(t, isTruthy([]interface{}{}))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy("yes"))
	assert.True(t, isTruthy(1.0))
	assert.True(t, isTruthy([]interface{}{"a"}))
}

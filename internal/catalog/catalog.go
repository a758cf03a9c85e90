package catalog

import (
	"github.com/servicehub/backend/internal/models"
)

// Well-known step numbers of the reference repair process. The repair and
// approval steps are linked by the four-eyes rule: the approval step must be
// completed by a different agent than the repair step. The two loaner steps
// are the only skipped steps that may be reopened, because a loaner can be
// added after the step was initially skipped.
const (
	StepReception      = 1
	StepLoanerShipment = 2
	StepDiagnosis      = 3
	StepCostEstimate   = 4
	StepPartsOrder     = 5
	StepRepair         = 6
	StepApproval       = 7
	StepLoanerReturn   = 8
	StepReturnShipment = 9
	StepClosure        = 10
)

// definitions is the step catalog of the reference device-repair process.
// Step numbers must be contiguous starting at 1; Validate enforces this at
// startup.
var definitions = []StepDefinition{
	{
		StepNumber:  StepReception,
		Name:        "Device Reception",
		Description: "Record the received device and its condition",
		Fields: []FieldDefinition{
			{Name: "received_date", Label: "Received Date", Type: FieldDate, Required: Required},
			{Name: "device_condition", Label: "Device Condition", Type: FieldSelect, Required: Required,
				Options: []string{"new", "good", "worn", "damaged"}},
			{Name: "accessories_included", Label: "Accessories Included", Type: FieldBoolean, Required: Optional},
			{Name: "accessories_list", Label: "Accessories List", Type: FieldTextarea, Required: Conditional,
				DependsOn: "accessories_included"},
			{Name: "reception_photos", Label: "Reception Photos", Type: FieldFile, Required: Optional,
				Multiple: true, Accept: "image/*"},
			{Name: "intake_checklist", Label: "Intake Checklist", Type: FieldChecklist, Required: Required,
				Items: []string{"serial verified", "warranty checked", "customer informed"}},
		},
	},
	{
		StepNumber:  StepLoanerShipment,
		Name:        "Loaner Shipment",
		Description: "Ship a loaner device to the customer while theirs is in service",
		IsOptional:  true,
		Fields: []FieldDefinition{
			{Name: "loaner_serial_number", Label: "Loaner Serial Number", Type: FieldText, Required: Required},
			{Name: "shipped_date", Label: "Shipped Date", Type: FieldDate, Required: Required},
			{Name: "carrier", Label: "Carrier", Type: FieldSelect, Required: Optional,
				Options: []string{"dhl", "ups", "fedex", "courier"}},
			{Name: "tracking_number", Label: "Tracking Number", Type: FieldText, Required: Conditional,
				DependsOn: "carrier"},
		},
	},
	{
		StepNumber:  StepDiagnosis,
		Name:        "Diagnosis",
		Description: "Document the fault analysis",
		Fields: []FieldDefinition{
			{Name: "reported_fault", Label: "Reported Fault", Type: FieldTextarea, Required: Required},
			{Name: "diagnosis_result", Label: "Diagnosis Result", Type: FieldTextarea, Required: Required},
			{Name: "further_damage_found", Label: "Further Damage Found", Type: FieldBoolean, Required: Optional},
			{Name: "further_damage_description", Label: "Damage Description", Type: FieldTextarea,
				Required: Conditional, DependsOn: "further_damage_found", DependsOnValue: true},
			{Name: "estimated_hours", Label: "Estimated Work Hours", Type: FieldNumber, Required: Optional},
			{Name: "diagnosis_files", Label: "Diagnosis Files", Type: FieldFile, Required: Optional, Multiple: true},
		},
	},
	{
		StepNumber:  StepCostEstimate,
		Name:        "Cost Estimate",
		Description: "Prepare the estimate and record the customer decision",
		Fields: []FieldDefinition{
			{Name: "labor_cost", Label: "Labor Cost", Type: FieldNumber, Required: Required},
			{Name: "parts_cost", Label: "Parts Cost", Type: FieldNumber, Required: Required},
			{Name: "customer_decision", Label: "Customer Decision", Type: FieldSelect, Required: Required,
				Options: []string{"approved", "rejected", "warranty"}},
			{Name: "rejection_reason", Label: "Rejection Reason", Type: FieldTextarea, Required: Conditional,
				DependsOn: "customer_decision", DependsOnValue: "rejected"},
			{Name: "estimate_document", Label: "Estimate Document", Type: FieldFile, Required: Optional,
				Accept: "application/pdf"},
		},
	},
	{
		StepNumber:  StepPartsOrder,
		Name:        "Parts Ordering",
		Description: "Order the replacement parts required for the repair",
		IsOptional:  true,
		Fields: []FieldDefinition{
			{Name: "parts", Label: "Ordered Parts", Type: FieldPartsTable, Required: Required,
				Columns: []TableColumn{
					{Name: "part_number", Label: "Part Number", Type: FieldText},
					{Name: "description", Label: "Description", Type: FieldText},
					{Name: "quantity", Label: "Quantity", Type: FieldNumber},
					{Name: "unit_price", Label: "Unit Price", Type: FieldNumber},
				}},
			{Name: "expected_delivery", Label: "Expected Delivery", Type: FieldDate, Required: Optional},
		},
	},
	{
		StepNumber:  StepRepair,
		Name:        "Repair",
		Description: "Perform the correction and write the technical report",
		Fields: []FieldDefinition{
			{Name: "work_performed", Label: "Work Performed", Type: FieldTextarea, Required: Required},
			{Name: "technical_report", Label: "Technical Report", Type: FieldTextarea, Required: Required},
			{Name: "parts_replaced", Label: "Parts Replaced", Type: FieldPartsTable, Required: Optional,
				Columns: []TableColumn{
					{Name: "part_number", Label: "Part Number", Type: FieldText},
					{Name: "serial_old", Label: "Old Serial", Type: FieldText},
					{Name: "serial_new", Label: "New Serial", Type: FieldText},
				}},
			{Name: "repair_completed_date", Label: "Repair Completed", Type: FieldDate, Required: Required},
			{Name: "repair_photos", Label: "Repair Photos", Type: FieldFile, Required: Optional,
				Multiple: true, Accept: "image/*"},
		},
	},
	{
		StepNumber:  StepApproval,
		Name:        "Quality Approval",
		Description: "Independent review of the repair work",
		Fields: []FieldDefinition{
			{Name: "test_checklist", Label: "Test Checklist", Type: FieldChecklist, Required: Required,
				Items: []string{"power-on test", "functional test", "cosmetic inspection", "data integrity"}},
			{Name: "approval_result", Label: "Approval Result", Type: FieldSelect, Required: Required,
				Options: []string{"approved", "rework_required"}},
			{Name: "rework_notes", Label: "Rework Notes", Type: FieldTextarea, Required: Conditional,
				DependsOn: "approval_result", DependsOnValue: "rework_required"},
		},
	},
	{
		StepNumber:  StepLoanerReturn,
		Name:        "Loaner Return",
		Description: "Record the return of the loaner device",
		IsOptional:  true,
		Fields: []FieldDefinition{
			{Name: "returned_date", Label: "Returned Date", Type: FieldDate, Required: Required},
			{Name: "loaner_condition", Label: "Loaner Condition", Type: FieldSelect, Required: Required,
				Options: []string{"good", "worn", "damaged"}},
			{Name: "damage_notes", Label: "Damage Notes", Type: FieldTextarea, Required: Conditional,
				DependsOn: "loaner_condition", DependsOnValue: "damaged"},
		},
	},
	{
		StepNumber:  StepReturnShipment,
		Name:        "Return Shipment",
		Description: "Ship the repaired device back to the customer",
		Fields: []FieldDefinition{
			{Name: "shipped_date", Label: "Shipped Date", Type: FieldDate, Required: Required},
			{Name: "carrier", Label: "Carrier", Type: FieldSelect, Required: Required,
				Options: []string{"dhl", "ups", "fedex", "courier", "customer_pickup"}},
			{Name: "tracking_number", Label: "Tracking Number", Type: FieldText, Required: Conditional,
				DependsOn: "carrier"},
			{Name: "shipping_documents", Label: "Shipping Documents", Type: FieldFile, Required: Optional,
				Multiple: true},
		},
	},
	{
		StepNumber:  StepClosure,
		Name:        "Closure",
		Description: "Close the service workflow",
		Fields: []FieldDefinition{
			{Name: "closed_date", Label: "Closed Date", Type: FieldDate, Required: Required},
			{Name: "customer_notified", Label: "Customer Notified", Type: FieldBoolean, Required: Required},
			{Name: "closing_notes", Label: "Closing Notes", Type: FieldTextarea, Required: Optional},
		},
	},
}

// Definitions returns the ordered step catalog.
func Definitions() []StepDefinition {
	return definitions
}

// StepCount returns the number of steps in the catalog.
func StepCount() int {
	return len(definitions)
}

// Get returns the definition for the given step number.
func Get(stepNumber int) (*StepDefinition, error) {
	if stepNumber < 1 || stepNumber > len(definitions) {
		return nil, models.NewNotFoundError("step %d does not exist", stepNumber)
	}
	return &definitions[stepNumber-1], nil
}

// ReopenableWhenSkipped reports whether a skipped step may be reopened. This
// is deliberately a named exception for the two loaner steps rather than a
// schema flag: a loaner can still be added after the shipment step was
// skipped, and its return step follows.
func ReopenableWhenSkipped(stepNumber int) bool {
	return stepNumber == StepLoanerShipment || stepNumber == StepLoanerReturn
}

// Validate checks the catalog for structural errors: step numbers must be
// contiguous starting at 1, field names unique within a step, dependency
// references resolvable, and type-specific extras present where the field
// type demands them. A failure here is fatal at startup.
func Validate() error {
	if len(definitions) == 0 {
		return models.NewConfigurationError("step catalog is empty")
	}
	for i, def := range definitions {
		if def.StepNumber != i+1 {
			return models.NewConfigurationError(
				"step catalog has gap: position %d holds step number %d", i+1, def.StepNumber)
		}
		if def.Name == "" {
			return models.NewConfigurationError("step %d has no name", def.StepNumber)
		}
		seen := make(map[string]bool, len(def.Fields))
		for _, f := range def.Fields {
			if seen[f.Name] {
				return models.NewConfigurationError(
					"step %d has duplicate field %q", def.StepNumber, f.Name)
			}
			seen[f.Name] = true
			if err := validateField(def.StepNumber, f); err != nil {
				return err
			}
		}
		for _, f := range def.Fields {
			if f.DependsOn == "" {
				continue
			}
			if f.DependsOn == f.Name {
				return models.NewConfigurationError(
					"step %d field %q depends on itself", def.StepNumber, f.Name)
			}
			if !seen[f.DependsOn] {
				return models.NewConfigurationError(
					"step %d field %q depends on unknown field %q", def.StepNumber, f.Name, f.DependsOn)
			}
		}
	}
	return nil
}

func validateField(stepNumber int, f FieldDefinition) error {
	switch f.Type {
	case FieldSelect:
		if len(f.Options) == 0 {
			return models.NewConfigurationError(
				"step %d select field %q has no options", stepNumber, f.Name)
		}
	case FieldPartsTable:
		if len(f.Columns) == 0 {
			return models.NewConfigurationError(
				"step %d parts_table field %q has no columns", stepNumber, f.Name)
		}
	case FieldChecklist:
		if len(f.Items) == 0 {
			return models.NewConfigurationError(
				"step %d checklist field %q has no items", stepNumber, f.Name)
		}
	case FieldText, FieldTextarea, FieldDate, FieldBoolean, FieldNumber, FieldFile:
		// No extras required.
	default:
		return models.NewConfigurationError(
			"step %d field %q has unknown type %q", stepNumber, f.Name, f.Type)
	}
	if f.Required == Conditional && f.DependsOn == "" {
		return models.NewConfigurationError(
			"step %d conditional field %q has no depends_on", stepNumber, f.Name)
	}
	switch f.Required {
	case Required, Optional, Conditional:
	default:
		return models.NewConfigurationError(
			"step %d field %q has unknown requirement %q", stepNumber, f.Name, f.Required)
	}
	return nil
}

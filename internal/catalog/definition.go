package catalog

// FieldType enumerates the supported field kinds of a step schema. The type
// tag selects which optional sub-schema (Options, Columns, Items, file
// settings) is meaningful on a FieldDefinition.
type FieldType string

const (
	FieldText       FieldType = "text"
	FieldTextarea   FieldType = "textarea"
	FieldDate       FieldType = "date"
	FieldSelect     FieldType = "select"
	FieldBoolean    FieldType = "boolean"
	FieldNumber     FieldType = "number"
	FieldFile       FieldType = "file"
	FieldPartsTable FieldType = "parts_table"
	FieldChecklist  FieldType = "checklist"
)

// Requirement describes whether a field must be filled before its step can be
// completed.
type Requirement string

const (
	Required    Requirement = "required"
	Optional    Requirement = "optional"
	Conditional Requirement = "conditional"
)

// TableColumn describes one column of a parts_table field.
type TableColumn struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// FieldDefinition describes one field of a step schema.
//
// DependsOn names another field of the same step. When set, it serves two
// purposes: it is the display condition for the field (the field is hidden,
// and therefore exempt from validation, while the condition does not hold),
// and for Conditional fields it is the trigger of the requirement. If
// DependsOnValue is set the condition holds when the dependent field equals
// it; otherwise the condition holds whenever the dependent field is truthy.
type FieldDefinition struct {
	Name           string      `json:"name"`
	Label          string      `json:"label"`
	Type           FieldType   `json:"type"`
	Required       Requirement `json:"required"`
	DependsOn      string      `json:"depends_on,omitempty"`
	DependsOnValue interface{} `json:"depends_on_value,omitempty"`

	// Type-specific extras.
	Options  []string      `json:"options,omitempty"`  // select
	Columns  []TableColumn `json:"columns,omitempty"`  // parts_table
	Items    []string      `json:"items,omitempty"`    // checklist
	Multiple bool          `json:"multiple,omitempty"` // file
	Accept   string        `json:"accept,omitempty"`   // file
}

// StepDefinition describes one step of the service process. Definitions are
// immutable at runtime; changing the catalog is a deployment, not an API call.
type StepDefinition struct {
	StepNumber  int               `json:"step_number"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	IsOptional  bool              `json:"is_optional"`
	Fields      []FieldDefinition `json:"fields"`
}

// Field returns the definition of the named field, if present.
func (d *StepDefinition) Field(name string) (*FieldDefinition, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

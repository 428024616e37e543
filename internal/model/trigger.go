package model

// TriggerField names the transaction field a trigger inspects.
type TriggerField string

// Trigger field constants.
const (
	FieldDescription       TriggerField = "description"
	FieldCounterName       TriggerField = "counter_name"
	FieldCounterIBAN       TriggerField = "counter_iban"
	FieldOwnIBAN           TriggerField = "own_iban"
	FieldAmount            TriggerField = "amount"
	FieldDate              TriggerField = "date"
	FieldTransactionType   TriggerField = "transaction_type"
	FieldCategory          TriggerField = "category"
	FieldTag               TriggerField = "tag"
	FieldNotes             TriggerField = "notes"
	FieldExternalID        TriggerField = "external_id"
	FieldInternalReference TriggerField = "internal_reference"
	FieldCurrency          TriggerField = "currency"
)

// FieldKind groups trigger fields by the canonical value type the
// evaluator extracts for them.
type FieldKind int

// Field kinds.
const (
	KindText FieldKind = iota
	KindDecimal
	KindDate
	KindTag
)

// fieldKinds maps every trigger field to its canonical value kind.
var fieldKinds = map[TriggerField]FieldKind{
	FieldDescription:       KindText,
	FieldCounterName:       KindText,
	FieldCounterIBAN:       KindText,
	FieldOwnIBAN:           KindText,
	FieldAmount:            KindDecimal,
	FieldDate:              KindDate,
	FieldTransactionType:   KindText,
	FieldCategory:          KindText,
	FieldTag:               KindTag,
	FieldNotes:             KindText,
	FieldExternalID:        KindText,
	FieldInternalReference: KindText,
	FieldCurrency:          KindText,
}

// Kind returns the canonical value kind for the field. Unknown fields
// report KindText; the evaluator rejects them separately.
func (f TriggerField) Kind() FieldKind {
	if k, ok := fieldKinds[f]; ok {
		return k
	}
	return KindText
}

// Valid reports whether the field is a known trigger field.
func (f TriggerField) Valid() bool {
	_, ok := fieldKinds[f]
	return ok
}

// TriggerOperator names the comparison a trigger applies to the
// extracted field value.
type TriggerOperator string

// Trigger operator constants.
const (
	OpContains     TriggerOperator = "contains"
	OpNotContains  TriggerOperator = "not_contains"
	OpStartsWith   TriggerOperator = "starts_with"
	OpEndsWith     TriggerOperator = "ends_with"
	OpEquals       TriggerOperator = "equals"
	OpNotEquals    TriggerOperator = "not_equals"
	OpMatchesRegex TriggerOperator = "matches_regex"
	OpGreaterThan  TriggerOperator = "greater_than"
	OpLessThan     TriggerOperator = "less_than"
	OpAtLeast      TriggerOperator = "at_least"
	OpAtMost       TriggerOperator = "at_most"
	OpBetween      TriggerOperator = "between"
	OpBefore       TriggerOperator = "before"
	OpAfter        TriggerOperator = "after"
	OpOn           TriggerOperator = "on"
)

// operatorsByKind lists the operators compatible with each field kind.
// Compatibility is enforced at rule-authoring time, not at evaluation time.
var operatorsByKind = map[FieldKind][]TriggerOperator{
	KindText: {
		OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpEquals, OpNotEquals, OpMatchesRegex,
	},
	KindDecimal: {
		OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpAtLeast, OpAtMost, OpBetween,
	},
	KindDate: {
		OpBefore, OpAfter, OpOn, OpEquals, OpBetween,
	},
	KindTag: {
		OpContains, OpNotContains, OpEquals, OpNotEquals, OpMatchesRegex,
	},
}

// ValidOperators returns the operators a rule author may combine with
// the given field.
func ValidOperators(field TriggerField) []TriggerOperator {
	ops := operatorsByKind[field.Kind()]
	return append([]TriggerOperator(nil), ops...)
}

// CompatibleOperator reports whether op may be applied to field.
func CompatibleOperator(field TriggerField, op TriggerOperator) bool {
	for _, candidate := range operatorsByKind[field.Kind()] {
		if candidate == op {
			return true
		}
	}
	return false
}

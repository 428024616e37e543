package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldKinds(t *testing.T) {
	assert.Equal(t, KindText, FieldDescription.Kind())
	assert.Equal(t, KindText, FieldCurrency.Kind())
	assert.Equal(t, KindDecimal, FieldAmount.Kind())
	assert.Equal(t, KindDate, FieldDate.Kind())
	assert.Equal(t, KindTag, FieldTag.Kind())
}

func TestCompatibleOperator(t *testing.T) {
	tests := []struct {
		field TriggerField
		op    TriggerOperator
		want  bool
	}{
		{FieldDescription, OpContains, true},
		{FieldDescription, OpMatchesRegex, true},
		{FieldDescription, OpGreaterThan, false},
		{FieldDescription, OpBefore, false},
		{FieldAmount, OpGreaterThan, true},
		{FieldAmount, OpBetween, true},
		{FieldAmount, OpEquals, true},
		{FieldAmount, OpContains, false},
		{FieldDate, OpBefore, true},
		{FieldDate, OpOn, true},
		{FieldDate, OpBetween, true},
		{FieldDate, OpStartsWith, false},
		{FieldTag, OpEquals, true},
		{FieldTag, OpMatchesRegex, true},
		{FieldTag, OpBefore, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CompatibleOperator(tt.field, tt.op),
			"%s %s", tt.field, tt.op)
	}
}

func TestValidOperators_CoversEveryField(t *testing.T) {
	fields := []TriggerField{
		FieldDescription, FieldCounterName, FieldCounterIBAN, FieldOwnIBAN,
		FieldAmount, FieldDate, FieldTransactionType, FieldCategory,
		FieldTag, FieldNotes, FieldExternalID, FieldInternalReference,
		FieldCurrency,
	}

	for _, field := range fields {
		assert.True(t, field.Valid(), "field %s", field)
		assert.NotEmpty(t, ValidOperators(field), "field %s", field)
	}

	assert.False(t, TriggerField("balance").Valid())
}

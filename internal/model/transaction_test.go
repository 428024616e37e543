package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveCategory(t *testing.T) {
	txn := Transaction{Category: "Groceries"}
	assert.Equal(t, "Groceries", txn.EffectiveCategory())

	txn.CategoryOverride = "Household"
	assert.Equal(t, "Household", txn.EffectiveCategory())
}

func TestTagHelpers(t *testing.T) {
	txn := Transaction{Tags: []string{"groceries"}}

	assert.True(t, txn.HasTag("GROCERIES"))
	assert.False(t, txn.HasTag("salary"))

	assert.False(t, txn.AddTag("Groceries"), "case-insensitive duplicate")
	assert.False(t, txn.AddTag(""))
	assert.True(t, txn.AddTag("daily"))
	assert.Equal(t, []string{"groceries", "daily"}, txn.Tags)

	assert.True(t, txn.RemoveTag("GROCERIES"))
	assert.False(t, txn.RemoveTag("ghost"))
	assert.Equal(t, []string{"daily"}, txn.Tags)
}

func TestClone(t *testing.T) {
	original := &Transaction{
		ID:   "txn-1",
		Tags: []string{"a", "b"},
	}

	clone := original.Clone()
	clone.ID = "txn-2"
	clone.Tags[0] = "mutated"
	clone.Tags = append(clone.Tags, "c")

	assert.Equal(t, "txn-1", original.ID)
	assert.Equal(t, []string{"a", "b"}, original.Tags)
}

func TestValidTransactionType(t *testing.T) {
	assert.True(t, ValidTransactionType("withdrawal"))
	assert.True(t, ValidTransactionType("deposit"))
	assert.True(t, ValidTransactionType("transfer"))
	assert.False(t, ValidTransactionType("loan"))
	assert.False(t, ValidTransactionType(""))
}

package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
	"github.com/ledgersmith/rulekit/internal/testutil"
)

func testGroup(name string, order int) *model.RuleGroup {
	return &model.RuleGroup{
		Name:           name,
		Description:    "test group",
		ExecutionOrder: order,
		IsActive:       true,
		Rules: []model.Rule{
			{
				Name:         "groceries",
				IsActive:     true,
				TriggerLogic: model.LogicAll,
				Triggers: []model.RuleTrigger{
					{Field: model.FieldDescription, Operator: model.OpContains, Value: "albert heijn", SortOrder: 0},
					{Field: model.FieldAmount, Operator: model.OpLessThan, Value: "0", SortOrder: 1},
				},
				Actions: []model.RuleAction{
					{Type: model.ActionSetCategory, Value: "Groceries", SortOrder: 0},
					{Type: model.ActionAddTag, Value: "auto", SortOrder: 1},
				},
			},
			{
				Name:           "sweep",
				IsActive:       true,
				TriggerLogic:   model.LogicAny,
				StopProcessing: true,
				Triggers: []model.RuleTrigger{
					{Field: model.FieldDescription, Operator: model.OpContains, Value: "sweep", IsInverted: true},
				},
				Actions: []model.RuleAction{
					{Type: model.ActionDeleteTransaction, StopProcessingAfter: true},
				},
			},
		},
	}
}

func TestSaveRuleGroup_RoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	group := testGroup("imports", 1)
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, group))
	require.NotEmpty(t, group.ID)

	loaded, err := db.Storage.GetRuleGroup(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, group.Name, loaded.Name)
	assert.Equal(t, group.ExecutionOrder, loaded.ExecutionOrder)
	assert.True(t, loaded.IsActive)
	require.Len(t, loaded.Rules, 2)

	first := loaded.Rules[0]
	assert.Equal(t, "groceries", first.Name)
	assert.Equal(t, model.LogicAll, first.TriggerLogic)
	require.Len(t, first.Triggers, 2)
	assert.Equal(t, model.FieldDescription, first.Triggers[0].Field)
	assert.Equal(t, "albert heijn", first.Triggers[0].Value)
	require.Len(t, first.Actions, 2)
	assert.Equal(t, model.ActionSetCategory, first.Actions[0].Type)

	second := loaded.Rules[1]
	assert.True(t, second.StopProcessing)
	assert.True(t, second.Triggers[0].IsInverted)
	assert.True(t, second.Actions[0].StopProcessingAfter)
}

func TestSaveRuleGroup_ReplaceRules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	group := testGroup("imports", 1)
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, group))

	group.Rules = group.Rules[:1]
	group.Rules[0].Name = "renamed"
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, group))

	loaded, err := db.Storage.GetRuleGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Rules, 1)
	assert.Equal(t, "renamed", loaded.Rules[0].Name)
}

func TestSaveRuleGroup_RejectsInvalidRules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	group := testGroup("bad", 1)
	group.Rules[0].TriggerLogic = "sometimes"

	err := db.Storage.SaveRuleGroup(ctx, group)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trigger logic")
}

func TestGetActiveRuleGroups_FiltersAndOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	late := testGroup("late", 5)
	early := testGroup("early", 1)
	inactive := testGroup("off", 0)
	inactive.IsActive = false

	require.NoError(t, db.Storage.SaveRuleGroup(ctx, late))
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, early))
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, inactive))

	active, err := db.Storage.GetActiveRuleGroups(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "early", active[0].Name)
	assert.Equal(t, "late", active[1].Name)

	all, err := db.Storage.GetRuleGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRuleOrderSurvivesRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	group := &model.RuleGroup{Name: "ordered", IsActive: true}
	for _, name := range []string{"first", "second", "third"} {
		group.Rules = append(group.Rules, model.Rule{
			Name:         name,
			IsActive:     true,
			TriggerLogic: model.LogicAll,
		})
	}
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, group))

	loaded, err := db.Storage.GetRuleGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Rules, 3)
	assert.Equal(t, "first", loaded.Rules[0].Name)
	assert.Equal(t, "second", loaded.Rules[1].Name)
	assert.Equal(t, "third", loaded.Rules[2].Name)
}

func TestDeleteRuleGroup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	group := testGroup("doomed", 1)
	require.NoError(t, db.Storage.SaveRuleGroup(ctx, group))
	require.NoError(t, db.Storage.DeleteRuleGroup(ctx, group.ID))

	_, err := db.Storage.GetRuleGroup(ctx, group.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	// Cascade: nothing left for the engine to load.
	active, err := db.Storage.GetActiveRuleGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDeleteRuleGroup_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	err := db.Storage.DeleteRuleGroup(context.Background(), "no-such-group")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetRuleGroup_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, err := db.Storage.GetRuleGroup(context.Background(), "  ")
	require.Error(t, err)
}

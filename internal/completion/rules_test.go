package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/kirana/internal/policy"
)

func testPrompt(message string, history ...string) string {
	var b strings.Builder
	b.WriteString("You are a store assistant.\n\n")
	b.WriteString(SectionCatalog + "\n")
	b.WriteString("g-s-1: Tata Salt Lite (1kg) - ₹28\n")
	b.WriteString("g-r-2: Daawat Basmati Rice (5kg) - ₹650\n")
	b.WriteString("d-m-1: Amul Taaza Milk (1L) - ₹54\n\n")
	b.WriteString(SectionHistory + "\n")
	for _, h := range history {
		b.WriteString(h + "\n")
	}
	b.WriteString("\n" + SectionMessage + " " + fmt.Sprintf("%q", message) + "\n\n")
	b.WriteString(SectionOrdering + "\n")
	b.WriteString("1. " + CapLabel + " never exceed 5 of any item.\n")
	return b.String()
}

func runRules(t *testing.T, prompt string) ruleResult {
	t.Helper()
	raw, err := NewRulesClient(policy.DefaultOrdering()).Complete(context.Background(), prompt, nil)
	require.NoError(t, err)

	var out ruleResult
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	require.NotNil(t, out.Items)
	return out
}

func TestRulesConvertsKilogramsToPacks(t *testing.T) {
	out := runRules(t, testPrompt("I need 2kg salt", "USER: I need 2kg salt"))
	assert.Equal(t, []ruleItem{{ItemID: "g-s-1", Quantity: 2}}, out.Items)
	assert.Contains(t, out.ResponseText, "Added 2 × Tata Salt Lite (1kg).")
	assert.False(t, out.IntentToPay)
}

func TestRulesRefusesOverCap(t *testing.T) {
	out := runRules(t, testPrompt("Add 20kg salt", "USER: Add 20kg salt"))
	assert.Empty(t, out.Items)
	assert.Contains(t, out.ResponseText, "at most 5")
}

func TestRulesDoesNotDuplicateConfirmedItems(t *testing.T) {
	out := runRules(t, testPrompt("2 salt",
		"USER: 2 salt",
		"ASSISTANT: Added 2 × Tata Salt Lite (1kg). Anything else?",
		"USER: 2 salt",
	))
	assert.Empty(t, out.Items)
	assert.Contains(t, out.ResponseText, "You already confirmed 2 × Tata Salt Lite (1kg) earlier.")
}

func TestRulesCapNoticeQuotesTheRequestedQuantity(t *testing.T) {
	out := runRules(t, testPrompt("give me 20kg salt",
		"USER: 1 salt",
		"ASSISTANT: Added 1 × Tata Salt Lite (1kg). Anything else?",
		"USER: give me 20kg salt",
	))
	assert.Empty(t, out.Items)
	assert.Contains(t, out.ResponseText, "I haven't added 20 of Tata Salt Lite")
	assert.NotContains(t, out.ResponseText, "added 19")
}

func TestRulesRevisionAddsOnlyTheDifference(t *testing.T) {
	out := runRules(t, testPrompt("make it 3 salt",
		"USER: 2 salt",
		"ASSISTANT: Added 2 × Tata Salt Lite (1kg). Anything else?",
		"USER: make it 3 salt",
	))
	assert.Equal(t, []ruleItem{{ItemID: "g-s-1", Quantity: 1}}, out.Items)
}

func TestRulesOneMoreUsesLastMentionedItem(t *testing.T) {
	out := runRules(t, testPrompt("add one more",
		"USER: 2 salt",
		"ASSISTANT: Added 2 × Tata Salt Lite (1kg). Anything else?",
		"USER: add one more",
	))
	assert.Equal(t, []ruleItem{{ItemID: "g-s-1", Quantity: 1}}, out.Items)
}

func TestRulesCheckoutIntent(t *testing.T) {
	out := runRules(t, testPrompt("that's all, let's pay", "USER: that's all, let's pay"))
	assert.True(t, out.IntentToPay)
	assert.Empty(t, out.Items)
}

func TestRulesNegatedOrQuestionedCheckoutIsNotIntent(t *testing.T) {
	for _, msg := range []string{
		"I don't want to checkout yet, add 2 salt",
		"how do I check out the new items?",
		"no more salt than 2 please",
	} {
		out := runRules(t, testPrompt(msg, "USER: "+msg))
		assert.Falsef(t, out.IntentToPay, "IntentToPay for %q", msg)
	}

	out := runRules(t, testPrompt("I don't want to checkout yet, add 2 salt", "USER: I don't want to checkout yet, add 2 salt"))
	assert.Equal(t, []ruleItem{{ItemID: "g-s-1", Quantity: 2}}, out.Items)
}

func TestRulesAsksForMissingQuantity(t *testing.T) {
	out := runRules(t, testPrompt("namak chahiye", "USER: namak chahiye"))
	assert.Empty(t, out.Items)
	assert.Equal(t, "How much Tata Salt Lite (1kg) do you need?", out.ResponseText)
}

func TestRulesRejectsPartialPacks(t *testing.T) {
	out := runRules(t, testPrompt("3kg rice", "USER: 3kg rice"))
	assert.Empty(t, out.Items)
	assert.Contains(t, out.ResponseText, "How many packs")
}

func TestRulesMultipleItemsInOneMessage(t *testing.T) {
	out := runRules(t, testPrompt("2 salt and 2 litres milk", "USER: 2 salt and 2 litres milk"))
	assert.Equal(t, []ruleItem{
		{ItemID: "g-s-1", Quantity: 2},
		{ItemID: "d-m-1", Quantity: 2},
	}, out.Items)
}

func TestRulesUnknownProduct(t *testing.T) {
	out := runRules(t, testPrompt("do you have paneer?", "USER: do you have paneer?"))
	assert.Empty(t, out.Items)
	assert.Contains(t, out.ResponseText, "couldn't find")
}

func TestRulesRejectsUnreadablePrompt(t *testing.T) {
	_, err := NewRulesClient(policy.DefaultOrdering()).Complete(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrPromptShape)
}

func TestRulesHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRulesClient(policy.DefaultOrdering()).Complete(ctx, testPrompt("2 salt"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

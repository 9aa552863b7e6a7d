package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/completion"
	"github.com/antoniostano/kirana/internal/conversation"
	"github.com/antoniostano/kirana/internal/policy"
)

const persona = `You are Kiyara, the friendly multilingual Kirana assistant for a neighborhood store.

CORE RULE - LANGUAGE MIRRORING:
- If the user speaks in English, respond ONLY in English.
- If the user speaks in Hindi (Devanagari or Roman script), respond ONLY in Hindi/Hinglish.
- If the user speaks in Gujarati, respond ONLY in Gujarati.
- If the user uses a mix (Hinglish), you MUST use the same mix.
- Match the user's tone and level of formality.`

// BuildPrompt renders the instruction block, history, new message and catalog.
func BuildPrompt(message string, entries []catalog.Entry, history []conversation.Turn, ordering policy.Ordering) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	b.WriteString(completion.SectionHistory + "\n")
	for _, t := range history {
		b.WriteString(historyLine(t))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	b.WriteString(completion.SectionMessage + " " + strconv.Quote(message) + "\n\n")

	b.WriteString(completion.SectionCatalog + "\n")
	for _, e := range entries {
		b.WriteString(CatalogLine(e))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	limit := ordering.Cap()
	b.WriteString(completion.SectionOrdering + "\n")
	b.WriteString("1. QUANTITY LOCK: If the user mentions a product but no quantity (e.g. \"Muje doodh chahiye\" or \"I need milk\"), DO NOT add it. Ask in their language how much they need and return an empty items array.\n")
	fmt.Fprintf(&b, "2. %s at most %d units (or kg) of any single item per order. If a request is over %d, do not add that item at all; explain the limit and suggest placing a second order for the rest.\n", completion.CapLabel, limit, limit)
	b.WriteString("3. PREVENT DUPLICATES: Check the history. If a quantity was already confirmed, do not add it again. Only add when the user asks for more (\"add one more\") or revises the quantity (\"make it 3kg\"), and then only the difference.\n")
	b.WriteString("4. ADDITION CONFIRMATION: Only populate items for quantities the user supplied or confirmed in this message (including \"yes\" to a specific suggestion you made). Quantities are whole packs of the listed unit. Use only item ids from the catalog above.\n\n")

	b.WriteString(completion.SectionCheckout + "\n")
	b.WriteString("- Set intentToPay to true ONLY if the user says they are finished with the whole order (e.g. \"That's all\", \"Pay karna hai\", \"Checkout\").\n\n")
	b.WriteString("Return ONLY valid JSON.")
	return b.String()
}

// CatalogLine formats one entry as "id: name (unit) - ₹price".
func CatalogLine(e catalog.Entry) string {
	return fmt.Sprintf("%s: %s (%s) - ₹%s", e.ID, e.Name, e.Unit, strconv.FormatFloat(e.Price, 'f', -1, 64))
}

func historyLine(t conversation.Turn) string {
	prefix := completion.HistoryAssistantPrefix
	if t.Role == conversation.RoleUser {
		prefix = completion.HistoryUserPrefix
	}
	return prefix + " " + strings.Join(strings.Fields(t.Text), " ")
}

// ResponseSchema is the shape every backend is asked to produce.
func ResponseSchema() *completion.Schema {
	return &completion.Schema{
		Type: completion.TypeObject,
		Properties: map[string]*completion.Schema{
			"items": {
				Type: completion.TypeArray,
				Items: &completion.Schema{
					Type: completion.TypeObject,
					Properties: map[string]*completion.Schema{
						"itemId":   {Type: completion.TypeString},
						"quantity": {Type: completion.TypeNumber},
					},
					Required: []string{"itemId", "quantity"},
				},
			},
			"responseText": {Type: completion.TypeString},
			"intentToPay":  {Type: completion.TypeBoolean},
		},
		Required: []string{"items", "responseText", "intentToPay"},
	}
}

package completion

// Section headers shared by the prompt builder and the rules backend that reads prompts back.
const (
	SectionHistory  = "CONVERSATION HISTORY:"
	SectionMessage  = "NEW USER MESSAGE:"
	SectionCatalog  = "AVAILABLE CATALOG:"
	SectionOrdering = "STRICT ORDERING LOGIC:"
	SectionCheckout = "CHECKOUT LOGIC:"

	// CapLabel prefixes the per-item cap rule; the number follows on the same line.
	CapLabel = "PER-ITEM CAP:"

	HistoryUserPrefix      = "USER:"
	HistoryAssistantPrefix = "ASSISTANT:"
)

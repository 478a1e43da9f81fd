package domain

// ============================================================
// Assistant
// ============================================================

// MaxAssistantQuery bounds the length of an assistant question, in bytes.
const MaxAssistantQuery = 2000

// AssistantContextSize is how many recent records go to the agent.
const AssistantContextSize = 100

// AssistantRequest is the body of POST /api/v1/assistant.
type AssistantRequest struct {
	Query string `json:"query"`
}

// AssistantResponse is what the dashboard receives back.
type AssistantResponse struct {
	Answer string `json:"answer"`
}

// AgentTransaction is one ledger record as the agent sees it.
type AgentTransaction struct {
	Date     string  `json:"fecha"`
	Amount   float64 `json:"monto"`
	Kind     Kind    `json:"tipo"`
	Category *string `json:"categoria,omitempty"`
}

// AgentContext is the financial picture sent along with a question.
type AgentContext struct {
	RecentTransactions []AgentTransaction `json:"recent_transactions"`
	Totals             Totals             `json:"totals"`
	Categories         []CategoryTotal    `json:"categories"`
}

// AgentRequest is the body of POST {agent}/v1/chat.
type AgentRequest struct {
	Query   string       `json:"query"`
	Subject Subject      `json:"subject"`
	Context AgentContext `json:"context"`
}

// AgentResponse is the agent's answer. Only Answer is required.
type AgentResponse struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources,omitempty"`
	TokensUsed int      `json:"tokens_used,omitempty"`
}

package composer

// Mode is a chat persona selecting the system prompt for a conversation.
type Mode struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"-"`
}

var modes = []Mode{
	{
		ID:          "assistant",
		Name:        "General Assistant",
		Description: "Helpful AI assistant for general questions",
		SystemPrompt: "You are a helpful AI assistant. You provide clear, accurate, and helpful " +
			"responses to user questions. You maintain context throughout the conversation " +
			"and can engage in multi-turn dialogue effectively.",
	},
	{
		ID:          "developer",
		Name:        "Developer Assistant",
		Description: "Expert coding and technical support",
		SystemPrompt: "You are an expert software developer and coding assistant. You help with " +
			"programming questions, code review, debugging, and technical explanations. " +
			"You provide code examples and best practices.",
	},
	{
		ID:          "support",
		Name:        "Customer Support",
		Description: "Professional customer service agent",
		SystemPrompt: "You are a customer support agent. You are friendly, professional, and " +
			"focused on solving customer problems efficiently. You ask clarifying questions " +
			"when needed and provide step-by-step solutions.",
	},
}

// Modes returns the available personas in a stable order.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ModeByID resolves a persona id. Unknown or empty ids fall back to the
// general assistant.
func ModeByID(id string) Mode {
	for _, m := range modes {
		if m.ID == id {
			return m
		}
	}
	return modes[0]
}

// Package composer assembles the message list sent to the inference engine:
// persona system prompt, retrieved context, conversation history, and the
// user's message, kept under a global token ceiling.
package composer

import (
	"fmt"
	"strings"

	"github.com/memoralabs/memora/internal/engine"
	"github.com/memoralabs/memora/internal/retrieval"
	"github.com/memoralabs/memora/internal/session"
	"github.com/memoralabs/memora/internal/token"
)

const defaultMaxPromptTokens = 4000

// Composer builds chat prompts within a token budget.
type Composer struct {
	MaxPromptTokens int
}

// New creates a Composer with the given total prompt budget.
// If maxPromptTokens <= 0, the default (4000) is used.
func New(maxPromptTokens int) *Composer {
	if maxPromptTokens <= 0 {
		maxPromptTokens = defaultMaxPromptTokens
	}
	return &Composer{MaxPromptTokens: maxPromptTokens}
}

// Compose builds the message list for one turn. The system message carries
// the persona prompt plus any retrieved context. History is included newest
// first from the budget's point of view: when the total would exceed the
// ceiling, the oldest history messages are dropped. The system message and
// the user's message are never dropped.
func (c *Composer) Compose(modeID string, history []session.Message, res *retrieval.Result, userText string) []engine.Message {
	system := engine.Message{
		Role:    session.RoleSystem,
		Content: c.systemContent(modeID, res),
	}
	user := engine.Message{Role: session.RoleUser, Content: userText}

	budget := c.MaxPromptTokens - token.Estimate(system.Content) - token.Estimate(user.Content)

	var kept []engine.Message
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == session.RoleSystem {
			continue
		}
		cost := token.Estimate(m.Text)
		if cost > budget {
			break
		}
		kept = append(kept, engine.Message{Role: m.Role, Content: m.Text})
		budget -= cost
	}

	out := make([]engine.Message, 0, len(kept)+2)
	out = append(out, system)
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	return append(out, user)
}

func (c *Composer) systemContent(modeID string, res *retrieval.Result) string {
	var sb strings.Builder
	sb.WriteString(ModeByID(modeID).SystemPrompt)

	if res == nil || len(res.Blocks) == 0 {
		return sb.String()
	}

	sb.WriteString("\n\n[Retrieved Context]\n")
	for _, b := range res.Blocks {
		fmt.Fprintf(&sb, "(Score: %.2f, Source: %s)\n%s\n\n", b.Score, b.Filename, b.Text)
	}
	sb.WriteString("Use the context above to answer when it is relevant. If it does not contain " +
		"the answer, say so clearly and cite which source you are referencing.")
	return sb.String()
}

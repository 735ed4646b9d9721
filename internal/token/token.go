// Package token provides the approximate token accounting shared by the
// session store, retrieval engine, and prompt composer.
package token

// Estimate returns a rough token count using the 4-chars-per-token heuristic.
// It is used for prompt budgets only and deliberately overcounts short strings
// rather than undercounting long ones.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

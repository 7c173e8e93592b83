package search

import "strings"

// ContextSeparator divides retrieved chunks in the prompt context.
const ContextSeparator = "\n\n---\n\n"

// BuildPrompt joins chunks into one context block ahead of the question.
func BuildPrompt(query string, chunks []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(chunks, ContextSeparator))
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(query)
	return b.String()
}

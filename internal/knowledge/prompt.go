package knowledge

import (
	"strings"
)

// ContextDelimiter separates retrieved chunks inside the prompt context block
const ContextDelimiter = "\n---\n"

const defaultPromptTemplate = `
You are an intelligent document analysis assistant. Your goal is to answer the user's question accurately using ONLY the provided context.
Pay close attention to specific details like account numbers, names, dates, and IDs.

Context:
{{.Context}}

User Question: {{.Question}}

Instructions:
1. If the answer is explicitly in the context, provide it clearly.
2. If the user asks for a specific number (like account number, ID), look for patterns of digits.
3. If the answer is NOT in the context, say "I cannot find that information in the uploaded documents."
4. Do not make up information.

Answer:
`

// SetPromptTemplate replaces the prompt. {{.Context}} and {{.Question}} are substituted.
func (b *Base) SetPromptTemplate(template string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promptTemplate = template
}

// buildContext concatenates chunk contents in retrieval order, each followed by the delimiter
func buildContext(sources []Source) string {
	var sb strings.Builder
	for _, s := range sources {
		sb.WriteString(s.Record.Content)
		sb.WriteString(ContextDelimiter)
	}
	return sb.String()
}

// buildPrompt creates the final prompt for the generator
func buildPrompt(template, question, context string) string {
	// single pass so retrieved text containing a placeholder is left alone
	r := strings.NewReplacer("{{.Context}}", context, "{{.Question}}", question)
	return r.Replace(template)
}

package llm

import "fmt"

const InsufficientInformation = "I don't have enough information to answer that question."

// BuildPrompt embeds context and query verbatim in a fixed instruction frame.
func BuildPrompt(query, context string) string {
	return fmt.Sprintf(`You are a helpful assistant that answers questions based on provided context.
Context from documents: %s
Question: %s
Instructions:
- Answer the question based ONLY on the provided context
- If the answer is not in the context, say "%s"
- Be concise and accurate
- Cite specific details from the context when possible
Answer:`, context, query, InsufficientInformation)
}

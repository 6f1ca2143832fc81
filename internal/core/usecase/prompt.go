package usecase

const summaryInstruction = "Summarize the following document in 2-3 concise paragraphs: "

// BuildPrompt prefixes cleaned document text with the summarization
// instruction. Callers check the minimum text length first; token limits are
// enforced later by the engine.
func BuildPrompt(text string) string {
	return summaryInstruction + text
}

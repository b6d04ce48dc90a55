package gemini

import (
	"fmt"
	"strings"
)

func buildFlashcardPrompt(sourceText string, count int, notes string) string {
	var b strings.Builder

	b.WriteString("You are an expert flashcard creator. Generate high-quality study flashcards from the notes below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(fmt.Sprintf("Generate exactly %d flashcards.\n", count))
	b.WriteString(`
Rules:
- question must be a clear, self-contained prompt
- answer must be concise and correct with respect to the notes only
- no two cards may test the same fact
- title must summarize the subject of the notes in under 60 characters
- tags: 2-5 short topic labels

JSON schema:
{"title": "string", "tags": ["string"], "cards": [{"question": "string", "answer": "string"}]}
`)
	writeNotes(&b, notes)

	b.WriteString("\n---NOTES START---\n")
	b.WriteString(sourceText)
	b.WriteString("\n---NOTES END---\n")

	return b.String()
}

func buildQuizPrompt(sourceText string, count int, questionTypes []string, notes string) string {
	var b strings.Builder

	b.WriteString("You are an expert educational assessor. Generate a quiz from the notes below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(fmt.Sprintf("Generate exactly %d questions.\n", count))

	cleaned := make([]string, 0, len(questionTypes))
	for _, qt := range questionTypes {
		qt = strings.TrimSpace(qt)
		if qt != "" {
			cleaned = append(cleaned, qt)
		}
	}
	if len(cleaned) > 0 {
		b.WriteString("Question type rule: every question's type MUST be one of: " + strings.Join(cleaned, ", ") + "\n")
	}

	b.WriteString(`
Type semantics:
- "multiple-choice": exactly 4 options, answer is the single correct option string.
- "multiple-selection": 4-6 options, answer is a JSON array of the correct option strings (2 or more).
- "fill-in-the-blank": options must be an empty array, answer is the expected string.

Rules:
- every question must be answerable from the notes alone
- distractor options must be plausible but wrong
- title must summarize the subject of the notes in under 60 characters
- tags: 2-5 short topic labels

JSON schema:
{"title": "string", "tags": ["string"], "questionsList": [{"type": "string", "question": "string", "answer": "string or array", "options": ["string"]}]}
`)
	writeNotes(&b, notes)

	b.WriteString("\n---NOTES START---\n")
	b.WriteString(sourceText)
	b.WriteString("\n---NOTES END---\n")

	return b.String()
}

func writeNotes(b *strings.Builder, notes string) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return
	}
	b.WriteString("\nUser guidance (follow when it does not conflict with the rules above): ")
	b.WriteString(notes)
	b.WriteString("\n")
}

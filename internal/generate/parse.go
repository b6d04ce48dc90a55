package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notesnap/notesnap-backend/internal/types"
)

// ParseError reports a malformed or schema-violating model response. Raw
// carries the offending text for server-side logging only; it is never
// returned to the client and the request fails without repair attempts.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string { return e.Reason }

func parseErrorf(raw string, format string, args ...interface{}) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// FlashcardResponse is the validated raw generation result, returned to
// the client as-is. Persistence defaults (status, confidence) are added
// later by the study-set service.
type FlashcardResponse struct {
	Title string    `json:"title"`
	Tags  []string  `json:"tags"`
	Cards []RawCard `json:"cards"`
}

type RawCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type QuizResponse struct {
	Title         string            `json:"title"`
	Tags          []string          `json:"tags"`
	QuestionsList []RawQuizQuestion `json:"questionsList"`
}

type RawQuizQuestion struct {
	Type     types.QuestionType `json:"type"`
	Question string             `json:"question"`
	Answer   types.AnswerValue  `json:"answer"`
	Options  []string           `json:"options"`
}

// StripCodeFence removes a wrapping Markdown code fence, if present, and
// trims surrounding whitespace. Models occasionally fence their JSON even
// when told not to.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// flashcardEnvelope keeps cards as raw JSON so a missing field can be
// told apart from an empty list: absence is a schema violation, never a
// silent default.
type flashcardEnvelope struct {
	Title string          `json:"title"`
	Tags  json.RawMessage `json:"tags"`
	Cards json.RawMessage `json:"cards"`
}

type quizEnvelope struct {
	Title         string          `json:"title"`
	Tags          json.RawMessage `json:"tags"`
	QuestionsList json.RawMessage `json:"questionsList"`
}

func ParseFlashcardResponse(raw string) (*FlashcardResponse, error) {
	body := StripCodeFence(raw)

	var env flashcardEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, parseErrorf(raw, "flashcard response is not valid JSON: %v", err)
	}
	if strings.TrimSpace(env.Title) == "" {
		return nil, parseErrorf(raw, "flashcard response has empty title")
	}
	if !isJSONArray(env.Cards) {
		return nil, parseErrorf(raw, "flashcard response is missing the cards list")
	}

	var cards []RawCard
	if err := json.Unmarshal(env.Cards, &cards); err != nil {
		return nil, parseErrorf(raw, "flashcard cards list is malformed: %v", err)
	}
	for i, c := range cards {
		if strings.TrimSpace(c.Question) == "" || strings.TrimSpace(c.Answer) == "" {
			return nil, parseErrorf(raw, "flashcard %d has an empty question or answer", i)
		}
	}

	return &FlashcardResponse{
		Title: env.Title,
		Tags:  tagsOrEmpty(env.Tags),
		Cards: cards,
	}, nil
}

func ParseQuizResponse(raw string) (*QuizResponse, error) {
	body := StripCodeFence(raw)

	var env quizEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, parseErrorf(raw, "quiz response is not valid JSON: %v", err)
	}
	if strings.TrimSpace(env.Title) == "" {
		return nil, parseErrorf(raw, "quiz response has empty title")
	}
	if !isJSONArray(env.QuestionsList) {
		return nil, parseErrorf(raw, "quiz response is missing the questionsList list")
	}

	var questions []rawQuizQuestionEnvelope
	if err := json.Unmarshal(env.QuestionsList, &questions); err != nil {
		return nil, parseErrorf(raw, "quiz questionsList is malformed: %v", err)
	}

	out := make([]RawQuizQuestion, 0, len(questions))
	for i, q := range questions {
		if !q.Type.Valid() {
			return nil, parseErrorf(raw, "question %d has unknown type %q", i, q.Type)
		}
		if strings.TrimSpace(q.Question) == "" {
			return nil, parseErrorf(raw, "question %d has an empty question", i)
		}
		if len(q.Answer) == 0 || string(q.Answer) == "null" {
			return nil, parseErrorf(raw, "question %d has no answer", i)
		}

		var answer types.AnswerValue
		if err := json.Unmarshal(q.Answer, &answer); err != nil {
			return nil, parseErrorf(raw, "question %d has a malformed answer: %v", i, err)
		}

		switch q.Type {
		case types.QuestionMultipleSelection:
			if !answer.IsList {
				return nil, parseErrorf(raw, "question %d is multiple-selection but its answer is not a list", i)
			}
			if len(q.Options) < 2 {
				return nil, parseErrorf(raw, "question %d needs at least 2 options, got %d", i, len(q.Options))
			}
		case types.QuestionMultipleChoice:
			if answer.IsList {
				return nil, parseErrorf(raw, "question %d is multiple-choice but its answer is a list", i)
			}
			if len(q.Options) < 2 {
				return nil, parseErrorf(raw, "question %d needs at least 2 options, got %d", i, len(q.Options))
			}
		case types.QuestionFillInTheBlank:
			if answer.IsList {
				return nil, parseErrorf(raw, "question %d is fill-in-the-blank but its answer is a list", i)
			}
		}

		opts := q.Options
		if opts == nil {
			opts = []string{}
		}
		out = append(out, RawQuizQuestion{
			Type:     q.Type,
			Question: q.Question,
			Answer:   answer,
			Options:  opts,
		})
	}

	return &QuizResponse{
		Title:         env.Title,
		Tags:          tagsOrEmpty(env.Tags),
		QuestionsList: out,
	}, nil
}

type rawQuizQuestionEnvelope struct {
	Type     types.QuestionType `json:"type"`
	Question string             `json:"question"`
	Answer   json.RawMessage    `json:"answer"`
	Options  []string           `json:"options"`
}

// tagsOrEmpty is deliberately lenient: absent or mistyped tags default to
// an empty list rather than failing the whole generation.
func tagsOrEmpty(raw json.RawMessage) []string {
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func isJSONArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "[")
}

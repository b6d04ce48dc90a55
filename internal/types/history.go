package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type SelectionType string

const (
	SelectionFlashcard SelectionType = "flashcard"
	SelectionQuiz      SelectionType = "quiz"
)

type QuestionType string

const (
	QuestionMultipleChoice    QuestionType = "multiple-choice"
	QuestionMultipleSelection QuestionType = "multiple-selection"
	QuestionFillInTheBlank    QuestionType = "fill-in-the-blank"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionMultipleSelection, QuestionFillInTheBlank:
		return true
	}
	return false
}

const (
	CardStatusReview   = "review"
	CardStatusComplete = "complete"

	MaxConfidence = 5
)

// HistorySchemaVersion is bumped whenever the persisted history layout
// changes; MigrateHistory performs one deterministic upgrade on read.
const HistorySchemaVersion = 1

// History is the per-user document holding every study set the user owns.
// It is stored as a single JSON column and always rewritten whole inside
// one row-level transaction.
type History struct {
	SchemaVersion int            `json:"schemaVersion"`
	Flashcards    []FlashcardSet `json:"flashcards"`
	Quizzes       []Quiz         `json:"quizzes"`
}

type FlashcardSet struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Tags         []string    `json:"tags"`
	CreationDate time.Time   `json:"creationDate"`
	LastReviewed time.Time   `json:"lastReviewed"`
	Cards        []Flashcard `json:"cards"`
}

type Flashcard struct {
	Question        string `json:"question"`
	Answer          string `json:"answer"`
	Status          string `json:"status"`
	ConfidenceLevel int    `json:"confidenceLevel"`
}

type Quiz struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Tags                []string       `json:"tags"`
	CreationDate        time.Time      `json:"creationDate"`
	LastAccessed        time.Time      `json:"lastAccessed"`
	IsComplete          bool           `json:"isComplete"`
	Score               int            `json:"score"`
	LastQuestionIndex   int            `json:"lastQuestionIndex"`
	QuestionsList       []QuizQuestion `json:"questionsList"`
	BookmarkedQuestions []int          `json:"bookmarkedQuestions"`
}

type QuizQuestion struct {
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Answer        AnswerValue  `json:"answer"`
	Options       []string     `json:"options"`
	CurrentAnswer AnswerValue  `json:"currentAnswer"`
}

// AnswerValue is a string for multiple-choice and fill-in-the-blank
// questions and a string list for multiple-selection. The wire shape is
// the bare value; the tag lives in IsList.
type AnswerValue struct {
	Text   string
	List   []string
	IsList bool
}

func TextAnswer(s string) AnswerValue   { return AnswerValue{Text: s} }
func ListAnswer(l []string) AnswerValue { return AnswerValue{List: l, IsList: true} }

// EmptyAnswer returns the default user answer for a question type.
func EmptyAnswer(t QuestionType) AnswerValue {
	if t == QuestionMultipleSelection {
		return ListAnswer([]string{})
	}
	return TextAnswer("")
}

func (a AnswerValue) IsEmpty() bool {
	if a.IsList {
		return len(a.List) == 0
	}
	return a.Text == ""
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.IsList {
		if a.List == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(a.List)
	}
	return json.Marshal(a.Text)
}

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = TextAnswer(s)
		return nil
	}
	var l []string
	if err := json.Unmarshal(data, &l); err == nil {
		*a = ListAnswer(l)
		return nil
	}
	return fmt.Errorf("answer value must be a string or a list of strings")
}

// CardStatus derives the display status from a confidence level. Status is
// never authoritative on its own; it is recomputed whenever confidence
// changes.
func CardStatus(confidenceLevel int) string {
	if confidenceLevel >= MaxConfidence {
		return CardStatusComplete
	}
	return CardStatusReview
}

func ClampConfidence(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxConfidence {
		return MaxConfidence
	}
	return level
}

// MigrateHistory upgrades a history document read from storage to the
// current schema: nil lists become empty, confidence is clamped, card
// status is recomputed, and quiz answers get their typed empty default.
// Idempotent; called on every read inside the persistence transaction.
func MigrateHistory(h *History) {
	if h == nil {
		return
	}
	if h.Flashcards == nil {
		h.Flashcards = []FlashcardSet{}
	}
	if h.Quizzes == nil {
		h.Quizzes = []Quiz{}
	}
	for i := range h.Flashcards {
		set := &h.Flashcards[i]
		if set.Tags == nil {
			set.Tags = []string{}
		}
		if set.Cards == nil {
			set.Cards = []Flashcard{}
		}
		for j := range set.Cards {
			card := &set.Cards[j]
			card.ConfidenceLevel = ClampConfidence(card.ConfidenceLevel)
			card.Status = CardStatus(card.ConfidenceLevel)
		}
	}
	for i := range h.Quizzes {
		quiz := &h.Quizzes[i]
		if quiz.Tags == nil {
			quiz.Tags = []string{}
		}
		if quiz.QuestionsList == nil {
			quiz.QuestionsList = []QuizQuestion{}
		}
		if quiz.BookmarkedQuestions == nil {
			quiz.BookmarkedQuestions = []int{}
		}
		for j := range quiz.QuestionsList {
			q := &quiz.QuestionsList[j]
			if q.Options == nil {
				q.Options = []string{}
			}
			// Selection answers read from older documents may have been
			// stored as bare strings; normalize the shape to the type.
			if q.Type == QuestionMultipleSelection && !q.CurrentAnswer.IsList && q.CurrentAnswer.Text == "" {
				q.CurrentAnswer = EmptyAnswer(q.Type)
			}
		}
	}
	h.SchemaVersion = HistorySchemaVersion
}

package services

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/notesnap/notesnap-backend/internal/types"
)

// Answer evaluation and mastery scoring. Everything here is pure: it
// operates on already-persisted structures and has no I/O, so the review
// endpoints stay trivially testable.

// CheckAnswer decides correctness of a user's answer per question type.
func CheckAnswer(userAnswer, correctAnswer types.AnswerValue, questionType types.QuestionType) bool {
	switch questionType {
	case types.QuestionMultipleChoice:
		if userAnswer.IsList || correctAnswer.IsList {
			return false
		}
		return userAnswer.Text == correctAnswer.Text
	case types.QuestionMultipleSelection:
		if !userAnswer.IsList || !correctAnswer.IsList {
			return false
		}
		return answerSetsEqual(userAnswer.List, correctAnswer.List)
	case types.QuestionFillInTheBlank:
		return FuzzyMatch(userAnswer.Text, correctAnswer.Text)
	}
	return false
}

// answerSetsEqual is order-independent equality: same length, same
// elements after sorting.
func answerSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

var nonWordRE = regexp.MustCompile(`[^\w\s]`)

// normalizeAnswer lowercases, strips punctuation, and collapses
// whitespace runs so formatting differences never fail a match.
func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWordRE.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// FuzzyMatch compares free-response answers. After normalization: exact
// equality matches; one being a substring of the other matches (partial
// or extended answers); otherwise the Levenshtein distance must be within
// max(2, floor(0.1 * longer length)). Empty answers never match.
func FuzzyMatch(userAnswer, correctAnswer string) bool {
	ua := normalizeAnswer(userAnswer)
	ca := normalizeAnswer(correctAnswer)
	if ua == "" || ca == "" {
		return false
	}
	if ua == ca {
		return true
	}
	if strings.Contains(ua, ca) || strings.Contains(ca, ua) {
		return true
	}
	maxLen := utf8.RuneCountInString(ua)
	if l := utf8.RuneCountInString(ca); l > maxLen {
		maxLen = l
	}
	allowed := maxLen / 10
	if allowed < 2 {
		allowed = 2
	}
	return levenshtein.ComputeDistance(ua, ca) <= allowed
}

// CalculateQuizScore computes the integer percentage of correctly
// answered questions; 0 for an empty quiz. Called once at submission.
func CalculateQuizScore(quiz types.Quiz) int {
	total := len(quiz.QuestionsList)
	if total == 0 {
		return 0
	}
	correct := 0
	for _, q := range quiz.QuestionsList {
		if CheckAnswer(q.CurrentAnswer, q.Answer, q.Type) {
			correct++
		}
	}
	return roundPercent(correct, total)
}

// UpdateCardConfidence moves a card's confidence one step in the outcome
// direction, saturating at the [0,5] bounds.
func UpdateCardConfidence(currentLevel int, isCorrect bool) int {
	if isCorrect {
		if currentLevel >= types.MaxConfidence {
			return types.MaxConfidence
		}
		return currentLevel + 1
	}
	if currentLevel <= 0 {
		return 0
	}
	return currentLevel - 1
}

// CardStatusLabel buckets a confidence level for filter/display use.
func CardStatusLabel(confidenceLevel int) string {
	switch {
	case confidenceLevel >= types.MaxConfidence:
		return "mastered"
	case confidenceLevel >= 1:
		return "learning"
	default:
		return "unlearned"
	}
}

// CalculateMasteryPercentage is the share of cards at full confidence.
func CalculateMasteryPercentage(set types.FlashcardSet) int {
	total := len(set.Cards)
	if total == 0 {
		return 0
	}
	mastered := 0
	for _, c := range set.Cards {
		if c.ConfidenceLevel >= types.MaxConfidence {
			mastered++
		}
	}
	return roundPercent(mastered, total)
}

// CalculateSessionStats aggregates a finished review session. A card
// counts as known when it was answered correctly or ended at full
// confidence; accuracy counts correct answers only.
func CalculateSessionStats(results []types.SessionResult) types.SessionStats {
	if len(results) == 0 {
		return types.SessionStats{}
	}
	know := 0
	correct := 0
	for _, r := range results {
		if r.WasCorrect {
			correct++
		}
		if r.WasCorrect || r.NewConfidence == types.MaxConfidence {
			know++
		}
	}
	return types.SessionStats{
		Know:     know,
		Learning: len(results) - know,
		Accuracy: roundPercent(correct, len(results)),
	}
}

func roundPercent(part, total int) int {
	return int(math.Round(100 * float64(part) / float64(total)))
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/notesnap/notesnap-backend/internal/generate"
	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/repos"
	"github.com/notesnap/notesnap-backend/internal/types"
)

// DedupWindow is how close two creation timestamps must be for otherwise
// identical study sets to be treated as a double-fired submission.
const DedupWindow = 5 * time.Second

// StudySetService owns the per-user history document: saving generated
// content (with duplicate suppression), review-time mutations, and
// deletion. Every write is one read-modify-write transaction on the
// user's row.
type StudySetService interface {
	SaveFlashcardSet(ctx context.Context, userID string, raw *generate.FlashcardResponse) (*types.FlashcardSet, error)
	SaveQuiz(ctx context.Context, userID string, raw *generate.QuizResponse) (*types.Quiz, error)
	GetHistory(ctx context.Context, userID string) (*types.History, error)
	UpdateFlashcardSet(ctx context.Context, userID, setID string, upd FlashcardSetUpdate) (*types.FlashcardSet, error)
	ApplySession(ctx context.Context, userID, setID string, results []types.SessionResult) (*types.SessionStats, error)
	UpdateQuiz(ctx context.Context, userID, quizID string, upd QuizUpdate) (*types.Quiz, error)
	SubmitQuiz(ctx context.Context, userID, quizID string, answers []QuizAnswerUpdate) (*types.Quiz, error)
	DeleteFlashcardSet(ctx context.Context, userID, setID string) error
	DeleteQuiz(ctx context.Context, userID, quizID string) error
}

type FlashcardSetUpdate struct {
	Title *string  `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type QuizUpdate struct {
	Title             *string            `json:"title,omitempty"`
	LastQuestionIndex *int               `json:"lastQuestionIndex,omitempty"`
	Answers           []QuizAnswerUpdate `json:"answers,omitempty"`
	ToggleBookmark    *int               `json:"toggleBookmark,omitempty"`
}

type QuizAnswerUpdate struct {
	QuestionIndex int               `json:"questionIndex"`
	Answer        types.AnswerValue `json:"answer"`
}

type studySetService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.UserRecordRepo
	now  func() time.Time
}

func NewStudySetService(db *gorm.DB, log *logger.Logger, repo repos.UserRecordRepo) StudySetService {
	return &studySetService{
		db:   db,
		log:  log.With("service", "StudySetService"),
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// TransformFlashcards maps a validated generation result into the
// persisted shape: every card starts unreviewed at confidence 0.
func TransformFlashcards(raw *generate.FlashcardResponse) types.FlashcardSet {
	cards := make([]types.Flashcard, 0, len(raw.Cards))
	for _, c := range raw.Cards {
		cards = append(cards, types.Flashcard{
			Question:        c.Question,
			Answer:          c.Answer,
			Status:          types.CardStatusReview,
			ConfidenceLevel: 0,
		})
	}
	tags := raw.Tags
	if tags == nil {
		tags = []string{}
	}
	return types.FlashcardSet{
		Title: raw.Title,
		Tags:  tags,
		Cards: cards,
	}
}

// TransformQuiz maps a validated generation result into the persisted
// shape: untaken, unscored, with typed empty answers per question.
func TransformQuiz(raw *generate.QuizResponse) types.Quiz {
	questions := make([]types.QuizQuestion, 0, len(raw.QuestionsList))
	for _, q := range raw.QuestionsList {
		questions = append(questions, types.QuizQuestion{
			Type:          q.Type,
			Question:      q.Question,
			Answer:        q.Answer,
			Options:       q.Options,
			CurrentAnswer: types.EmptyAnswer(q.Type),
		})
	}
	tags := raw.Tags
	if tags == nil {
		tags = []string{}
	}
	return types.Quiz{
		Title:               raw.Title,
		Tags:                tags,
		IsComplete:          false,
		Score:               0,
		LastQuestionIndex:   0,
		QuestionsList:       questions,
		BookmarkedQuestions: []int{},
	}
}

func (s *studySetService) SaveFlashcardSet(ctx context.Context, userID string, raw *generate.FlashcardResponse) (*types.FlashcardSet, error) {
	now := s.now()
	entity := TransformFlashcards(raw)
	entity.ID = uuid.NewString()
	entity.CreationDate = now
	entity.LastReviewed = now

	var saved *types.FlashcardSet
	err := s.withHistory(ctx, userID, true, func(h *types.History) (bool, error) {
		for i := range h.Flashcards {
			if isDuplicateFlashcardSet(&h.Flashcards[i], &entity) {
				s.log.Info("duplicate flashcard save suppressed",
					"user_id", userID, "title", entity.Title)
				saved = &h.Flashcards[i]
				return false, nil
			}
		}
		h.Flashcards = append(h.Flashcards, entity)
		saved = &h.Flashcards[len(h.Flashcards)-1]
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *studySetService) SaveQuiz(ctx context.Context, userID string, raw *generate.QuizResponse) (*types.Quiz, error) {
	now := s.now()
	entity := TransformQuiz(raw)
	entity.ID = uuid.NewString()
	entity.CreationDate = now
	entity.LastAccessed = now

	var saved *types.Quiz
	err := s.withHistory(ctx, userID, true, func(h *types.History) (bool, error) {
		for i := range h.Quizzes {
			if isDuplicateQuiz(&h.Quizzes[i], &entity) {
				s.log.Info("duplicate quiz save suppressed",
					"user_id", userID, "title", entity.Title)
				saved = &h.Quizzes[i]
				return false, nil
			}
		}
		h.Quizzes = append(h.Quizzes, entity)
		saved = &h.Quizzes[len(h.Quizzes)-1]
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// A duplicate is a near-simultaneous save of the same content: matching
// title, matching item count, creation timestamps within the window. No
// idempotency key exists, so timing is the only identity signal.
func isDuplicateFlashcardSet(existing, candidate *types.FlashcardSet) bool {
	return existing.Title == candidate.Title &&
		len(existing.Cards) == len(candidate.Cards) &&
		withinWindow(existing.CreationDate, candidate.CreationDate)
}

func isDuplicateQuiz(existing, candidate *types.Quiz) bool {
	return existing.Title == candidate.Title &&
		len(existing.QuestionsList) == len(candidate.QuestionsList) &&
		withinWindow(existing.CreationDate, candidate.CreationDate)
}

func withinWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= DedupWindow
}

func (s *studySetService) GetHistory(ctx context.Context, userID string) (*types.History, error) {
	rec, err := s.repo.Get(ctx, nil, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h := &types.History{}
		types.MigrateHistory(h)
		return h, nil
	}
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load history: %w", err))
	}
	h, err := decodeHistory(rec.History)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return h, nil
}

func (s *studySetService) UpdateFlashcardSet(ctx context.Context, userID, setID string, upd FlashcardSetUpdate) (*types.FlashcardSet, error) {
	var out *types.FlashcardSet
	err := s.withHistory(ctx, userID, false, func(h *types.History) (bool, error) {
		set := findFlashcardSet(h, setID)
		if set == nil {
			return false, apierr.Newf(apierr.CodeInvalidArgument, "unknown flashcard set %s", setID)
		}
		if upd.Title != nil {
			set.Title = *upd.Title
		}
		if upd.Tags != nil {
			set.Tags = upd.Tags
		}
		cp := *set
		out = &cp
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplySession batches a review session's outcomes into the persisted
// cards: confidence is taken from each result (clamped), status is
// recomputed from confidence, lastReviewed is bumped once.
func (s *studySetService) ApplySession(ctx context.Context, userID, setID string, results []types.SessionResult) (*types.SessionStats, error) {
	stats := CalculateSessionStats(results)
	err := s.withHistory(ctx, userID, false, func(h *types.History) (bool, error) {
		set := findFlashcardSet(h, setID)
		if set == nil {
			return false, apierr.Newf(apierr.CodeInvalidArgument, "unknown flashcard set %s", setID)
		}
		for _, r := range results {
			if r.CardIndex < 0 || r.CardIndex >= len(set.Cards) {
				return false, apierr.Newf(apierr.CodeInvalidArgument,
					"card index %d out of range for set of %d cards", r.CardIndex, len(set.Cards))
			}
			card := &set.Cards[r.CardIndex]
			card.ConfidenceLevel = types.ClampConfidence(r.NewConfidence)
			card.Status = types.CardStatus(card.ConfidenceLevel)
		}
		set.LastReviewed = s.now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *studySetService) UpdateQuiz(ctx context.Context, userID, quizID string, upd QuizUpdate) (*types.Quiz, error) {
	var out *types.Quiz
	err := s.withHistory(ctx, userID, false, func(h *types.History) (bool, error) {
		quiz := findQuiz(h, quizID)
		if quiz == nil {
			return false, apierr.Newf(apierr.CodeInvalidArgument, "unknown quiz %s", quizID)
		}
		if upd.Title != nil {
			quiz.Title = *upd.Title
		}
		if upd.LastQuestionIndex != nil {
			idx := *upd.LastQuestionIndex
			if idx < 0 || idx >= len(quiz.QuestionsList) {
				return false, apierr.Newf(apierr.CodeInvalidArgument,
					"question index %d out of range", idx)
			}
			quiz.LastQuestionIndex = idx
		}
		if err := applyAnswers(quiz, upd.Answers); err != nil {
			return false, err
		}
		if upd.ToggleBookmark != nil {
			if err := toggleBookmark(quiz, *upd.ToggleBookmark); err != nil {
				return false, err
			}
		}
		quiz.LastAccessed = s.now()
		cp := *quiz
		out = &cp
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitQuiz applies any final answers, grades every question, and sets
// the score exactly once. Score is never implicitly recomputed afterward.
func (s *studySetService) SubmitQuiz(ctx context.Context, userID, quizID string, answers []QuizAnswerUpdate) (*types.Quiz, error) {
	var out *types.Quiz
	err := s.withHistory(ctx, userID, false, func(h *types.History) (bool, error) {
		quiz := findQuiz(h, quizID)
		if quiz == nil {
			return false, apierr.Newf(apierr.CodeInvalidArgument, "unknown quiz %s", quizID)
		}
		if err := applyAnswers(quiz, answers); err != nil {
			return false, err
		}
		quiz.Score = CalculateQuizScore(*quiz)
		quiz.IsComplete = true
		quiz.LastAccessed = s.now()
		cp := *quiz
		out = &cp
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *studySetService) DeleteFlashcardSet(ctx context.Context, userID, setID string) error {
	return s.withHistory(ctx, userID, false, func(h *types.History) (bool, error) {
		for i := range h.Flashcards {
			if h.Flashcards[i].ID == setID {
				h.Flashcards = append(h.Flashcards[:i], h.Flashcards[i+1:]...)
				return true, nil
			}
		}
		return false, apierr.Newf(apierr.CodeInvalidArgument, "unknown flashcard set %s", setID)
	})
}

func (s *studySetService) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	return s.withHistory(ctx, userID, false, func(h *types.History) (bool, error) {
		for i := range h.Quizzes {
			if h.Quizzes[i].ID == quizID {
				h.Quizzes = append(h.Quizzes[:i], h.Quizzes[i+1:]...)
				return true, nil
			}
		}
		return false, apierr.Newf(apierr.CodeInvalidArgument, "unknown quiz %s", quizID)
	})
}

// withHistory runs mutate inside one transaction against the user's row:
// lock, decode, migrate, mutate, and write back when mutate reports a
// change. createIfMissing covers the first save of a brand-new user.
func (s *studySetService) withHistory(ctx context.Context, userID string, createIfMissing bool, mutate func(h *types.History) (bool, error)) error {
	err := s.historyTxn(ctx, userID, createIfMissing, mutate)
	if createIfMissing && isDuplicateKeyError(err) {
		// Two first-ever saves can race: with no row yet there is nothing
		// for GetForUpdate to lock, so both take the create path and the
		// loser's insert collides on the primary key. On the retry the row
		// exists, the lock serializes, and the dedup scan sees the winner's
		// entity.
		return s.historyTxn(ctx, userID, false, mutate)
	}
	return err
}

func (s *studySetService) historyTxn(ctx context.Context, userID string, createIfMissing bool, mutate func(h *types.History) (bool, error)) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.GetForUpdate(ctx, tx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if !createIfMissing {
				return apierr.Newf(apierr.CodeInvalidArgument, "no history for user")
			}
			h := &types.History{}
			types.MigrateHistory(h)
			if _, err := mutate(h); err != nil {
				return err
			}
			historyJSON, err := json.Marshal(h)
			if err != nil {
				return apierr.Internal(fmt.Errorf("encode history: %w", err))
			}
			prefsJSON, err := json.Marshal(types.DefaultPreferences())
			if err != nil {
				return apierr.Internal(fmt.Errorf("encode preferences: %w", err))
			}
			newRec := &types.UserRecord{
				ID:          userID,
				History:     historyJSON,
				Preferences: prefsJSON,
			}
			if err := s.repo.Create(ctx, tx, newRec); err != nil {
				return apierr.Internal(fmt.Errorf("create user record: %w", err))
			}
			return nil
		}
		if err != nil {
			return apierr.Internal(fmt.Errorf("load user record: %w", err))
		}

		h, err := decodeHistory(rec.History)
		if err != nil {
			return apierr.Internal(err)
		}
		changed, err := mutate(h)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		historyJSON, err := json.Marshal(h)
		if err != nil {
			return apierr.Internal(fmt.Errorf("encode history: %w", err))
		}
		rec.History = historyJSON
		if err := s.repo.Save(ctx, tx, rec); err != nil {
			return apierr.Internal(fmt.Errorf("save user record: %w", err))
		}
		return nil
	})
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func decodeHistory(raw []byte) (*types.History, error) {
	h := &types.History{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, h); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	}
	types.MigrateHistory(h)
	return h, nil
}

func findFlashcardSet(h *types.History, setID string) *types.FlashcardSet {
	for i := range h.Flashcards {
		if h.Flashcards[i].ID == setID {
			return &h.Flashcards[i]
		}
	}
	return nil
}

func findQuiz(h *types.History, quizID string) *types.Quiz {
	for i := range h.Quizzes {
		if h.Quizzes[i].ID == quizID {
			return &h.Quizzes[i]
		}
	}
	return nil
}

func applyAnswers(quiz *types.Quiz, answers []QuizAnswerUpdate) error {
	for _, a := range answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(quiz.QuestionsList) {
			return apierr.Newf(apierr.CodeInvalidArgument,
				"answer index %d out of range for quiz of %d questions",
				a.QuestionIndex, len(quiz.QuestionsList))
		}
		quiz.QuestionsList[a.QuestionIndex].CurrentAnswer = a.Answer
	}
	return nil
}

func toggleBookmark(quiz *types.Quiz, index int) error {
	if index < 0 || index >= len(quiz.QuestionsList) {
		return apierr.Newf(apierr.CodeInvalidArgument, "bookmark index %d out of range", index)
	}
	for i, b := range quiz.BookmarkedQuestions {
		if b == index {
			quiz.BookmarkedQuestions = append(quiz.BookmarkedQuestions[:i], quiz.BookmarkedQuestions[i+1:]...)
			return nil
		}
	}
	quiz.BookmarkedQuestions = append(quiz.BookmarkedQuestions, index)
	return nil
}

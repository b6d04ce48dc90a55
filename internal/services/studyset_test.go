package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/notesnap/notesnap-backend/internal/generate"
	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/repos"
	"github.com/notesnap/notesnap-backend/internal/types"
)

func newTestStudySetService(t *testing.T) *studySetService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "studysets.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.UserRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc := NewStudySetService(db, log, repos.NewUserRecordRepo(db, log)).(*studySetService)
	return svc
}

func sampleFlashcardResponse() *generate.FlashcardResponse {
	return &generate.FlashcardResponse{
		Title: "Cell Biology",
		Tags:  []string{"biology"},
		Cards: []generate.RawCard{
			{Question: "What is a mitochondrion?", Answer: "The powerhouse of the cell."},
			{Question: "What is a ribosome?", Answer: "Protein synthesis machinery."},
		},
	}
}

func sampleQuizResponse() *generate.QuizResponse {
	return &generate.QuizResponse{
		Title: "Photosynthesis",
		Tags:  []string{},
		QuestionsList: []generate.RawQuizQuestion{
			{
				Type:     types.QuestionMultipleChoice,
				Question: "Where does it occur?",
				Answer:   types.TextAnswer("chloroplast"),
				Options:  []string{"chloroplast", "nucleus"},
			},
			{
				Type:     types.QuestionFillInTheBlank,
				Question: "The green pigment is ___.",
				Answer:   types.TextAnswer("chlorophyll"),
				Options:  []string{},
			},
		},
	}
}

func TestTransformFlashcards_Defaults(t *testing.T) {
	set := TransformFlashcards(sampleFlashcardResponse())
	if len(set.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(set.Cards))
	}
	for i, c := range set.Cards {
		if c.Status != types.CardStatusReview {
			t.Fatalf("card %d: expected status %q, got %q", i, types.CardStatusReview, c.Status)
		}
		if c.ConfidenceLevel != 0 {
			t.Fatalf("card %d: expected confidence 0, got %d", i, c.ConfidenceLevel)
		}
	}
}

func TestTransformQuiz_Defaults(t *testing.T) {
	quiz := TransformQuiz(sampleQuizResponse())
	if quiz.IsComplete || quiz.Score != 0 || quiz.LastQuestionIndex != 0 {
		t.Fatalf("expected untaken quiz, got %+v", quiz)
	}
	if quiz.BookmarkedQuestions == nil || len(quiz.BookmarkedQuestions) != 0 {
		t.Fatalf("expected empty bookmarks, got %v", quiz.BookmarkedQuestions)
	}
	for i, q := range quiz.QuestionsList {
		if !q.CurrentAnswer.IsEmpty() {
			t.Fatalf("question %d: expected empty current answer", i)
		}
	}
}

func TestSaveFlashcardSet_CreatesRecordForNewUser(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()

	saved, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("SaveFlashcardSet: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated id")
	}

	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Flashcards) != 1 || h.Flashcards[0].ID != saved.ID {
		t.Fatalf("expected one persisted set, got %+v", h.Flashcards)
	}
	if h.SchemaVersion != types.HistorySchemaVersion {
		t.Fatalf("expected schema version set, got %d", h.SchemaVersion)
	}
}

func TestSaveFlashcardSet_SuppressesNearSimultaneousDuplicate(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return base }
	first, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	svc.now = func() time.Time { return base.Add(3 * time.Second) }
	second, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate suppressed, got new id %s", second.ID)
	}

	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Flashcards) != 1 {
		t.Fatalf("expected 1 set after duplicate save, got %d", len(h.Flashcards))
	}
}

func TestSaveFlashcardSet_OutsideWindowIsNotDuplicate(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return base }
	if _, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse()); err != nil {
		t.Fatalf("first save: %v", err)
	}

	svc.now = func() time.Time { return base.Add(10 * time.Second) }
	if _, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse()); err != nil {
		t.Fatalf("second save: %v", err)
	}

	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Flashcards) != 2 {
		t.Fatalf("expected 2 sets outside the window, got %d", len(h.Flashcards))
	}
}

func TestSaveQuiz_DuplicateRequiresSameCount(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if _, err := svc.SaveQuiz(ctx, "user-1", sampleQuizResponse()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	shorter := sampleQuizResponse()
	shorter.QuestionsList = shorter.QuestionsList[:1]
	if _, err := svc.SaveQuiz(ctx, "user-1", shorter); err != nil {
		t.Fatalf("second save: %v", err)
	}

	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Quizzes) != 2 {
		t.Fatalf("same title but different question count must not dedup, got %d quizzes", len(h.Quizzes))
	}
}

// staleReadRepo makes the next GetForUpdate report no row even though one
// exists, reproducing what the loser of two concurrent first-ever saves
// observes: its snapshot predates the winner's insert, so it takes the
// create path and collides on the primary key.
type staleReadRepo struct {
	repos.UserRecordRepo
	stale bool
}

func (r *staleReadRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*types.UserRecord, error) {
	if r.stale {
		r.stale = false
		return nil, gorm.ErrRecordNotFound
	}
	return r.UserRecordRepo.GetForUpdate(ctx, tx, userID)
}

func TestSaveFlashcardSet_FirstSaveRaceDedupsToWinner(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	winner, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("winner save: %v", err)
	}

	svc.repo = &staleReadRepo{UserRecordRepo: svc.repo, stale: true}
	svc.now = func() time.Time { return base.Add(time.Second) }
	loser, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("losing save must recover, got %v", err)
	}
	if loser.ID != winner.ID {
		t.Fatalf("expected winner's entity returned, got %s vs %s", loser.ID, winner.ID)
	}

	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Flashcards) != 1 {
		t.Fatalf("expected exactly one persisted set, got %d", len(h.Flashcards))
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped sentinel", apierr.Internal(fmt.Errorf("create user record: %w", gorm.ErrDuplicatedKey)), true},
		{"postgres text", errors.New(`ERROR: duplicate key value violates unique constraint "user_record_pkey"`), true},
		{"sqlite text", errors.New("UNIQUE constraint failed: user_record.id"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := isDuplicateKeyError(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestGetHistory_UnknownUserIsEmptyNotError(t *testing.T) {
	svc := newTestStudySetService(t)
	h, err := svc.GetHistory(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Flashcards) != 0 || len(h.Quizzes) != 0 {
		t.Fatalf("expected empty history, got %+v", h)
	}
}

func TestApplySession_UpdatesConfidenceAndStatus(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	saved, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	stats, err := svc.ApplySession(ctx, "user-1", saved.ID, []types.SessionResult{
		{CardIndex: 0, WasCorrect: true, PreviousConfidence: 4, NewConfidence: 5},
		{CardIndex: 1, WasCorrect: false, PreviousConfidence: 0, NewConfidence: -3},
	})
	if err != nil {
		t.Fatalf("ApplySession: %v", err)
	}
	if stats.Know != 1 || stats.Learning != 1 || stats.Accuracy != 50 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	cards := h.Flashcards[0].Cards
	if cards[0].ConfidenceLevel != 5 || cards[0].Status != types.CardStatusComplete {
		t.Fatalf("card 0 not mastered: %+v", cards[0])
	}
	if cards[1].ConfidenceLevel != 0 || cards[1].Status != types.CardStatusReview {
		t.Fatalf("card 1 not clamped: %+v", cards[1])
	}
}

func TestApplySession_RejectsOutOfRangeIndex(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	saved, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err = svc.ApplySession(ctx, "user-1", saved.ID, []types.SessionResult{{CardIndex: 7}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if apierr.CodeOf(err) != apierr.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", apierr.CodeOf(err))
	}
}

func TestSubmitQuiz_GradesAndCompletes(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	saved, err := svc.SaveQuiz(ctx, "user-1", sampleQuizResponse())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	quiz, err := svc.SubmitQuiz(ctx, "user-1", saved.ID, []QuizAnswerUpdate{
		{QuestionIndex: 0, Answer: types.TextAnswer("chloroplast")},
		{QuestionIndex: 1, Answer: types.TextAnswer("wrong")},
	})
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if !quiz.IsComplete {
		t.Fatalf("expected quiz marked complete")
	}
	if quiz.Score != 50 {
		t.Fatalf("expected score 50, got %d", quiz.Score)
	}
}

func TestUpdateQuiz_AnswersPositionAndBookmarks(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	saved, err := svc.SaveQuiz(ctx, "user-1", sampleQuizResponse())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	idx := 1
	bookmark := 0
	quiz, err := svc.UpdateQuiz(ctx, "user-1", saved.ID, QuizUpdate{
		LastQuestionIndex: &idx,
		Answers:           []QuizAnswerUpdate{{QuestionIndex: 0, Answer: types.TextAnswer("nucleus")}},
		ToggleBookmark:    &bookmark,
	})
	if err != nil {
		t.Fatalf("UpdateQuiz: %v", err)
	}
	if quiz.LastQuestionIndex != 1 {
		t.Fatalf("expected position 1, got %d", quiz.LastQuestionIndex)
	}
	if quiz.QuestionsList[0].CurrentAnswer.Text != "nucleus" {
		t.Fatalf("expected answer recorded, got %+v", quiz.QuestionsList[0].CurrentAnswer)
	}
	if len(quiz.BookmarkedQuestions) != 1 || quiz.BookmarkedQuestions[0] != 0 {
		t.Fatalf("expected question 0 bookmarked, got %v", quiz.BookmarkedQuestions)
	}

	// Toggling again removes the bookmark.
	quiz, err = svc.UpdateQuiz(ctx, "user-1", saved.ID, QuizUpdate{ToggleBookmark: &bookmark})
	if err != nil {
		t.Fatalf("UpdateQuiz: %v", err)
	}
	if len(quiz.BookmarkedQuestions) != 0 {
		t.Fatalf("expected bookmark removed, got %v", quiz.BookmarkedQuestions)
	}
}

func TestDeleteFlashcardSet_RemovesOnlyTarget(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return base }
	first, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	other := sampleFlashcardResponse()
	other.Title = "Genetics"
	svc.now = func() time.Time { return base.Add(time.Minute) }
	second, err := svc.SaveFlashcardSet(ctx, "user-1", other)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := svc.DeleteFlashcardSet(ctx, "user-1", first.ID); err != nil {
		t.Fatalf("DeleteFlashcardSet: %v", err)
	}
	h, err := svc.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(h.Flashcards) != 1 || h.Flashcards[0].ID != second.ID {
		t.Fatalf("expected only second set left, got %+v", h.Flashcards)
	}

	if err := svc.DeleteFlashcardSet(ctx, "user-1", first.ID); err == nil {
		t.Fatalf("expected error deleting missing set")
	}
}

func TestUpdateFlashcardSet_UnknownIDFails(t *testing.T) {
	svc := newTestStudySetService(t)
	ctx := context.Background()
	if _, err := svc.SaveFlashcardSet(ctx, "user-1", sampleFlashcardResponse()); err != nil {
		t.Fatalf("save: %v", err)
	}
	title := "renamed"
	_, err := svc.UpdateFlashcardSet(ctx, "user-1", "no-such-id", FlashcardSetUpdate{Title: &title})
	if err == nil {
		t.Fatalf("expected error")
	}
	if apierr.CodeOf(err) != apierr.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", apierr.CodeOf(err))
	}
}

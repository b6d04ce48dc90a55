package handlers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/requestdata"
	"github.com/notesnap/notesnap-backend/internal/services"
	"github.com/notesnap/notesnap-backend/internal/types"
)

type StudySetHandler struct {
	log *logger.Logger
	svc services.StudySetService
}

func NewStudySetHandler(log *logger.Logger, svc services.StudySetService) *StudySetHandler {
	return &StudySetHandler{
		log: log.With("handler", "StudySetHandler"),
		svc: svc,
	}
}

func userID(c *gin.Context) (string, error) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		return "", apierr.Unauthenticated(errors.New("missing identity"))
	}
	return rd.UserID, nil
}

// GET /api/studysets
// The user's full history: every flashcard set and quiz.
func (h *StudySetHandler) GetHistory(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	history, err := h.svc.GetHistory(c.Request.Context(), uid)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, history)
}

// PATCH /api/flashcard-sets/:id
// Rename a set or replace its tags.
func (h *StudySetHandler) UpdateFlashcardSet(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	var upd services.FlashcardSetUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		RespondError(c, apierr.InvalidArgument(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	set, err := h.svc.UpdateFlashcardSet(c.Request.Context(), uid, c.Param("id"), upd)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, set)
}

// POST /api/flashcard-sets/:id/session
// Apply a finished review session's results to the set.
func (h *StudySetHandler) ApplySession(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	var body struct {
		Results []types.SessionResult `json:"results"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.InvalidArgument(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if len(body.Results) == 0 {
		RespondError(c, apierr.Newf(apierr.CodeInvalidArgument, "results must not be empty"))
		return
	}
	stats, err := h.svc.ApplySession(c.Request.Context(), uid, c.Param("id"), body.Results)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, stats)
}

// DELETE /api/flashcard-sets/:id
func (h *StudySetHandler) DeleteFlashcardSet(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.svc.DeleteFlashcardSet(c.Request.Context(), uid, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// PATCH /api/quizzes/:id
// In-progress quiz state: title, position, answers, bookmarks.
func (h *StudySetHandler) UpdateQuiz(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	var upd services.QuizUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		RespondError(c, apierr.InvalidArgument(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	quiz, err := h.svc.UpdateQuiz(c.Request.Context(), uid, c.Param("id"), upd)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, quiz)
}

// POST /api/quizzes/:id/submit
// Grade the quiz and mark it complete.
func (h *StudySetHandler) SubmitQuiz(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	var body struct {
		Answers []services.QuizAnswerUpdate `json:"answers"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.InvalidArgument(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	quiz, err := h.svc.SubmitQuiz(c.Request.Context(), uid, c.Param("id"), body.Answers)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, quiz)
}

// DELETE /api/quizzes/:id
func (h *StudySetHandler) DeleteQuiz(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.svc.DeleteQuiz(c.Request.Context(), uid, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

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

type GenerationHandler struct {
	log *logger.Logger
	svc services.GenerationService
}

func NewGenerationHandler(log *logger.Logger, svc services.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		log: log.With("handler", "GenerationHandler"),
		svc: svc,
	}
}

// POST /api/generate
// Run the full pipeline: stage files, extract text, generate, save.
func (h *GenerationHandler) Generate(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, apierr.Unauthenticated(errors.New("missing identity")))
		return
	}
	var req types.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.InvalidArgument(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	result, err := h.svc.Generate(c.Request.Context(), rd.UserID, &req)
	if err != nil {
		h.log.Error("generation failed", "user_id", rd.UserID, "error", err)
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

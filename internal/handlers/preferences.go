package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/services"
	"github.com/notesnap/notesnap-backend/internal/types"
)

type PreferencesHandler struct {
	log *logger.Logger
	svc services.UserService
}

func NewPreferencesHandler(log *logger.Logger, svc services.UserService) *PreferencesHandler {
	return &PreferencesHandler{
		log: log.With("handler", "PreferencesHandler"),
		svc: svc,
	}
}

// GET /api/preferences
func (h *PreferencesHandler) Get(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	prefs, err := h.svc.GetPreferences(c.Request.Context(), uid)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, prefs)
}

// PUT /api/preferences
func (h *PreferencesHandler) Update(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	var prefs types.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		RespondError(c, apierr.InvalidArgument(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	updated, err := h.svc.UpdatePreferences(c.Request.Context(), uid, prefs)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, updated)
}

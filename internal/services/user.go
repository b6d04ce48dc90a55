package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/repos"
	"github.com/notesnap/notesnap-backend/internal/types"
)

type UserService interface {
	GetPreferences(ctx context.Context, userID string) (*types.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, prefs types.Preferences) (*types.Preferences, error)
}

type userService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.UserRecordRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, repo repos.UserRecordRepo) UserService {
	return &userService{
		db:   db,
		log:  log.With("service", "UserService"),
		repo: repo,
	}
}

// GetPreferences returns defaults for users that have never saved
// anything; a record is only created on first write.
func (s *userService) GetPreferences(ctx context.Context, userID string) (*types.Preferences, error) {
	rec, err := s.repo.Get(ctx, nil, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs := types.DefaultPreferences()
		return &prefs, nil
	}
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load user record: %w", err))
	}
	prefs := types.DefaultPreferences()
	if len(rec.Preferences) > 0 {
		if err := json.Unmarshal(rec.Preferences, &prefs); err != nil {
			return nil, apierr.Internal(fmt.Errorf("decode preferences: %w", err))
		}
	}
	return &prefs, nil
}

func (s *userService) UpdatePreferences(ctx context.Context, userID string, prefs types.Preferences) (*types.Preferences, error) {
	if prefs.DefaultQuestionCount < 1 {
		return nil, apierr.Newf(apierr.CodeInvalidArgument, "defaultQuestionCount must be positive")
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("encode preferences: %w", err))
	}
	txn := func(tx *gorm.DB) error {
		rec, err := s.repo.GetForUpdate(ctx, tx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h := &types.History{}
			types.MigrateHistory(h)
			historyJSON, err := json.Marshal(h)
			if err != nil {
				return apierr.Internal(fmt.Errorf("encode history: %w", err))
			}
			return s.repo.Create(ctx, tx, &types.UserRecord{
				ID:          userID,
				History:     historyJSON,
				Preferences: prefsJSON,
			})
		}
		if err != nil {
			return apierr.Internal(fmt.Errorf("load user record: %w", err))
		}
		rec.Preferences = prefsJSON
		return s.repo.Save(ctx, tx, rec)
	}
	err = s.db.Transaction(txn)
	if isDuplicateKeyError(err) {
		// Lost a create race against another first write; the row exists
		// now, so the locked update path applies.
		err = s.db.Transaction(txn)
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

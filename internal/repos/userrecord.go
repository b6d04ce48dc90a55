package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/types"
)

// UserRecordRepo reads and writes the per-user document row. All study-set
// mutation goes through GetForUpdate inside a transaction, so concurrent
// saves for the same user serialize on the row lock while different users
// stay fully independent.
type UserRecordRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID string) (*types.UserRecord, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*types.UserRecord, error)
	Create(ctx context.Context, tx *gorm.DB, rec *types.UserRecord) error
	Save(ctx context.Context, tx *gorm.DB, rec *types.UserRecord) error
}

type userRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRecordRepo(db *gorm.DB, baseLog *logger.Logger) UserRecordRepo {
	return &userRecordRepo{db: db, log: baseLog.With("repo", "UserRecordRepo")}
}

func (r *userRecordRepo) Get(ctx context.Context, tx *gorm.DB, userID string) (*types.UserRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rec types.UserRecord
	if err := transaction.WithContext(ctx).
		Where("id = ?", userID).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *userRecordRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*types.UserRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx)
	// sqlite (tests) has no row locks; writes there serialize on the
	// database handle instead.
	if transaction.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec types.UserRecord
	if err := q.Where("id = ?", userID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *userRecordRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.UserRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(rec).Error
}

func (r *userRecordRepo) Save(ctx context.Context, tx *gorm.DB, rec *types.UserRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(rec).Error
}

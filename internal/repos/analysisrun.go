package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/types"
)

type AnalysisRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.AnalysisRun) ([]*types.AnalysisRun, error)
	GetByRunID(ctx context.Context, tx *gorm.DB, runID string) (*types.AnalysisRun, error)
	ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) ([]*types.AnalysisRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, runID string, updates map[string]interface{}) error
}

type analysisRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRunRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRunRepo {
	repoLog := baseLog.With("repo", "AnalysisRunRepo")
	return &analysisRunRepo{db: db, log: repoLog}
}

func (r *analysisRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.AnalysisRun) ([]*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.AnalysisRun{}, nil
	}
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *analysisRunRepo) GetByRunID(ctx context.Context, tx *gorm.DB, runID string) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if runID == "" {
		return nil, nil
	}
	var run types.AnalysisRun
	err := transaction.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *analysisRunRepo) ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) ([]*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.AnalysisRun
	if sessionID == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *analysisRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, runID string, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if runID == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("run_id = ?", runID).
		Updates(updates).Error
}

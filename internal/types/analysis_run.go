package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AnalysisRun struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID             string         `gorm:"column:run_id;not null;uniqueIndex" json:"run_id"`
	SessionID         string         `gorm:"column:session_id;not null;index" json:"session_id"`
	WorkflowID        string         `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Status            string         `gorm:"column:status;not null;index" json:"status"` // running|completed|cancelled|failed
	CompanyName       string         `gorm:"column:company_name" json:"company_name"`
	Predictions       datatypes.JSON `gorm:"type:jsonb;column:predictions" json:"predictions"`
	Reasoning         datatypes.JSON `gorm:"type:jsonb;column:reasoning" json:"reasoning"`
	RetrievalMeta     datatypes.JSON `gorm:"type:jsonb;column:retrieval_meta" json:"retrieval_meta"`
	FinalContext      string         `gorm:"column:final_context;type:text" json:"final_context"`
	TotalPredictions  int            `gorm:"column:total_predictions;not null;default:0" json:"total_predictions"`
	SectionsProcessed int            `gorm:"column:sections_processed;not null;default:0" json:"sections_processed"`
	Error             string         `gorm:"column:error" json:"error"`
	CompletedAt       *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AnalysisRun) TableName() string { return "analysis_run" }

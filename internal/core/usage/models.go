package usage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Action names recorded in the usage log
const (
	ActionGenerate = "generate"
	ActionEdit     = "edit"
)

// UsageLog is one billed action. Rows are write-once and purely
// informational; the ledger never reads them.
type UsageLog struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`

	UserID string `json:"user_id" gorm:"type:text;not null;index"`
	Action string `json:"action" gorm:"type:text;not null;index"` // generate, edit

	CreditsUsed int64  `json:"credits_used" gorm:"not null;default:0"`
	Model       string `json:"model,omitempty" gorm:"type:text"`
	Size        string `json:"size,omitempty" gorm:"type:text"`
	Quality     string `json:"quality,omitempty" gorm:"type:text"`
	N           int    `json:"n" gorm:"not null;default:1"`

	Meta datatypes.JSON `json:"meta,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name
func (UsageLog) TableName() string {
	return "usage_logs"
}

// BeforeCreate sets UUID before creating
func (l *UsageLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Record is what callers hand to the recorder
type Record struct {
	UserID      string
	Action      string
	CreditsUsed int64
	Model       string
	Size        string
	Quality     string
	N           int
	Meta        map[string]interface{}
}

// UsageFilter represents filters for querying usage logs
type UsageFilter struct {
	UserID    string
	Action    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// UsageLogResponse represents paginated usage log response
type UsageLogResponse struct {
	Logs       []UsageLog `json:"logs"`
	TotalCount int64      `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

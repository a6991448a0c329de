package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxPageSize = 100

// Service reads and writes the usage log
type Service struct {
	db *gorm.DB
}

// NewService creates a new usage service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AutoMigrate creates the usage_logs table for sqlite databases and tests.
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&UsageLog{})
}

// Log inserts one usage row
func (s *Service) Log(ctx context.Context, entry *UsageLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create usage log: %w", err)
	}
	return nil
}

// Save converts a Record into a row and inserts it.
func (s *Service) Save(ctx context.Context, rec Record) error {
	meta, err := toJSON(rec.Meta)
	if err != nil {
		log.Warn().Err(err).Str("user_id", rec.UserID).Msg("⚠️ Failed to serialize usage metadata")
	}

	n := rec.N
	if n < 1 {
		n = 1
	}

	return s.Log(ctx, &UsageLog{
		UserID:      rec.UserID,
		Action:      rec.Action,
		CreditsUsed: rec.CreditsUsed,
		Model:       rec.Model,
		Size:        rec.Size,
		Quality:     rec.Quality,
		N:           n,
		Meta:        meta,
	})
}

// GetLogs retrieves usage logs with filtering
func (s *Service) GetLogs(ctx context.Context, filter UsageFilter) (*UsageLogResponse, error) {
	query := s.db.WithContext(ctx).Model(&UsageLog{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count usage logs: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	offset := (filter.Page - 1) * filter.PageSize

	logs := []UsageLog{}
	if err := query.
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get usage logs: %w", err)
	}

	totalPages := int(totalCount) / filter.PageSize
	if int(totalCount)%filter.PageSize > 0 {
		totalPages++
	}

	return &UsageLogResponse{
		Logs:       logs,
		TotalCount: totalCount,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

// CreditsByAction sums credits used per action for a user since the given time.
func (s *Service) CreditsByAction(ctx context.Context, userID string, since time.Time) (map[string]int64, error) {
	var results []struct {
		Action string
		Total  int64
	}

	err := s.db.WithContext(ctx).Model(&UsageLog{}).
		Select("action, COALESCE(SUM(credits_used), 0) as total").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("action").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}

	stats := make(map[string]int64, len(results))
	for _, r := range results {
		stats[r.Action] = r.Total
	}
	return stats, nil
}

// DeleteOldLogs deletes usage logs older than daysToKeep days
func (s *Service) DeleteOldLogs(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 1 {
		return 0, fmt.Errorf("daysToKeep must be at least 1")
	}

	cutoff := s.db.NowFunc().AddDate(0, 0, -daysToKeep)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&UsageLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old usage logs: %w", result.Error)
	}

	log.Info().Int64("deleted", result.RowsAffected).Int("days", daysToKeep).Msg("🧹 Pruned usage logs")
	return result.RowsAffected, nil
}

func toJSON(value map[string]interface{}) (datatypes.JSON, error) {
	if len(value) == 0 {
		return nil, nil
	}

	bytes, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(bytes), nil
}

package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
)

type GenerationRepo interface {
	Create(ctx context.Context, gen *models.Generation) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Generation, error)
}

type generationRepo struct {
	db *gorm.DB
}

func NewGenerationRepo(db *gorm.DB) GenerationRepo {
	return &generationRepo{db: db}
}

func (r *generationRepo) Create(ctx context.Context, gen *models.Generation) error {
	return r.db.WithContext(ctx).Create(gen).Error
}

func (r *generationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Generation, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	generations := []models.Generation{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&generations).Error
	return generations, err
}

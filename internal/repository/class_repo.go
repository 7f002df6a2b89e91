package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/models"
)

// ClassRepository resolves target classes of assignments.
type ClassRepository interface {
	FindByIDs(ctx context.Context, ids []uint) ([]models.Class, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository constructs a class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Class, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var classes []models.Class
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&classes).Error; err != nil {
		return nil, err
	}

	return classes, nil
}

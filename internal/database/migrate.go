package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/models"
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Class{},
		&models.Student{},
		&models.Assignment{},
		&models.AssignmentAttachment{},
		&models.Submission{},
		&models.SubmissionFile{},
		&models.SubmissionGradeHistory{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/database"
	"github.com/noah-isme/tugas-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func seedAssignment(t *testing.T, db *gorm.DB, classes ...models.Class) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		TeacherID:        3,
		Title:            "Laporan Praktikum",
		OpenAt:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CloseAt:          time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		MaxScore:         100,
		AllowTextAnswer:  true,
		AllowFileUpload:  true,
		AllowedFileTypes: []string{"pdf"},
		Classes:          classes,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

func seedStudent(t *testing.T, db *gorm.DB, email string, classID *uint) models.Student {
	t.Helper()
	student := models.Student{Name: email, Email: email, ClassID: classID}
	require.NoError(t, db.Create(&student).Error)
	return student
}

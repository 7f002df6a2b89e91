package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/database"
	"github.com/noah-isme/tugas-api/internal/events"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/lock"
	"github.com/noah-isme/tugas-api/internal/models"
	"github.com/noah-isme/tugas-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
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

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	uploads int
	// failOn makes the n-th upload (1-based) fail; zero disables it.
	failOn int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads++
	if f.failOn > 0 && f.uploads == f.failOn {
		return "", errors.New("bucket unavailable")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	return "https://files.test/" + key, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	return keys
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.events))
	for _, event := range f.events {
		types = append(types, event.Type)
	}
	return types
}

type upload struct {
	name    string
	content string
}

func formFiles(t *testing.T, uploads ...upload) []*multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, u := range uploads {
		part, err := writer.CreateFormFile("files", u.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(u.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["files"]
}

type harness struct {
	db         *gorm.DB
	storage    *fakeStorage
	publisher  *fakePublisher
	locker     *lock.Local
	svc        *submissionService
	class      models.Class
	assignment models.Assignment
	student    models.Student
	now        time.Time
}

var (
	windowOpen  = time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)
	windowClose = time.Date(2025, 3, 8, 23, 59, 0, 0, time.UTC)
)

func newHarness(t *testing.T, configure ...func(*models.Assignment)) *harness {
	t.Helper()

	db := setupServiceDB(t)
	class := models.Class{Name: "XI-IPA-1"}
	require.NoError(t, db.Create(&class).Error)

	passing := 75.0
	assignment := models.Assignment{
		TeacherID:         3,
		Title:             "Laporan Praktikum Fisika",
		OpenAt:            windowOpen,
		CloseAt:           windowClose,
		MaxScore:          100,
		PassingGrade:      &passing,
		AllowTextAnswer:   true,
		AllowFileUpload:   true,
		AllowedFileTypes:  []string{"pdf", "docx"},
		AllowCancelSubmit: true,
		Classes:           []models.Class{class},
	}
	for _, fn := range configure {
		fn(&assignment)
	}
	require.NoError(t, db.Create(&assignment).Error)

	student := models.Student{Name: "Sari", Email: "sari@example.com", ClassID: &class.ID}
	require.NoError(t, db.Create(&student).Error)

	h := &harness{
		db:         db,
		storage:    newFakeStorage(),
		publisher:  &fakePublisher{},
		locker:     lock.NewLocal(),
		class:      class,
		assignment: assignment,
		student:    student,
		now:        windowOpen.Add(48 * time.Hour),
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	h.svc = newSubmissionService(SubmissionDependencies{
		Submissions: repository.NewSubmissionRepository(db),
		Assignments: repository.NewAssignmentRepository(db),
		Students:    repository.NewStudentRepository(db),
		Storage:     h.storage,
		Locker:      h.locker,
		Activity:    NewActivityService(repository.NewActivityLogRepository(db), validate, testLogger()),
		Events:      h.publisher,
		Validator:   validate,
		LockWait:    time.Second,
		Logger:      testLogger(),
	}, "submission_service")
	h.svc.now = func() time.Time { return h.now }

	return h
}

func (h *harness) studentActor() lifecycle.Actor {
	return lifecycle.Actor{ID: h.student.ID, Role: lifecycle.RoleStudent}
}

func (h *harness) teacherActor() lifecycle.Actor {
	return lifecycle.Actor{ID: h.assignment.TeacherID, Role: lifecycle.RoleTeacher}
}

func (h *harness) storedSubmission(t *testing.T) models.Submission {
	t.Helper()
	var submission models.Submission
	require.NoError(t, h.db.Preload("Files").
		Where("assignment_id = ? AND student_id = ?", h.assignment.ID, h.student.ID).
		First(&submission).Error)
	return submission
}

func (h *harness) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var total int64
	require.NoError(t, h.db.Model(model).Count(&total).Error)
	return total
}

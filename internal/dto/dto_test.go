package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tugas-api/internal/models"
)

func TestPaginationMeta(t *testing.T) {
	require.Equal(t, 3, NewPaginationMeta(1, 10, 21).TotalPages)
	require.Equal(t, 0, NewPaginationMeta(1, 10, 0).TotalPages)

	page, size := NormalizePage(0, 500, 20, 100)
	require.Equal(t, 1, page)
	require.Equal(t, 100, size)
}

func TestWindowState(t *testing.T) {
	a := models.Assignment{
		OpenAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CloseAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	require.Equal(t, WindowUpcoming, WindowState(a, a.OpenAt.Add(-time.Second)))
	require.Equal(t, WindowOpen, WindowState(a, a.OpenAt))
	require.Equal(t, WindowOpen, WindowState(a, a.CloseAt))
	require.Equal(t, WindowClosed, WindowState(a, a.CloseAt.Add(time.Second)))
}

func TestSubmissionResponseReportsPassed(t *testing.T) {
	passing := 70.0
	score := 65.0
	a := models.Assignment{PassingGrade: &passing}
	s := models.Submission{ID: 4, Status: models.SubmissionStatusGraded, Score: &score}

	response := NewSubmissionResponse(a, s)
	require.NotNil(t, response.Passed)
	require.False(t, *response.Passed)
	require.NotNil(t, response.Files)
	require.Nil(t, response.Student)

	pending := NewSubmissionResponse(a, models.Submission{Status: models.SubmissionStatusPending})
	require.Nil(t, pending.Passed)
	require.Nil(t, pending.UpdatedAt)
}

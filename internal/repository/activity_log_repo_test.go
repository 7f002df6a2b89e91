package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tugas-api/internal/models"
)

func TestActivityLogRepositoryFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	submissionID := uint(5)
	otherID := uint(6)
	entries := []models.ActivityLog{
		{ActorID: 7, ActorRole: "student", Action: models.ActionSubmitted, EntityType: "submission", EntityID: &submissionID},
		{ActorID: 3, ActorRole: "teacher", Action: models.ActionGraded, EntityType: "submission", EntityID: &submissionID},
		{ActorID: 8, ActorRole: "student", Action: models.ActionSubmitted, EntityType: "submission", EntityID: &otherID},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	result, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "submission", EntityID: &submissionID})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, models.ActionGraded, result[0].Action, "newest entry first")

	result, total, err = repo.List(ctx, ActivityLogFilter{Action: models.ActionSubmitted, Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, result, 1)
}

package minio

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "tugas"}, zerolog.Nop())
	require.Error(t, err)
}

func TestObjectURL(t *testing.T) {
	require.Equal(t, "http://localhost:9000", publicBase(Config{Endpoint: "localhost:9000/"}))
	require.Equal(t, "https://s3.school.id", publicBase(Config{Endpoint: "s3.school.id", UseSSL: true}))
	require.Equal(t, "https://cdn.school.id", publicBase(Config{Endpoint: "s3.school.id", PublicURL: "https://cdn.school.id/"}))

	require.Equal(t,
		"https://cdn.school.id/tugas/submissions/1/2/my%20essay.pdf",
		objectURL("https://cdn.school.id", "tugas", "submissions/1/2/my essay.pdf"),
	)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TUGAS_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, StorageLocal, cfg.StorageDriver)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, 5*time.Second, cfg.LockWait)
	require.Equal(t, time.Minute, cfg.SubmitRateWindow)
	require.Equal(t, int64(10*1024*1024), cfg.UploadMaxBytes())
	require.Equal(t, 10, cfg.UploadMaxFiles)
	require.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TUGAS_JWT_SECRET", "secret")
	t.Setenv("TUGAS_APP_PORT", ":9090")
	t.Setenv("TUGAS_APP_ENV", "production")
	t.Setenv("TUGAS_STORAGE_DRIVER", "MinIO")
	t.Setenv("TUGAS_MINIO_USE_SSL", "true")
	t.Setenv("TUGAS_LOCK_TTL", "10s")
	t.Setenv("TUGAS_UPLOAD_MAX_SIZE_MB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, StorageMinio, cfg.StorageDriver)
	require.True(t, cfg.MinioUseSSL)
	require.Equal(t, 10*time.Second, cfg.LockTTL)
	require.Equal(t, int64(2*1024*1024), cfg.UploadMaxBytes())
	require.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("TUGAS_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("TUGAS_JWT_SECRET", "secret")
	t.Setenv("TUGAS_STORAGE_DRIVER", "ftp")
	_, err = Load()
	require.ErrorContains(t, err, "unsupported storage driver")

	t.Setenv("TUGAS_STORAGE_DRIVER", "local")
	t.Setenv("TUGAS_LOCK_WAIT", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "lock.wait")
}

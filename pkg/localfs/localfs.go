// Package localfs stores submission files on the local disk, for development
// and single-node deployments. Files are served by the HTTP layer under BaseURL.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidKey rejects keys that would escape the storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// Service writes objects below its root directory.
type Service struct {
	root    string
	baseURL string
}

// New creates the root directory when needed.
func New(root, baseURL string) (*Service, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local storage root must be provided")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Service{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are written to.
func (s *Service) Root() string {
	return s.root
}

func (s *Service) Upload(ctx context.Context, key string, reader io.Reader, _ int64, _ string) (string, error) {
	dst, clean, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}

	return s.baseURL + "/" + clean, nil
}

// Delete removes the object stored under key. Missing objects are not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	dst, _, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Service) resolve(key string) (string, string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), clean, nil
}

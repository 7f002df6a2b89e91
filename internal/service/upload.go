package service

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/tugas-api/internal/lifecycle"
)

var (
	// ErrUploadTooLarge indicates a file exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrTooManyFiles indicates a request carried more files than allowed.
	ErrTooManyFiles = errors.New("too many files in one request")
	// ErrUploadScanFailed indicates an archive failed the safety scan.
	ErrUploadScanFailed = errors.New("file scanning failed")
)

// UploadLimits bounds what a single request may carry.
type UploadLimits struct {
	MaxBytes int64
	MaxFiles int
}

func (l UploadLimits) withDefaults() UploadLimits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = 10 * 1024 * 1024
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = 10
	}
	return l
}

// readUploads loads multipart files into memory, sniffing their content type
// and applying the size limit and archive scan to each.
func readUploads(files []*multipart.FileHeader, limits UploadLimits) ([]lifecycle.RawFile, error) {
	return readAcceptedUploads(files, nil, limits)
}

// readAcceptedUploads is readUploads for submission files. Files that accept
// refuses are returned by name only, unread, so reconciliation can reject them
// one by one instead of a guard failing the whole request. A nil accept reads
// every file.
func readAcceptedUploads(files []*multipart.FileHeader, accept func(name string) bool, limits UploadLimits) ([]lifecycle.RawFile, error) {
	limits = limits.withDefaults()
	if len(files) > limits.MaxFiles {
		return nil, ErrTooManyFiles
	}

	raws := make([]lifecycle.RawFile, 0, len(files))
	for _, header := range files {
		if header == nil {
			continue
		}
		if accept != nil && !accept(header.Filename) {
			raws = append(raws, lifecycle.RawFile{Name: header.Filename})
			continue
		}

		raw, err := readUpload(header, limits)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}

	return raws, nil
}

func readUpload(header *multipart.FileHeader, limits UploadLimits) (lifecycle.RawFile, error) {
	if header.Size > limits.MaxBytes {
		return lifecycle.RawFile{}, fmt.Errorf("%s: %w", header.Filename, ErrUploadTooLarge)
	}

	content, err := readLimited(header, limits.MaxBytes)
	if err != nil {
		return lifecycle.RawFile{}, err
	}

	contentType := mimetype.Detect(content).String()
	if err := scanArchive(content, contentType, limits.MaxBytes); err != nil {
		return lifecycle.RawFile{}, fmt.Errorf("%s: %w", header.Filename, err)
	}

	return lifecycle.RawFile{
		Name:        header.Filename,
		ContentType: contentType,
		Content:     content,
	}, nil
}

func readLimited(header *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	handle, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxBytes+1)); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", header.Filename, err)
	}
	if int64(buf.Len()) > maxBytes {
		return nil, fmt.Errorf("%s: %w", header.Filename, ErrUploadTooLarge)
	}

	return buf.Bytes(), nil
}

// scanArchive refuses zip files whose uncompressed size is out of proportion.
func scanArchive(payload []byte, contentType string, maxBytes int64) error {
	if !strings.Contains(contentType, "zip") {
		return nil
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}

	var total uint64
	for _, f := range reader.File {
		total += f.UncompressedSize64
		if total > uint64(maxBytes*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}

	return nil
}

package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/tugas-api/internal/models"
)

// fileNamespace seeds the deterministic identifiers of newly added files.
var fileNamespace = uuid.MustParse("6f1d9a52-3c1e-4d7a-9b43-5f0c2e8a7d11")

// Rejection reasons reported for files that were not accepted.
const (
	RejectReasonExtension       = "extension_not_allowed"
	RejectReasonUploadsDisabled = "uploads_disabled"
)

// RawFile is a locally chosen file that has not been stored yet.
type RawFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// Extension returns the lower-cased extension without the leading dot.
func (f RawFile) Extension() string {
	return fileExtension(f.Name)
}

// FileDelta is the pending change to a submission's files. Removals are a
// proposal evaluated only at commit, so marking and restoring never touch the
// stored set. FileDelta is a value: the mutators return a modified copy.
type FileDelta struct {
	RemovedIDs map[string]struct{}
	Added      []RawFile
}

// NewFileDelta builds a delta from added files and ids marked for removal.
func NewFileDelta(added []RawFile, removedIDs ...string) FileDelta {
	delta := FileDelta{Added: added}
	for _, id := range removedIDs {
		delta = delta.MarkRemoved(id)
	}
	return delta
}

// MarkRemoved stages an existing file for removal.
func (d FileDelta) MarkRemoved(id string) FileDelta {
	id = strings.TrimSpace(id)
	if id == "" {
		return d
	}
	removed := make(map[string]struct{}, len(d.RemovedIDs)+1)
	for existing := range d.RemovedIDs {
		removed[existing] = struct{}{}
	}
	removed[id] = struct{}{}
	d.RemovedIDs = removed
	return d
}

// Restore un-marks a file previously staged for removal.
func (d FileDelta) Restore(id string) FileDelta {
	if _, ok := d.RemovedIDs[id]; !ok {
		return d
	}
	removed := make(map[string]struct{}, len(d.RemovedIDs))
	for existing := range d.RemovedIDs {
		if existing != id {
			removed[existing] = struct{}{}
		}
	}
	d.RemovedIDs = removed
	return d
}

// IsMarked reports whether id is staged for removal ("will be removed").
func (d FileDelta) IsMarked(id string) bool {
	_, ok := d.RemovedIDs[id]
	return ok
}

// IsEmpty reports whether the delta proposes no change at all.
func (d FileDelta) IsEmpty() bool {
	return len(d.RemovedIDs) == 0 && len(d.Added) == 0
}

// RejectedFile describes a new file that was excluded from the result.
type RejectedFile struct {
	Name      string
	Extension string
	Reason    string
}

// PendingUpload is an accepted new file that must be stored before commit.
type PendingUpload struct {
	File    models.SubmissionFile
	Content []byte
}

// Reconciliation is the net effect of applying a FileDelta.
type Reconciliation struct {
	// Files is the complete ordered file set to persist.
	Files []models.SubmissionFile
	// Removed are stored files dropped by the delta; their objects are deleted
	// once the commit succeeds.
	Removed  []models.SubmissionFile
	Uploads  []PendingUpload
	Rejected []RejectedFile
}

// Changed reports whether the reconciled set differs from the existing one.
func (r Reconciliation) Changed() bool {
	return len(r.Removed) > 0 || len(r.Uploads) > 0
}

// Reconcile computes (existing minus removed) plus the allowed new files.
// Unknown removal ids are ignored. New files whose extension is outside
// allowedExtensions are excluded and reported one by one; a nil allow-list
// means uploads are disabled. Reconcile has no side effects and returns the
// same result for the same inputs.
func Reconcile(existing []models.SubmissionFile, delta FileDelta, allowedExtensions []string) Reconciliation {
	result := Reconciliation{
		Files: make([]models.SubmissionFile, 0, len(existing)+len(delta.Added)),
	}

	taken := make(map[string]struct{}, len(existing)+len(delta.Added))
	for _, file := range existing {
		taken[file.ID] = struct{}{}
		if delta.IsMarked(file.ID) {
			result.Removed = append(result.Removed, file)
			continue
		}
		result.Files = append(result.Files, file)
	}

	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range models.NormalizeExtensions(allowedExtensions) {
		allowed[ext] = struct{}{}
	}

	for index, raw := range delta.Added {
		ext := raw.Extension()
		if allowedExtensions == nil {
			result.Rejected = append(result.Rejected, RejectedFile{Name: raw.Name, Extension: ext, Reason: RejectReasonUploadsDisabled})
			continue
		}
		if _, ok := allowed[ext]; !ok || ext == "" {
			result.Rejected = append(result.Rejected, RejectedFile{Name: raw.Name, Extension: ext, Reason: RejectReasonExtension})
			continue
		}

		id := newFileID(raw, index, 0)
		for attempt := 1; ; attempt++ {
			if _, clash := taken[id]; !clash {
				break
			}
			id = newFileID(raw, index, attempt)
		}
		taken[id] = struct{}{}

		file := models.SubmissionFile{
			ID:          id,
			Name:        displayName(raw.Name),
			StoragePath: id + "." + ext,
			ContentType: raw.ContentType,
			SizeBytes:   int64(len(raw.Content)),
		}
		result.Files = append(result.Files, file)
		result.Uploads = append(result.Uploads, PendingUpload{File: file, Content: raw.Content})
	}

	for i := range result.Files {
		result.Files[i].Position = i
	}

	return result
}

// AcceptsFile reports whether Reconcile would keep a new file called name
// under allowedExtensions.
func AcceptsFile(allowedExtensions []string, name string) bool {
	if allowedExtensions == nil {
		return false
	}
	ext := fileExtension(name)
	if ext == "" {
		return false
	}
	for _, allowed := range models.NormalizeExtensions(allowedExtensions) {
		if allowed == ext {
			return true
		}
	}
	return false
}

func newFileID(raw RawFile, index, attempt int) string {
	digest := sha256.Sum256(raw.Content)
	seed := hex.EncodeToString(digest[:]) + "|" + raw.Name + "|" + strconv.Itoa(index) + "|" + strconv.Itoa(attempt)
	return uuid.NewSHA1(fileNamespace, []byte(seed)).String()
}

func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
}

func displayName(name string) string {
	base := filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if base == "." || base == "/" {
		return "file"
	}
	return base
}

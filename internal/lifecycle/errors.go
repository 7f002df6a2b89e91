package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a submission operation was refused.
type Kind string

const (
	KindNotOpenYet       Kind = "not_open_yet"
	KindEmptyAnswer      Kind = "empty_answer"
	KindInvalidFileType  Kind = "invalid_file_type"
	KindLocked           Kind = "locked"
	KindCancelNotAllowed Kind = "cancel_not_allowed"
	KindWindowClosed     Kind = "window_closed"
	KindWrongState       Kind = "wrong_state"
	KindNoContent        Kind = "no_content"
	KindScoreOutOfRange  Kind = "score_out_of_range"
	KindForbidden        Kind = "forbidden"
	KindStorageFailure   Kind = "storage_failure"
)

// AnswerMode names which answer channels an assignment accepts.
type AnswerMode string

const (
	AnswerModeText       AnswerMode = "text"
	AnswerModeFile       AnswerMode = "file"
	AnswerModeTextOrFile AnswerMode = "text_or_file"
)

// Error is the tagged failure returned by every lifecycle operation.
// Match it with errors.Is against the exported sentinels, or errors.As to read
// the mode and rejected files.
type Error struct {
	Kind     Kind
	Mode     AnswerMode
	Rejected []RejectedFile
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Mode != "" {
		b.WriteString(": ")
		b.WriteString(string(e.Mode))
	}
	if len(e.Rejected) > 0 {
		fmt.Fprintf(&b, " (%d file(s) rejected)", len(e.Rejected))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches on Kind so callers can compare against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrNotOpenYet       = &Error{Kind: KindNotOpenYet}
	ErrEmptyAnswer      = &Error{Kind: KindEmptyAnswer}
	ErrInvalidFileType  = &Error{Kind: KindInvalidFileType}
	ErrLocked           = &Error{Kind: KindLocked}
	ErrCancelNotAllowed = &Error{Kind: KindCancelNotAllowed}
	ErrWindowClosed     = &Error{Kind: KindWindowClosed}
	ErrWrongState       = &Error{Kind: KindWrongState}
	ErrNoContent        = &Error{Kind: KindNoContent}
	ErrScoreOutOfRange  = &Error{Kind: KindScoreOutOfRange}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrStorageFailure   = &Error{Kind: KindStorageFailure}
)

// StorageFailure wraps an I/O error coming from file storage or persistence.
func StorageFailure(err error) error {
	return &Error{Kind: KindStorageFailure, Err: err}
}

func fail(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind of err, or "" when err is not a lifecycle error.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return ""
}

package repository

import "errors"

// ErrAssignmentInUse prevents deleting an assignment that already has submissions.
var ErrAssignmentInUse = errors.New("assignment has submissions")

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity actions recorded for submission transitions.
const (
	ActionDraftSaved = "submission.draft_saved"
	ActionSubmitted  = "submission.submitted"
	ActionCancelled  = "submission.cancelled"
	ActionGraded     = "submission.graded"

	ActionAssignmentCreated = "assignment.created"
	ActionAssignmentUpdated = "assignment.updated"
	ActionAssignmentDeleted = "assignment.deleted"
)

// ActivityLog is one audit entry of a student or teacher action.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null;index:idx_activity_entity" json:"entity_type"`
	EntityID   *uint             `gorm:"index:idx_activity_entity" json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TicketStatusTodo       = "todo"
	TicketStatusInProgress = "in_progress"
	TicketStatusCodeReview = "code_review"
	TicketStatusDone       = "done"
)

const (
	TicketTypeFeature = "feature"
	TicketTypeBug     = "bug"
	TicketTypeChore   = "chore"
	TicketTypeSpike   = "spike"
)

const (
	TicketPriorityLow      = "low"
	TicketPriorityMedium   = "medium"
	TicketPriorityHigh     = "high"
	TicketPriorityCritical = "critical"
)

type Ticket struct {
	ID                 uint                        `gorm:"primaryKey" json:"id"`
	ProjectID          uint                        `gorm:"not null;index" json:"project_id"`
	Title              string                      `gorm:"type:varchar(255);not null" json:"title"`
	Description        string                      `gorm:"type:text" json:"description"`
	UserStory          string                      `gorm:"type:text" json:"user_story"`
	TechnicalSpecs     datatypes.JSONSlice[string] `gorm:"type:json" json:"technical_specs"`
	AcceptanceCriteria datatypes.JSONSlice[string] `gorm:"type:json" json:"acceptance_criteria"`
	Status             string                      `gorm:"type:varchar(20);not null;default:'todo'" json:"status"`
	Type               string                      `gorm:"type:varchar(20);not null" json:"type"`
	Priority           string                      `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	Complexity         int                         `gorm:"not null" json:"complexity"`
	Position           int                         `gorm:"not null;default:0" json:"position"`
	EstimatedHours     *int                        `json:"estimated_hours"`
	Notes              *string                     `gorm:"type:text" json:"notes"`
	CreatedAt          time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEnriched reports whether technical details were already generated.
func (t *Ticket) IsEnriched() bool {
	return len(t.TechnicalSpecs) > 0 && len(t.AcceptanceCriteria) > 0
}

package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// Generation status of a project created together with its AI tickets.
// Projects created by hand carry an empty status.
const (
	GenerationStatusPending = "pending"
	GenerationStatusReady   = "ready"
	GenerationStatusFailed  = "failed"
)

type Project struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	UserID           uint                        `gorm:"not null;index" json:"user_id"`
	Name             string                      `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	Description      string                      `gorm:"type:text" json:"description" validate:"max=5000"`
	TechStack        datatypes.JSONSlice[string] `gorm:"type:json" json:"tech_stack" validate:"max=30,dive,max=100"`
	GenerationStatus string                      `gorm:"type:varchar(16);not null;default:'';index" json:"generation_status"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
	Tickets          []Ticket                    `gorm:"constraint:OnDelete:CASCADE" json:"tickets,omitempty"`
}

// IsOwnedBy reports whether the project belongs to the given user.
func (p *Project) IsOwnedBy(userID uint) bool {
	return p != nil && p.UserID == userID
}

func (p *Project) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/billing"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
)

// ProjectRepository defines the project and ticket operations. It is the
// store used by the generation orchestrator and the orphan sweep.
type ProjectRepository interface {
	orchestrator.ProjectStore
	ListByUser(ctx context.Context, userID uint) ([]models.Project, error)
	ListTickets(ctx context.Context, projectID uint) ([]models.Ticket, error)
	DeleteOrphanedProjects(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Repositories contains all repository instances
type Repositories struct {
	Project       ProjectRepository
	Accounts      ledger.Store
	WebhookEvents billing.EventLog
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Project:       NewProjectRepository(db),
		Accounts:      ledger.NewGormStore(db),
		WebhookEvents: billing.NewRepository(db),
	}
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
)

const ticketBatchSize = 50

// projectRepository implements the ProjectRepository interface
type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new project repository instance
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) CreateProject(ctx context.Context, p *models.Project) error {
	return r.db.WithContext(ctx).Omit("Tickets").Create(p).Error
}

func (r *projectRepository) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, id).Error
	if err != nil {
		return nil, notFound(err, orchestrator.ErrProjectNotFound)
	}
	return &project, nil
}

// DeleteProject removes the project and its tickets in one transaction.
func (r *projectRepository) DeleteProject(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Ticket{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Project{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return orchestrator.ErrProjectNotFound
		}
		return nil
	})
}

func (r *projectRepository) SaveGeneratedTickets(ctx context.Context, projectID uint, tickets []models.Ticket) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Project{}).
			Where("id = ?", projectID).
			Update("generation_status", models.GenerationStatusReady)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// MySQL reports 0 affected rows when the value is unchanged
			var count int64
			if err := tx.Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return orchestrator.ErrProjectNotFound
			}
		}
		if len(tickets) == 0 {
			return nil
		}
		for i := range tickets {
			tickets[i].ProjectID = projectID
		}
		return tx.CreateInBatches(tickets, ticketBatchSize).Error
	})
}

func (r *projectRepository) MarkGenerationFailed(ctx context.Context, projectID uint) error {
	return r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Update("generation_status", models.GenerationStatusFailed).Error
}

func (r *projectRepository) GetTicketWithProject(ctx context.Context, ticketID uint) (*models.Ticket, *models.Project, error) {
	db := r.db.WithContext(ctx)
	var ticket models.Ticket
	if err := db.First(&ticket, ticketID).Error; err != nil {
		return nil, nil, notFound(err, orchestrator.ErrTicketNotFound)
	}
	var project models.Project
	if err := db.First(&project, ticket.ProjectID).Error; err != nil {
		return nil, nil, notFound(err, orchestrator.ErrTicketNotFound)
	}
	return &ticket, &project, nil
}

func (r *projectRepository) SaveTicketDetails(ctx context.Context, ticketID uint, details generator.TicketDetails) error {
	res := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Updates(map[string]interface{}{
			"technical_specs":     datatypes.JSONSlice[string](details.TechnicalSpecs),
			"acceptance_criteria": datatypes.JSONSlice[string](details.AcceptanceCriteria),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return orchestrator.ErrTicketNotFound
	}
	return nil
}

// ListByUser returns the user's projects, newest first.
func (r *projectRepository) ListByUser(ctx context.Context, userID uint) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}

func (r *projectRepository) ListTickets(ctx context.Context, projectID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("position ASC, id ASC").
		Find(&tickets).Error
	return tickets, err
}

// DeleteOrphanedProjects removes projects created together with a generation
// that never committed: still pending or failed, older than createdBefore and
// without any tickets.
func (r *projectRepository) DeleteOrphanedProjects(ctx context.Context, createdBefore time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		err := tx.Model(&models.Project{}).
			Where("generation_status IN ?", []string{models.GenerationStatusPending, models.GenerationStatusFailed}).
			Where("created_at < ?", createdBefore).
			Where("NOT EXISTS (SELECT 1 FROM tickets WHERE tickets.project_id = projects.id)").
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Project{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// notFound translates gorm's record-not-found into the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

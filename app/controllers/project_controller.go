package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

// ProjectReader is the read side of the project repository.
type ProjectReader interface {
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Project, error)
	ListTickets(ctx context.Context, projectID uint) ([]models.Ticket, error)
}

type ProjectController struct {
	projects ProjectReader
}

func NewProjectController(projects ProjectReader) *ProjectController {
	return &ProjectController{projects: projects}
}

func (pc *ProjectController) HandleList(c *fiber.Ctx) error {
	projects, err := pc.projects.ListByUser(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"projects": projects})
}

// HandleTickets lists the tickets of a project the caller owns.
func (pc *ProjectController) HandleTickets(c *fiber.Ctx) error {
	projectID, ok := paramID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "invalid project id")
	}
	project, err := pc.projects.GetProject(c.UserContext(), projectID)
	if err != nil {
		return writeError(c, err)
	}
	if !project.IsOwnedBy(usercontext.GetUserID(c)) {
		return jsonError(c, fiber.StatusNotFound, "project_not_found", "project not found")
	}
	tickets, err := pc.projects.ListTickets(c.UserContext(), projectID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"project": project, "tickets": tickets})
}

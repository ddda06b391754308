package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

type generationRequest struct {
	Guidance string `json:"guidance" validate:"max=2000"`
}

type projectGenerationRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	TechStack   []string `json:"tech_stack" validate:"max=30,dive,max=100"`
	Guidance    string   `json:"guidance" validate:"max=2000"`
}

type GenerationController struct {
	engine Engine
}

func NewGenerationController(engine Engine) *GenerationController {
	return &GenerationController{engine: engine}
}

// HandleGenerateForProject generates tickets for an existing project.
func (gc *GenerationController) HandleGenerateForProject(c *fiber.Ctx) error {
	projectID, ok := paramID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "invalid project id")
	}
	var req generationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_body", err.Error())
		}
	}
	if err := validate.Struct(req); err != nil {
		return writeError(c, err)
	}

	res, err := gc.engine.RunSingleGeneration(c.UserContext(), usercontext.GetUserID(c), projectID, generator.Options{Guidance: req.Guidance})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// HandleGenerateProject creates a project together with its tickets.
func (gc *GenerationController) HandleGenerateProject(c *fiber.Ctx) error {
	var req projectGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return writeError(c, err)
	}

	res, err := gc.engine.RunProjectGeneration(c.UserContext(), usercontext.GetUserID(c), orchestrator.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		TechStack:   req.TechStack,
	}, generator.Options{Guidance: req.Guidance})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleEnrichTicket adds technical details to a ticket. Not metered.
func (gc *GenerationController) HandleEnrichTicket(c *fiber.Ctx) error {
	ticketID, ok := paramID(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "invalid ticket id")
	}
	ticket, err := gc.engine.EnrichTicket(c.UserContext(), usercontext.GetUserID(c), ticketID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ticket)
}

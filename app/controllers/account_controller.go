package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

type AccountController struct {
	engine Engine
}

func NewAccountController(engine Engine) *AccountController {
	return &AccountController{engine: engine}
}

// HandleRegister opens the caller's account. Calling it again returns the
// existing account.
func (ac *AccountController) HandleRegister(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	acc, err := ac.engine.RegisterAccount(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(acc)
}

// HandleUsage returns the current usage window. It never charges.
func (ac *AccountController) HandleUsage(c *fiber.Ctx) error {
	w, err := ac.engine.EvaluateUsage(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(w)
}

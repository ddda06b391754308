// Package generator defines the contract of the AI ticket generator and the
// parsing rules its output has to pass before anything is persisted.
package generator

import (
	"context"
	"errors"
)

// ErrMalformedOutput is returned when the generator answered with content
// that does not parse into the expected shape.
var ErrMalformedOutput = errors.New("generator: malformed output")

// ProjectSpec describes the project tickets are generated for.
type ProjectSpec struct {
	Name        string
	Description string
	TechStack   []string
}

// Options tunes a generation run.
type Options struct {
	Guidance string `json:"guidance" validate:"max=2000"`
}

// Item is one generated ticket.
type Item struct {
	Title          string  `json:"title" validate:"required,max=255"`
	Description    string  `json:"description" validate:"max=5000"`
	UserStory      string  `json:"userStory" validate:"max=2000"`
	Type           string  `json:"type" validate:"required,oneof=feature bug chore spike"`
	Priority       string  `json:"priority" validate:"required,oneof=low medium high critical"`
	Complexity     int     `json:"complexity" validate:"min=1,max=5"`
	Position       int     `json:"position" validate:"min=0"`
	EstimatedHours *int    `json:"estimatedHours" validate:"omitempty,min=0"`
	Notes          *string `json:"notes"`
}

// TicketBrief is the input of a ticket enrichment.
type TicketBrief struct {
	Title       string
	Description string
	UserStory   string
	TechStack   []string
}

// TicketDetails are the lazily generated technical details of a ticket.
type TicketDetails struct {
	TechnicalSpecs     []string `json:"technicalSpecs" validate:"required,min=1,max=20,dive,required"`
	AcceptanceCriteria []string `json:"acceptanceCriteria" validate:"required,min=1,max=20,dive,required"`
}

// Generator produces ticket content. Implementations may be slow and may
// fail; callers bound every call with a context deadline.
type Generator interface {
	GenerateTickets(ctx context.Context, spec ProjectSpec, opts Options) ([]Item, error)
	EnrichTicket(ctx context.Context, brief TicketBrief) (*TicketDetails, error)
}

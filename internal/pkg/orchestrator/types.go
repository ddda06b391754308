package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/quota"
)

var (
	ErrProjectNotFound = errors.New("orchestrator: project not found")
	ErrTicketNotFound  = errors.New("orchestrator: ticket not found")
)

// Stage names the step of a generation that failed.
type Stage string

const (
	StageQuota       Stage = "quota"
	StageProject     Stage = "project"
	StageGenerator   Stage = "generator"
	StagePersistence Stage = "persistence"
)

// StageError is the typed failure of an orchestrated call.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("generation failed at %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage of err, or "" when err is not a StageError.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type JobKind string

const (
	JobSingle         JobKind = "single"
	JobWithNewProject JobKind = "with_new_project"
)

type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// GenerationJob tracks one orchestrated call. It is never persisted.
type GenerationJob struct {
	ID               uuid.UUID `json:"id"`
	AccountID        uint      `json:"account_id"`
	Kind             JobKind   `json:"kind"`
	CreatedProjectID *uint     `json:"created_project_id,omitempty"`
	Outcome          Outcome   `json:"outcome"`
	StartedAt        time.Time `json:"started_at"`
}

func newJob(accountID uint, kind JobKind) *GenerationJob {
	return &GenerationJob{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      kind,
		Outcome:   OutcomePending,
		StartedAt: time.Now(),
	}
}

// Result is returned by a committed generation.
type Result struct {
	Job     GenerationJob     `json:"job"`
	Project *models.Project   `json:"project"`
	Tickets []models.Ticket   `json:"tickets"`
	Usage   quota.UsageWindow `json:"usage"`
}

// ProjectInput describes a project created together with its tickets.
type ProjectInput struct {
	Name        string
	Description string
	TechStack   []string
}

// ProjectStore persists projects and tickets. SaveGeneratedTickets writes all
// tickets and marks the project ready in one transaction.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	DeleteProject(ctx context.Context, id uint) error
	SaveGeneratedTickets(ctx context.Context, projectID uint, tickets []models.Ticket) error
	MarkGenerationFailed(ctx context.Context, projectID uint) error
	GetTicketWithProject(ctx context.Context, ticketID uint) (*models.Ticket, *models.Project, error)
	SaveTicketDetails(ctx context.Context, ticketID uint, details generator.TicketDetails) error
}

// Compensator retries a project cleanup that could not be completed inline.
type Compensator interface {
	EnqueueProjectCleanup(ctx context.Context, projectID uint) error
}

// Config bounds the blocking steps of a generation.
type Config struct {
	GeneratorTimeout time.Duration
	PersistTimeout   time.Duration
	CleanupTimeout   time.Duration
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		GeneratorTimeout: 60 * time.Second,
		PersistTimeout:   30 * time.Second,
		CleanupTimeout:   30 * time.Second,
	}
}

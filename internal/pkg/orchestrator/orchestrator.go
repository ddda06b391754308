// Package orchestrator runs metered ticket generations: check the quota, call
// the generator, persist the result and only then charge usage. Any failure
// after a project was created removes that project again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/quota"
)

type Orchestrator struct {
	guard       *quota.Guard
	ledger      *ledger.Ledger
	generator   generator.Generator
	store       ProjectStore
	compensator Compensator
	cfg         Config
}

// New creates an orchestrator. compensator may be nil, in which case failed
// cleanups are left to the orphan sweep.
func New(guard *quota.Guard, l *ledger.Ledger, gen generator.Generator, store ProjectStore, compensator Compensator, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = def.GeneratorTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = def.CleanupTimeout
	}
	return &Orchestrator{
		guard:       guard,
		ledger:      l,
		generator:   gen,
		store:       store,
		compensator: compensator,
		cfg:         cfg,
	}
}

// RunSingle generates tickets for an existing project of the account.
func (o *Orchestrator) RunSingle(ctx context.Context, accountID, projectID uint, opts generator.Options) (*Result, error) {
	job := newJob(accountID, JobSingle)

	if _, err := o.guard.Check(ctx, accountID); err != nil {
		return nil, &StageError{Stage: StageQuota, Err: err}
	}

	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, &StageError{Stage: StageProject, Err: err}
	}
	if !project.IsOwnedBy(accountID) {
		return nil, &StageError{Stage: StageProject, Err: ErrProjectNotFound}
	}

	items, err := o.generate(ctx, project, opts)
	if err != nil {
		log.Warnf("[Orchestrator] Job %s: generator failed for project %d: %v", job.ID, projectID, err)
		return nil, &StageError{Stage: StageGenerator, Err: err}
	}

	tickets := ticketsFrom(project.ID, items)
	if err := o.persist(ctx, project.ID, tickets); err != nil {
		log.Errorf("[Orchestrator] Job %s: saving %d tickets for project %d failed: %v", job.ID, len(tickets), projectID, err)
		return nil, &StageError{Stage: StagePersistence, Err: err}
	}

	job.Outcome = OutcomeCommitted
	project.GenerationStatus = models.GenerationStatusReady
	return &Result{
		Job:     *job,
		Project: project,
		Tickets: tickets,
		Usage:   o.commitUsage(ctx, job),
	}, nil
}

// RunWithNewProject creates a project and generates its tickets as one unit.
// Either the project and all of its tickets exist afterwards, or neither does.
func (o *Orchestrator) RunWithNewProject(ctx context.Context, accountID uint, input ProjectInput, opts generator.Options) (*Result, error) {
	job := newJob(accountID, JobWithNewProject)

	if _, err := o.guard.Check(ctx, accountID); err != nil {
		return nil, &StageError{Stage: StageQuota, Err: err}
	}

	project := &models.Project{
		UserID:           accountID,
		Name:             input.Name,
		Description:      input.Description,
		TechStack:        input.TechStack,
		GenerationStatus: models.GenerationStatusPending,
	}
	if err := project.Validate(); err != nil {
		return nil, &StageError{Stage: StageProject, Err: err}
	}
	if err := o.store.CreateProject(ctx, project); err != nil {
		return nil, &StageError{Stage: StageProject, Err: err}
	}
	id := project.ID
	job.CreatedProjectID = &id

	items, err := o.generate(ctx, project, opts)
	if err != nil {
		log.Warnf("[Orchestrator] Job %s: generator failed for new project %d: %v", job.ID, project.ID, err)
		o.rollback(ctx, job)
		return nil, &StageError{Stage: StageGenerator, Err: err}
	}

	tickets := ticketsFrom(project.ID, items)
	if err := o.persist(ctx, project.ID, tickets); err != nil {
		log.Errorf("[Orchestrator] Job %s: saving tickets for new project %d failed: %v", job.ID, project.ID, err)
		o.rollback(ctx, job)
		return nil, &StageError{Stage: StagePersistence, Err: err}
	}

	job.Outcome = OutcomeCommitted
	project.GenerationStatus = models.GenerationStatusReady
	project.Tickets = tickets
	return &Result{
		Job:     *job,
		Project: project,
		Tickets: tickets,
		Usage:   o.commitUsage(ctx, job),
	}, nil
}

// EnrichTicket adds technical specs and acceptance criteria to a ticket the
// account owns. Enrichment is not metered and already enriched tickets are
// returned unchanged.
func (o *Orchestrator) EnrichTicket(ctx context.Context, accountID, ticketID uint) (*models.Ticket, error) {
	ticket, project, err := o.store.GetTicketWithProject(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !project.IsOwnedBy(accountID) {
		return nil, ErrTicketNotFound
	}
	if ticket.IsEnriched() {
		return ticket, nil
	}

	gctx, cancel := context.WithTimeout(ctx, o.cfg.GeneratorTimeout)
	defer cancel()
	details, err := o.generator.EnrichTicket(gctx, generator.TicketBrief{
		Title:       ticket.Title,
		Description: ticket.Description,
		UserStory:   ticket.UserStory,
		TechStack:   project.TechStack,
	})
	if err != nil {
		return nil, &StageError{Stage: StageGenerator, Err: err}
	}

	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer pcancel()
	if err := o.store.SaveTicketDetails(pctx, ticket.ID, *details); err != nil {
		return nil, &StageError{Stage: StagePersistence, Err: err}
	}

	ticket.TechnicalSpecs = details.TechnicalSpecs
	ticket.AcceptanceCriteria = details.AcceptanceCriteria
	return ticket, nil
}

func (o *Orchestrator) generate(ctx context.Context, project *models.Project, opts generator.Options) ([]generator.Item, error) {
	gctx, cancel := context.WithTimeout(ctx, o.cfg.GeneratorTimeout)
	defer cancel()

	items, err := o.generator.GenerateTickets(gctx, generator.ProjectSpec{
		Name:        project.Name,
		Description: project.Description,
		TechStack:   project.TechStack,
	}, opts)
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no tickets returned", generator.ErrMalformedOutput)
	}
	return items, nil
}

// persist runs detached from the request so an aborted caller cannot leave a
// half-written generation behind.
func (o *Orchestrator) persist(ctx context.Context, projectID uint, tickets []models.Ticket) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	return o.store.SaveGeneratedTickets(pctx, projectID, tickets)
}

// commitUsage charges exactly one generation. A failure here under-charges and
// is only logged, because the tickets are already stored.
func (o *Orchestrator) commitUsage(ctx context.Context, job *GenerationJob) quota.UsageWindow {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()

	acc, err := o.ledger.IncrementUsage(cctx, job.AccountID)
	if err != nil {
		log.Errorf("[Orchestrator] Job %s: could not charge account %d: %v", job.ID, job.AccountID, err)
		w, evalErr := o.guard.Evaluate(cctx, job.AccountID)
		if evalErr != nil {
			return quota.UsageWindow{}
		}
		return w
	}
	return quota.WindowFor(acc)
}

// rollback removes the project created by job. When the delete fails the
// project is flagged and handed to the compensation queue.
func (o *Orchestrator) rollback(ctx context.Context, job *GenerationJob) {
	job.Outcome = OutcomeRolledBack
	if job.CreatedProjectID == nil {
		return
	}
	projectID := *job.CreatedProjectID

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CleanupTimeout)
	defer cancel()

	err := o.store.DeleteProject(cctx, projectID)
	if err == nil || errors.Is(err, ErrProjectNotFound) {
		log.Infof("[Orchestrator] Job %s: rolled back project %d", job.ID, projectID)
		return
	}
	log.Errorf("[Orchestrator] Job %s: deleting project %d failed: %v", job.ID, projectID, err)

	if err := o.store.MarkGenerationFailed(cctx, projectID); err != nil {
		log.Errorf("[Orchestrator] Job %s: marking project %d failed: %v", job.ID, projectID, err)
	}
	if o.compensator == nil {
		return
	}
	if err := o.compensator.EnqueueProjectCleanup(cctx, projectID); err != nil {
		log.Errorf("[Orchestrator] Job %s: enqueueing cleanup of project %d failed, leaving it to the sweep: %v", job.ID, projectID, err)
	}
}

func ticketsFrom(projectID uint, items []generator.Item) []models.Ticket {
	tickets := make([]models.Ticket, 0, len(items))
	for _, it := range items {
		tickets = append(tickets, models.Ticket{
			ProjectID:      projectID,
			Title:          it.Title,
			Description:    it.Description,
			UserStory:      it.UserStory,
			Status:         models.TicketStatusTodo,
			Type:           it.Type,
			Priority:       it.Priority,
			Complexity:     it.Complexity,
			Position:       it.Position,
			EstimatedHours: it.EstimatedHours,
			Notes:          it.Notes,
		})
	}
	return tickets
}

package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	items    []generator.Item
	details  *generator.TicketDetails
	err      error
	blockCtx bool
}

func (g *fakeGenerator) GenerateTickets(ctx context.Context, _ generator.ProjectSpec, _ generator.Options) ([]generator.Item, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.items, nil
}

func (g *fakeGenerator) EnrichTicket(ctx context.Context, _ generator.TicketBrief) (*generator.TicketDetails, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.details, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type memoryProjects struct {
	mu       sync.Mutex
	nextID   uint
	nextTID  uint
	projects map[uint]*models.Project
	tickets  map[uint]*models.Ticket

	saveErr   error
	deleteErr error
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{
		projects: make(map[uint]*models.Project),
		tickets:  make(map[uint]*models.Ticket),
	}
}

func (m *memoryProjects) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	c := *p
	m.projects[p.ID] = &c
	return nil
}

func (m *memoryProjects) GetProject(_ context.Context, id uint) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	c := *p
	return &c, nil
}

func (m *memoryProjects) DeleteProject(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.projects, id)
	for tid, t := range m.tickets {
		if t.ProjectID == id {
			delete(m.tickets, tid)
		}
	}
	return nil
}

func (m *memoryProjects) SaveGeneratedTickets(ctx context.Context, projectID uint, tickets []models.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	p, ok := m.projects[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	for i := range tickets {
		m.nextTID++
		tickets[i].ID = m.nextTID
		c := tickets[i]
		m.tickets[c.ID] = &c
	}
	p.GenerationStatus = models.GenerationStatusReady
	return nil
}

func (m *memoryProjects) MarkGenerationFailed(_ context.Context, projectID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	p.GenerationStatus = models.GenerationStatusFailed
	return nil
}

func (m *memoryProjects) GetTicketWithProject(_ context.Context, ticketID uint) (*models.Ticket, *models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, nil, ErrTicketNotFound
	}
	p, ok := m.projects[t.ProjectID]
	if !ok {
		return nil, nil, ErrTicketNotFound
	}
	tc, pc := *t, *p
	return &tc, &pc, nil
}

func (m *memoryProjects) SaveTicketDetails(_ context.Context, ticketID uint, d generator.TicketDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	t, ok := m.tickets[ticketID]
	if !ok {
		return ErrTicketNotFound
	}
	t.TechnicalSpecs = d.TechnicalSpecs
	t.AcceptanceCriteria = d.AcceptanceCriteria
	return nil
}

func (m *memoryProjects) ticketCount(projectID uint) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickets {
		if t.ProjectID == projectID {
			n++
		}
	}
	return n
}

func (m *memoryProjects) exists(id uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.projects[id]
	return ok
}

type recordingCompensator struct {
	mu       sync.Mutex
	projects []uint
	err      error
}

func (c *recordingCompensator) EnqueueProjectCleanup(_ context.Context, projectID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.projects = append(c.projects, projectID)
	return nil
}

var errBoom = errors.New("boom")

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuelReschke/TicketPilot/app/models"
)

// fakeProvider accepts payloads that are a JSON-encoded Event and whose
// signature equals "valid".
type fakeProvider struct {
	mu             sync.Mutex
	customers      int
	checkouts      []string
	portals        []string
	canceled       []string
	createCustomer func() (string, error)
}

func (p *fakeProvider) Name() string { return models.BillingProviderStripe }

func (p *fakeProvider) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if signature != "valid" {
		return nil, fmt.Errorf("%w: bad signature", ErrEventAuthenticity)
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}

func (p *fakeProvider) CreateCustomer(_ context.Context, accountID uint, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	if p.createCustomer != nil {
		return p.createCustomer()
	}
	return fmt.Sprintf("cus_%d_%d", accountID, p.customers), nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, customerRef string, accountID uint) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, customerRef)
	return fmt.Sprintf("https://checkout.test/%d/%s", accountID, customerRef), nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerRef string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.portals = append(p.portals, customerRef)
	return "https://portal.test/" + customerRef, nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, subscriptionRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, subscriptionRef)
	return nil
}

type memoryEventLog struct {
	mu     sync.Mutex
	nextID uint
	events map[string]*models.BillingWebhookEvent
	failOn error
}

func newMemoryEventLog() *memoryEventLog {
	return &memoryEventLog{events: make(map[string]*models.BillingWebhookEvent)}
}

func (l *memoryEventLog) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOn != nil {
		return false, nil, l.failOn
	}
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := l.events[key]; ok {
		c := *stored
		return false, &c, nil
	}
	l.nextID++
	event.ID = l.nextID
	c := *event
	l.events[key] = &c
	return true, event, nil
}

func (l *memoryEventLog) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.ID == id {
			now := ev.CreatedAt
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return errors.New("event not found")
}

func (l *memoryEventLog) get(provider, id string) *models.BillingWebhookEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[provider+"/"+id]
}

func encodeEvent(ev Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}

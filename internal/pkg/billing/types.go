package billing

// EventKind is the provider-neutral classification of an inbound event.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout_completed"
	EventSubscriptionUpdated EventKind = "subscription_updated"
	EventPaymentFailed       EventKind = "payment_failed"
	EventUnknown             EventKind = "unknown"
)

// Event is a verified provider notification reduced to the references and
// status the reconciler needs.
type Event struct {
	ID              string
	Type            string
	Kind            EventKind
	UserRef         string
	CustomerRef     string
	SubscriptionRef string
	// Status is the remote subscription status, lowercased.
	Status  string
	Payload []byte
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

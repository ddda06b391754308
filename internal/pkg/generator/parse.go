package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MinItems and MaxItems bound a usable generation result.
	MinItems = 1
	MaxItems = 30
)

var validate = validator.New()

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[{") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseItems decodes and validates a generated ticket list.
func ParseItems(content string) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal([]byte(StripFences(content)), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(items) < MinItems || len(items) > MaxItems {
		return nil, fmt.Errorf("%w: got %d tickets", ErrMalformedOutput, len(items))
	}
	for i := range items {
		normalizeItem(&items[i], i)
		if err := validate.Struct(items[i]); err != nil {
			return nil, fmt.Errorf("%w: ticket %d: %v", ErrMalformedOutput, i+1, err)
		}
	}
	return items, nil
}

// ParseDetails decodes and validates a ticket enrichment.
func ParseDetails(content string) (*TicketDetails, error) {
	var details TicketDetails
	if err := json.Unmarshal([]byte(StripFences(content)), &details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := validate.Struct(details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &details, nil
}

func normalizeItem(it *Item, index int) {
	it.Title = strings.TrimSpace(it.Title)
	it.Type = strings.ToLower(strings.TrimSpace(it.Type))
	it.Priority = strings.ToLower(strings.TrimSpace(it.Priority))
	if it.Position <= 0 {
		it.Position = index + 1
	}
	if it.Notes != nil && strings.TrimSpace(*it.Notes) == "" {
		it.Notes = nil
	}
}

package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/env"
)

const defaultGeminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

// GeminiClient talks to the Gemini generateContent endpoint.
type GeminiClient struct {
	APIKey string
	APIURL string

	HTTPClient *http.Client
}

var _ Generator = (*GeminiClient)(nil)

func NewGeminiClientFromEnv() *GeminiClient {
	return &GeminiClient{
		APIKey: strings.TrimSpace(env.GetEnv("GEMINI_API_KEY", "")),
		APIURL: strings.TrimSpace(env.GetEnv("GEMINI_API_URL", defaultGeminiAPIURL)),
		HTTPClient: &http.Client{
			// Callers set the effective deadline through the context.
			Timeout: 5 * time.Minute,
		},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) GenerateTickets(ctx context.Context, spec ProjectSpec, opts Options) ([]Item, error) {
	content, err := c.complete(ctx, ticketsPrompt(spec, opts), 4096)
	if err != nil {
		return nil, err
	}
	return ParseItems(content)
}

func (c *GeminiClient) EnrichTicket(ctx context.Context, brief TicketBrief) (*TicketDetails, error) {
	content, err := c.complete(ctx, detailsPrompt(brief), 2048)
	if err != nil {
		return nil, err
	}
	return ParseDetails(content)
}

func (c *GeminiClient) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", errors.New("GEMINI_API_KEY is not configured")
	}

	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}
	reqBody.GenerationConfig.Temperature = 0.7
	reqBody.GenerationConfig.MaxOutputTokens = maxTokens
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("gemini read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini request failed: status=%d body=%s", resp.StatusCode, truncate(string(body), 512))
	}

	var out geminiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: response has no candidates", ErrMalformedOutput)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func ticketsPrompt(spec ProjectSpec, opts Options) string {
	var b strings.Builder
	b.WriteString("You are a senior agile project manager. Generate professional tickets for this project.\n\n")
	fmt.Fprintf(&b, "PROJECT: %s\n", spec.Name)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", spec.Description)
	fmt.Fprintf(&b, "TECH STACK: %s\n", strings.Join(spec.TechStack, ", "))
	if g := strings.TrimSpace(opts.Guidance); g != "" {
		fmt.Fprintf(&b, "ADDITIONAL CONTEXT: %s\n", g)
	}
	b.WriteString(`
Generate between 6 and 12 tickets in a logical order (setup, core features, improvements).

Each ticket MUST contain ONLY these fields:
1. "title": short title prefixed with [Feature], [Chore], [Spike] or [Bug]
2. "description": 1-2 sentences
3. "userStory": "As a [role], I want [action], so that [benefit]"
4. "type": "feature" | "chore" | "spike" | "bug"
5. "priority": "low" | "medium" | "high" | "critical"
6. "complexity": 1 to 5 (1=~1h, 2=~2-4h, 3=~4-8h, 4=~1-2d, 5=~3-5d)
7. "position": order of the ticket, starting at 1
8. "estimatedHours": estimate in hours
9. "notes": additional notes or null

Do NOT generate technicalSpecs or acceptanceCriteria.

Answer ONLY with a valid JSON array.`)
	return b.String()
}

func detailsPrompt(brief TicketBrief) string {
	var b strings.Builder
	b.WriteString("You are a senior agile project manager. Generate the technical details for this ticket.\n\n")
	fmt.Fprintf(&b, "TICKET: %s\n", brief.Title)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", brief.Description)
	fmt.Fprintf(&b, "USER STORY: %s\n", brief.UserStory)
	fmt.Fprintf(&b, "TECH STACK: %s\n", strings.Join(brief.TechStack, ", "))
	b.WriteString(`
Generate a JSON object with:
1. "technicalSpecs": 3-6 precise technical specifications adapted to the tech stack
2. "acceptanceCriteria": 3-5 testable acceptance criteria

Answer ONLY with a valid JSON object (not an array).`)
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

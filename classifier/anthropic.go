package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"jansunwai/models"
)

// ModelClassifier classifies complaint text with the Anthropic Messages API.
// Every call carries a hard deadline; any failure, timeout, or malformed reply
// falls back to a confidence-0 result so intake never blocks on the model.
type ModelClassifier struct {
	client   anthropic.Client
	model    anthropic.Model
	timeout  time.Duration
	fallback Classifier
}

// NewModelClassifier creates the model-backed classifier. fallback handles
// the degraded path and may be nil, in which case FailClosed is returned.
func NewModelClassifier(apiKey, model string, timeout time.Duration, fallback Classifier) *ModelClassifier {
	return &ModelClassifier{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    anthropic.Model(model),
		timeout:  timeout,
		fallback: fallback,
	}
}

// modelReply is the JSON shape the prompt asks the model to produce.
type modelReply struct {
	CategoryID int64   `json:"category_id"`
	Priority   string  `json:"priority"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify sends the complaint text plus the category catalog to the model
// and parses its JSON verdict. Never returns an error: degraded paths go
// through the fallback classifier.
func (m *ModelClassifier) Classify(ctx context.Context, in Input, catalog Catalog) Result {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prompt := buildPrompt(in, catalog)
	message, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		log.Printf("[CLASSIFIER] Model call failed: %v", err)
		return m.degraded(ctx, in, catalog, "model call failed")
	}
	if len(message.Content) == 0 || message.Content[0].Type != "text" {
		log.Printf("[CLASSIFIER] Unexpected response format from model")
		return m.degraded(ctx, in, catalog, "unexpected response format")
	}

	reply, err := parseReply(message.Content[0].Text)
	if err != nil {
		log.Printf("[CLASSIFIER] Failed to parse model reply: %v", err)
		return m.degraded(ctx, in, catalog, "unparseable model reply")
	}

	cat, ok := findCategory(catalog, reply.CategoryID)
	if !ok {
		log.Printf("[CLASSIFIER] Model chose unknown category %d", reply.CategoryID)
		return m.degraded(ctx, in, catalog, "model chose unknown category")
	}

	priority := models.Priority(reply.Priority)
	if !models.ValidPriority(reply.Priority) {
		priority = models.PriorityMedium
	}
	confidence := reply.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		CategoryID:   cat.CategoryID,
		DepartmentID: cat.DefaultDepartmentID,
		Priority:     priority,
		Confidence:   confidence,
		Reasoning:    reply.Reasoning,
	}
}

func (m *ModelClassifier) degraded(ctx context.Context, in Input, catalog Catalog, reason string) Result {
	if m.fallback != nil {
		res := m.fallback.Classify(ctx, in, catalog)
		res.Reasoning = reason + "; " + res.Reasoning
		return res
	}
	return FailClosed(reason)
}

func buildPrompt(in Input, catalog Catalog) string {
	var sb strings.Builder
	sb.WriteString("You are a municipal complaint triage system. Classify the complaint below.\n\n")
	sb.WriteString("Categories:\n")
	for _, c := range catalog.Categories {
		fmt.Fprintf(&sb, "- id=%d name=%q keywords=%q\n", c.CategoryID, c.Name, c.Keywords)
	}
	sb.WriteString("\nComplaint:\n")
	fmt.Fprintf(&sb, "Title: %s\n", in.Title)
	fmt.Fprintf(&sb, "Description: %s\n", in.Description)
	if in.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", in.Location)
	}
	if in.ImageAnalysis != "" {
		fmt.Fprintf(&sb, "Image analysis: %s\n", in.ImageAnalysis)
	}
	sb.WriteString("\nReply with ONLY a JSON object, no prose:\n")
	sb.WriteString(`{"category_id": <int>, "priority": "low|medium|high|critical", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`)
	return sb.String()
}

// parseReply tolerates code fences and leading prose around the JSON object.
func parseReply(text string) (*modelReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	return &reply, nil
}

func findCategory(catalog Catalog, id int64) (*models.Category, bool) {
	for i := range catalog.Categories {
		if catalog.Categories[i].CategoryID == id {
			return &catalog.Categories[i], true
		}
	}
	return nil, false
}

package classifier

import (
	"context"
	"fmt"
	"strings"

	"jansunwai/models"
)

// KeywordClassifier is the deterministic fallback implementation: it scores
// category keyword hits over the complaint text. It is the default when no
// model API key is configured, and tests rely on its determinism.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the keyword-matching classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// priorityKeywords raise the assigned priority when present.
var priorityKeywords = map[string]models.Priority{
	"sewage":     models.PriorityHigh,
	"overflow":   models.PriorityHigh,
	"accident":   models.PriorityCritical,
	"danger":     models.PriorityCritical,
	"dangerous":  models.PriorityCritical,
	"emergency":  models.PriorityCritical,
	"collapsed":  models.PriorityCritical,
	"live wire":  models.PriorityCritical,
	"open drain": models.PriorityHigh,
}

// Classify scores keyword hits per category. Confidence grows with the number
// of distinct keyword hits and caps at 0.9: a keyword match is strong but
// never certain.
func (k *KeywordClassifier) Classify(_ context.Context, in Input, catalog Catalog) Result {
	text := strings.ToLower(in.Title + " " + in.Description + " " + in.ImageAnalysis)

	var best *models.Category
	bestHits := 0
	for i := range catalog.Categories {
		c := &catalog.Categories[i]
		hits := 0
		for _, kw := range strings.Split(c.Keywords, ",") {
			kw = strings.TrimSpace(strings.ToLower(kw))
			if kw != "" && strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = c
			bestHits = hits
		}
	}

	if best == nil {
		return FailClosed("no category keywords matched")
	}

	priority := models.PriorityMedium
	for kw, p := range priorityKeywords {
		if strings.Contains(text, kw) && rank(p) > rank(priority) {
			priority = p
		}
	}

	confidence := 0.6 + 0.1*float64(bestHits)
	if confidence > 0.9 {
		confidence = 0.9
	}

	return Result{
		CategoryID:   best.CategoryID,
		DepartmentID: best.DefaultDepartmentID,
		Priority:     priority,
		Confidence:   confidence,
		Reasoning:    fmt.Sprintf("matched %d keyword(s) for category %q", bestHits, best.Name),
	}
}

func rank(p models.Priority) int {
	switch p {
	case models.PriorityLow:
		return 0
	case models.PriorityMedium:
		return 1
	case models.PriorityHigh:
		return 2
	case models.PriorityCritical:
		return 3
	default:
		return 1
	}
}

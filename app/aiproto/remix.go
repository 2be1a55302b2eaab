package aiproto

import (
	"fmt"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"
)

const maxRemixChanges = 10

type rawRemixPlan struct {
	Changes []struct {
		Field     string `json:"field"`
		Original  any    `json:"original"`
		Suggested any    `json:"suggested"`
		Impact    any    `json:"impact"`
		Rationale string `json:"rationale"`
	} `json:"changes"`
	EstimatedSavings any `json:"estimatedSavingsPercent"`
}

// ParseRemixPlan drops changes that would not alter the field and caps the list.
func ParseRemixPlan(raw string) (models.RemixPlan, error) {
	var r rawRemixPlan
	if err := decode(raw, remixSchema, &r); err != nil {
		return models.RemixPlan{}, err
	}
	out := models.RemixPlan{
		Changes:          make([]models.RemixChange, 0, len(r.Changes)),
		EstimatedSavings: ParsePercent(r.EstimatedSavings),
	}
	for i, c := range r.Changes {
		impact, err := ParseLevel(fmt.Sprintf("changes[%d].impact", i), c.Impact)
		if err != nil {
			return models.RemixPlan{}, err
		}
		field := strings.TrimSpace(c.Field)
		if field == "" {
			return models.RemixPlan{}, invalid(fmt.Sprintf("changes[%d].field", i), "empty field name")
		}
		suggested := strings.TrimSpace(scalarString(c.Suggested))
		original := strings.TrimSpace(scalarString(c.Original))
		if suggested == "" || suggested == original {
			continue
		}
		out.Changes = append(out.Changes, models.RemixChange{
			Field:     field,
			Original:  original,
			Suggested: suggested,
			Impact:    impact,
			Rationale: strings.TrimSpace(c.Rationale),
		})
		if len(out.Changes) == maxRemixChanges {
			break
		}
	}
	return out, nil
}

func NormalizeRemixPlan(p models.RemixPlan) models.RemixPlan {
	p.EstimatedSavings = ParsePercent(p.EstimatedSavings)
	if p.Changes == nil {
		p.Changes = []models.RemixChange{}
	}
	return p
}

// RemixFallback proposes no changes.
func RemixFallback(error) models.RemixPlan {
	return models.RemixPlan{Changes: []models.RemixChange{}}
}

func RemixPrompt(manifest map[string]any) func(int) string {
	doc := manifestJSON(manifest)
	return func(attempt int) string {
		if attempt == 0 {
			return "Suggest compliant edits to this manifest that reduce landed cost or clearance risk.\n" +
				"Rules:\n" +
				"- only change fields present in the manifest\n" +
				"- impact is exactly high, medium or low\n" +
				"- estimatedSavingsPercent is a number from 0 to 100\n" +
				fmt.Sprintf("- at most %d changes\n", maxRemixChanges) +
				`Respond with JSON: {"changes":[{"field":"incoterm","original":"EXW","suggested":"FCA","impact":"medium","rationale":"..."}],"estimatedSavingsPercent":3.5}` +
				"\nManifest:\n" + doc
		}
		return "Return ONLY this JSON, no prose, no code fences. impact is high, medium or low.\n" +
			`{"changes":[],"estimatedSavingsPercent":0}` + "\nManifest:\n" + doc
	}
}

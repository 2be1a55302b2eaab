package aiproto

import (
	"fmt"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"
)

type rawPolicyCheck struct {
	OverallRisk any `json:"overallRisk"`
	Impacts     []struct {
		Policy         string   `json:"policy"`
		Description    string   `json:"description"`
		Impact         any      `json:"impact"`
		AffectedFields []string `json:"affectedFields"`
	} `json:"impacts"`
}

func ParsePolicyCheck(raw string) (models.PolicyCheck, error) {
	var r rawPolicyCheck
	if err := decode(raw, policySchema, &r); err != nil {
		return models.PolicyCheck{}, err
	}
	overall, err := ParseLevel("overallRisk", r.OverallRisk)
	if err != nil {
		return models.PolicyCheck{}, err
	}
	out := models.PolicyCheck{OverallRisk: overall, Impacts: make([]models.PolicyImpact, 0, len(r.Impacts))}
	for i, imp := range r.Impacts {
		level, err := ParseLevel(fmt.Sprintf("impacts[%d].impact", i), imp.Impact)
		if err != nil {
			return models.PolicyCheck{}, err
		}
		fields := imp.AffectedFields
		if fields == nil {
			fields = []string{}
		}
		out.Impacts = append(out.Impacts, models.PolicyImpact{
			Policy:         strings.TrimSpace(imp.Policy),
			Description:    strings.TrimSpace(imp.Description),
			Impact:         level,
			AffectedFields: fields,
		})
	}
	return out, nil
}

// PolicyCheckFallback reports medium overall risk with no specific findings.
func PolicyCheckFallback(error) models.PolicyCheck {
	return models.PolicyCheck{
		OverallRisk: models.LevelMedium,
		Impacts: []models.PolicyImpact{{
			Policy:         "Automated policy review unavailable",
			Description:    "Check current sanctions, export control and tariff measures for the origin and destination manually.",
			Impact:         models.LevelMedium,
			AffectedFields: []string{"originCountry", "destinationCountry", "hsCode"},
		}},
	}
}

func PolicyCheckPrompt(manifest map[string]any) func(int) string {
	doc := manifestJSON(manifest)
	return func(attempt int) string {
		if attempt == 0 {
			return "Identify trade policies (tariffs, sanctions, export controls, trade agreements) that affect this shipment.\n" +
				"Rules:\n" +
				"- overallRisk and impact are exactly high, medium or low\n" +
				"- affectedFields lists manifest keys\n" +
				`Respond with JSON: {"overallRisk":"medium","impacts":[{"policy":"...","description":"...","impact":"high","affectedFields":["hsCode"]}]}` +
				"\nManifest:\n" + doc
		}
		return "Return ONLY this JSON, no prose, no code fences. Levels: high, medium, low.\n" +
			`{"overallRisk":"low","impacts":[]}` + "\nManifest:\n" + doc
	}
}

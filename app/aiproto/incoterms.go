package aiproto

import (
	"fmt"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"
)

const maxIncotermAlternatives = 3

type rawIncotermOption struct {
	Code        string `json:"code"`
	Confidence  any    `json:"confidence"`
	Risk        any    `json:"risk"`
	Cost        any    `json:"cost"`
	Explanation string `json:"explanation"`
}

type rawIncotermSuggestion struct {
	Recommended  string              `json:"recommended"`
	Confidence   any                 `json:"confidence"`
	Risk         any                 `json:"risk"`
	Cost         any                 `json:"cost"`
	Explanation  string              `json:"explanation"`
	Alternatives []rawIncotermOption `json:"alternatives"`
}

func parseIncoterm(field, s string) (models.Incoterm, error) {
	code := models.Incoterm(strings.ToUpper(strings.TrimSpace(s)))
	if !code.Valid() {
		return "", invalid(field, "unknown incoterm %q", s)
	}
	return code, nil
}

// ParseIncotermSuggestion rejects unknown incoterm codes and risk or cost values
// outside high, medium and low, including inside alternatives.
func ParseIncotermSuggestion(raw string) (models.IncotermSuggestion, error) {
	var r rawIncotermSuggestion
	if err := decode(raw, incotermSchema, &r); err != nil {
		return models.IncotermSuggestion{}, err
	}

	out := models.IncotermSuggestion{
		Confidence:   ParseConfidence(r.Confidence),
		Explanation:  strings.TrimSpace(r.Explanation),
		Alternatives: []models.IncotermAlternative{},
	}
	var err error
	if out.Recommended, err = parseIncoterm("recommended", r.Recommended); err != nil {
		return models.IncotermSuggestion{}, err
	}
	if out.Risk, err = ParseLevel("risk", r.Risk); err != nil {
		return models.IncotermSuggestion{}, err
	}
	if out.Cost, err = ParseLevel("cost", r.Cost); err != nil {
		return models.IncotermSuggestion{}, err
	}

	for i, alt := range r.Alternatives {
		prefix := fmt.Sprintf("alternatives[%d]", i)
		a := models.IncotermAlternative{
			Confidence:  ParseConfidence(alt.Confidence),
			Explanation: strings.TrimSpace(alt.Explanation),
		}
		if a.Code, err = parseIncoterm(prefix+".code", alt.Code); err != nil {
			return models.IncotermSuggestion{}, err
		}
		if a.Risk, err = ParseLevel(prefix+".risk", alt.Risk); err != nil {
			return models.IncotermSuggestion{}, err
		}
		if a.Cost, err = ParseLevel(prefix+".cost", alt.Cost); err != nil {
			return models.IncotermSuggestion{}, err
		}
		if a.Code == out.Recommended {
			continue
		}
		out.Alternatives = append(out.Alternatives, a)
	}
	if len(out.Alternatives) > maxIncotermAlternatives {
		out.Alternatives = out.Alternatives[:maxIncotermAlternatives]
	}
	return out, nil
}

func NormalizeIncotermSuggestion(s models.IncotermSuggestion) models.IncotermSuggestion {
	s.Confidence = ParseConfidence(float64(s.Confidence))
	for i := range s.Alternatives {
		s.Alternatives[i].Confidence = ParseConfidence(float64(s.Alternatives[i].Confidence))
	}
	return s
}

// IncotermFallback picks a rule by transport mode: FOB for sea freight, FCA
// otherwise. Both keep the seller's risk moderate.
func IncotermFallback(req models.IncotermsRequest) func(error) models.IncotermSuggestion {
	return func(error) models.IncotermSuggestion {
		mode := strings.ToLower(strings.TrimSpace(req.TransportMode))
		if mode == "sea" || mode == "ocean" {
			return models.IncotermSuggestion{
				Recommended: "FOB",
				Confidence:  50,
				Risk:        models.LevelMedium,
				Cost:        models.LevelMedium,
				Explanation: "Default for sea freight: the seller delivers on board at the port of loading and the buyer carries the main voyage.",
				Alternatives: []models.IncotermAlternative{
					{Code: "CIF", Confidence: 40, Risk: models.LevelLow, Cost: models.LevelHigh, Explanation: "Seller pays freight and insurance to the destination port."},
				},
			}
		}
		return models.IncotermSuggestion{
			Recommended: "FCA",
			Confidence:  50,
			Risk:        models.LevelMedium,
			Cost:        models.LevelMedium,
			Explanation: "Default for multimodal transport: the seller hands the goods to the buyer's carrier at an agreed place.",
			Alternatives: []models.IncotermAlternative{
				{Code: "DAP", Confidence: 40, Risk: models.LevelLow, Cost: models.LevelHigh, Explanation: "Seller delivers to the named destination, buyer clears import."},
			},
		}
	}
}

func IncotermPrompt(req models.IncotermsRequest) func(int) string {
	codes := make([]string, len(models.Incoterms))
	for i, c := range models.Incoterms {
		codes[i] = string(c)
	}
	allowed := strings.Join(codes, ", ")

	return func(attempt int) string {
		var b strings.Builder
		if attempt == 0 {
			b.WriteString("Recommend an Incoterms 2020 rule for this shipment.\n")
			fmt.Fprintf(&b, "Origin: %s\nDestination: %s\nTransport mode: %s\n", req.OriginCountry, req.DestinationCountry, req.TransportMode)
			if req.GoodsDescription != "" {
				fmt.Fprintf(&b, "Goods: %s\n", req.GoodsDescription)
			}
			if req.Value > 0 {
				fmt.Fprintf(&b, "Shipment value: %.2f\n", req.Value)
			}
			if req.ExperienceLevel != "" {
				fmt.Fprintf(&b, "Exporter experience: %s\n", req.ExperienceLevel)
			}
			b.WriteString("Rules:\n")
			fmt.Fprintf(&b, "- recommended and alternatives[].code are one of %s\n", allowed)
			b.WriteString("- risk and cost are exactly high, medium or low\n")
			b.WriteString("- confidence is an integer from 0 to 100\n")
			fmt.Fprintf(&b, "- at most %d alternatives\n", maxIncotermAlternatives)
			b.WriteString(`Respond with JSON: {"recommended":"FCA","confidence":80,"risk":"medium","cost":"medium","explanation":"...","alternatives":[{"code":"DAP","confidence":60,"risk":"low","cost":"high","explanation":"..."}]}`)
			return b.String()
		}
		fmt.Fprintf(&b, "%s to %s by %s.\n", req.OriginCountry, req.DestinationCountry, req.TransportMode)
		fmt.Fprintf(&b, "Return ONLY this JSON, no prose, no code fences. Codes: %s. Levels: high, medium, low.\n", allowed)
		b.WriteString(`{"recommended":"FCA","confidence":0,"risk":"medium","cost":"medium","explanation":"","alternatives":[]}`)
		return b.String()
	}
}

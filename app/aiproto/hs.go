package aiproto

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"
)

// MaxHSSuggestions caps every HS suggestion list.
const MaxHSSuggestions = 3

const (
	SourceModel     = "model"
	SourceReference = "reference"
)

const noHSSuggestion = "no valid HS code could be suggested; add material, function and form to the description"

type rawHSResponse struct {
	Suggestions []struct {
		Code        any    `json:"code"`
		Confidence  any    `json:"confidence"`
		Description string `json:"description"`
	} `json:"suggestions"`
}

// ParseHSSuggestions discards entries whose code is not 6 to 10 digits after
// stripping separators. A response left with no usable entry is invalid.
func ParseHSSuggestions(raw string) (models.HSSuggestionResult, error) {
	var r rawHSResponse
	if err := decode(raw, hsSchema, &r); err != nil {
		return models.HSSuggestionResult{}, err
	}

	var out []models.HSSuggestion
	for _, s := range r.Suggestions {
		code, ok := NormalizeHSCode(s.Code)
		if !ok {
			continue
		}
		out = append(out, models.HSSuggestion{
			Code:        code,
			Confidence:  ParseConfidence(s.Confidence),
			Description: strings.TrimSpace(s.Description),
			Source:      SourceModel,
		})
	}
	if len(out) == 0 {
		return models.HSSuggestionResult{}, invalid("suggestions", "no code with 6 to 10 digits")
	}
	return models.HSSuggestionResult{Suggestions: MergeSuggestions(out, nil, MaxHSSuggestions)}, nil
}

// MergeSuggestions combines two candidate lists by unique code, keeping the
// higher confidence entry, then orders by descending confidence and caps at limit.
func MergeSuggestions(primary, extra []models.HSSuggestion, limit int) []models.HSSuggestion {
	byCode := make(map[string]int, len(primary)+len(extra))
	merged := make([]models.HSSuggestion, 0, len(primary)+len(extra))
	for _, list := range [][]models.HSSuggestion{primary, extra} {
		for _, s := range list {
			if i, ok := byCode[s.Code]; ok {
				if s.Confidence > merged[i].Confidence {
					merged[i] = s
				}
				continue
			}
			byCode[s.Code] = len(merged)
			merged = append(merged, s)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// NormalizeHSResult re-applies the code rule, the confidence clamp and the cap.
func NormalizeHSResult(r models.HSSuggestionResult) models.HSSuggestionResult {
	kept := make([]models.HSSuggestion, 0, len(r.Suggestions))
	for _, s := range r.Suggestions {
		code, ok := NormalizeHSCode(s.Code)
		if !ok {
			continue
		}
		s.Code = code
		s.Confidence = ParseConfidence(float64(s.Confidence))
		kept = append(kept, s)
	}
	r.Suggestions = MergeSuggestions(kept, nil, MaxHSSuggestions)
	if len(r.Suggestions) == 0 && r.Error == "" {
		r.Error = noHSSuggestion
	}
	if len(r.Suggestions) > 0 {
		r.Error = ""
	}
	return r
}

// HSFallback serves the local reference candidates, or an empty list with an
// explanation when there are none.
func HSFallback(candidates []models.HSSuggestion) func(error) models.HSSuggestionResult {
	return func(error) models.HSSuggestionResult {
		if len(candidates) == 0 {
			return models.HSSuggestionResult{Suggestions: []models.HSSuggestion{}, Error: noHSSuggestion}
		}
		return models.HSSuggestionResult{Suggestions: MergeSuggestions(candidates, nil, MaxHSSuggestions)}
	}
}

// HSPrompt grounds the model on the local reference candidates.
func HSPrompt(req models.HSSuggestRequest, candidates []models.HSSuggestion) func(int) string {
	return func(attempt int) string {
		var b strings.Builder
		if attempt == 0 {
			b.WriteString("Classify the goods below under the Harmonized System.\n")
			fmt.Fprintf(&b, "Goods description: %s\n", req.Description)
			if req.OriginCountry != "" {
				fmt.Fprintf(&b, "Country of origin: %s\n", req.OriginCountry)
			}
			if len(candidates) > 0 {
				b.WriteString("Reference candidates from the local tariff table:\n")
				for _, c := range candidates {
					fmt.Fprintf(&b, "- %s %s\n", c.Code, c.Description)
				}
			}
			b.WriteString("Rules:\n")
			b.WriteString("- code is digits only, 6 to 10 digits, no dots or spaces\n")
			b.WriteString("- confidence is an integer from 0 to 100\n")
			fmt.Fprintf(&b, "- at most %d suggestions, most likely first\n", MaxHSSuggestions)
			b.WriteString(`Respond with JSON: {"suggestions":[{"code":"730630","confidence":85,"description":"..."}]}`)
			return b.String()
		}
		fmt.Fprintf(&b, "Goods: %s\n", req.Description)
		b.WriteString("Return ONLY this JSON, no prose, no code fences. Codes are 6-10 digits with no punctuation.\n")
		b.WriteString(`{"suggestions":[{"code":"000000","confidence":0,"description":""}]}`)
		return b.String()
	}
}

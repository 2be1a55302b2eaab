package aiproto

import (
	"fmt"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"
)

type rawDutyEstimate struct {
	TariffRate any    `json:"tariffRate"`
	Source     string `json:"source"`
	Note       string `json:"note"`
}

// ParseDutyEstimate clamps the rate to [0, 100] and requires a known source tag.
func ParseDutyEstimate(raw string) (models.DutyEstimate, error) {
	var r rawDutyEstimate
	if err := decode(raw, dutySchema, &r); err != nil {
		return models.DutyEstimate{}, err
	}
	source := models.DutySource(strings.ToUpper(strings.TrimSpace(r.Source)))
	if !source.Valid() {
		return models.DutyEstimate{}, invalid("source", "unknown duty source %q", r.Source)
	}
	return models.DutyEstimate{
		TariffRate: ParsePercent(r.TariffRate),
		Source:     source,
		Note:       strings.TrimSpace(r.Note),
	}, nil
}

func NormalizeDutyEstimate(d models.DutyEstimate) models.DutyEstimate {
	d.TariffRate = ParsePercent(d.TariffRate)
	return d
}

// DutyContext is the reference data available to a duty prompt and its fallback.
type DutyContext struct {
	Request       models.DutyEstimateRequest
	Agreement     string   // empty when no preferential agreement applies
	ReferenceRate *float64 // MFN rate from the local table, if known
	Conservative  float64
}

// DutyFallback prefers a preferential zero rate, then the reference rate, then
// the conservative estimate.
func DutyFallback(dc DutyContext) func(error) models.DutyEstimate {
	return func(error) models.DutyEstimate {
		switch {
		case dc.Agreement != "":
			return models.DutyEstimate{
				TariffRate: 0,
				Source:     models.DutySource(dc.Agreement),
				Note:       fmt.Sprintf("Preferential rate under %s, assuming the goods meet the rules of origin.", dc.Agreement),
			}
		case dc.ReferenceRate != nil:
			return models.DutyEstimate{
				TariffRate: *dc.ReferenceRate,
				Source:     models.DutySourceReference,
				Note:       "Rate taken from the local tariff reference table.",
			}
		default:
			return models.DutyEstimate{
				TariffRate: dc.Conservative,
				Source:     models.DutySourceEstimate,
				Note:       "Conservative estimate; confirm with the destination customs tariff.",
			}
		}
	}
}

func DutyPrompt(dc DutyContext) func(int) string {
	req := dc.Request
	return func(attempt int) string {
		var b strings.Builder
		if attempt == 0 {
			b.WriteString("Estimate the import duty rate for this shipment.\n")
			fmt.Fprintf(&b, "HS code: %s\nOrigin: %s\nDestination: %s\n", req.HSCode, req.OriginCountry, req.DestinationCountry)
			if dc.Agreement != "" {
				fmt.Fprintf(&b, "The origin/destination pair is covered by %s.\n", dc.Agreement)
			}
			if dc.ReferenceRate != nil {
				fmt.Fprintf(&b, "Local reference MFN rate: %.2f%%\n", *dc.ReferenceRate)
			}
			b.WriteString("Rules:\n")
			b.WriteString("- tariffRate is a percentage from 0 to 100\n")
			b.WriteString("- source is one of MFN, USMCA, EU, FTA, GSP, REFERENCE, ESTIMATE\n")
			b.WriteString(`Respond with JSON: {"tariffRate":2.5,"source":"MFN","note":"..."}`)
			return b.String()
		}
		fmt.Fprintf(&b, "HS %s from %s to %s.\n", req.HSCode, req.OriginCountry, req.DestinationCountry)
		b.WriteString("Return ONLY this JSON, no prose, no code fences:\n")
		b.WriteString(`{"tariffRate":0,"source":"MFN","note":""}`)
		return b.String()
	}
}

package aiproto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"
)

const maxPromptManifestBytes = 8000

var nullish = map[string]bool{"": true, "null": true, "none": true, "n/a": true, "na": true, "unknown": true, "-": true}

// normalizeField turns one extracted value into its canonical string, or nil.
func normalizeField(name string, v any) *string {
	s := strings.TrimSpace(scalarString(v))
	if nullish[strings.ToLower(s)] {
		return nil
	}
	switch name {
	case "hsCode":
		code, ok := NormalizeHSCode(s)
		if !ok {
			return nil
		}
		s = code
	case "incoterm":
		code := models.Incoterm(strings.ToUpper(s))
		if !code.Valid() {
			return nil
		}
		s = string(code)
	case "currency", "originCountry", "destinationCountry":
		if len(s) <= 3 {
			s = strings.ToUpper(s)
		}
	}
	return &s
}

// ParseManifestFields returns every known field, nil when absent. A response
// naming none of the known fields is invalid.
func ParseManifestFields(raw string) (models.ManifestFields, error) {
	var r map[string]any
	if err := decode(raw, manifestSchema, &r); err != nil {
		return nil, err
	}

	out := make(models.ManifestFields, len(models.ManifestFieldNames))
	known := 0
	for _, name := range models.ManifestFieldNames {
		v, ok := r[name]
		if ok {
			known++
		}
		out[name] = normalizeField(name, v)
	}
	if known == 0 {
		return nil, invalid("$", "no recognised manifest fields")
	}
	return out, nil
}

// NormalizeManifestFields fills in every missing key with nil.
func NormalizeManifestFields(f models.ManifestFields) models.ManifestFields {
	out := make(models.ManifestFields, len(models.ManifestFieldNames))
	for _, name := range models.ManifestFieldNames {
		var v any
		if p := f[name]; p != nil {
			v = *p
		}
		out[name] = normalizeField(name, v)
	}
	return out
}

// labelAliases maps lower-cased document labels to field names for the
// line-scan fallback.
var labelAliases = map[string]string{
	"shipper":               "shipperName",
	"exporter":              "shipperName",
	"shipper name":          "shipperName",
	"shipper address":       "shipperAddress",
	"consignee":             "consigneeName",
	"importer":              "consigneeName",
	"consignee name":        "consigneeName",
	"consignee address":     "consigneeAddress",
	"notify party":          "notifyParty",
	"b/l":                   "billOfLadingNumber",
	"b/l no":                "billOfLadingNumber",
	"bill of lading":        "billOfLadingNumber",
	"bill of lading number": "billOfLadingNumber",
	"booking":               "bookingNumber",
	"booking number":        "bookingNumber",
	"container":             "containerNumber",
	"container number":      "containerNumber",
	"container no":          "containerNumber",
	"seal":                  "sealNumber",
	"seal number":           "sealNumber",
	"carrier":               "carrier",
	"vessel":                "vesselName",
	"vessel name":           "vesselName",
	"voyage":                "voyageNumber",
	"voyage number":         "voyageNumber",
	"port of loading":       "portOfLoading",
	"pol":                   "portOfLoading",
	"port of discharge":     "portOfDischarge",
	"pod":                   "portOfDischarge",
	"place of receipt":      "placeOfReceipt",
	"place of delivery":     "placeOfDelivery",
	"origin":                "originCountry",
	"country of origin":     "originCountry",
	"destination":           "destinationCountry",
	"destination country":   "destinationCountry",
	"description":           "goodsDescription",
	"goods":                 "goodsDescription",
	"description of goods":  "goodsDescription",
	"hs code":               "hsCode",
	"hs":                    "hsCode",
	"tariff code":           "hsCode",
	"quantity":              "quantity",
	"qty":                   "quantity",
	"package type":          "packageType",
	"packages":              "packageType",
	"gross weight":          "grossWeight",
	"net weight":            "netWeight",
	"volume":                "volume",
	"value":                 "declaredValue",
	"declared value":        "declaredValue",
	"invoice value":         "declaredValue",
	"currency":              "currency",
	"incoterm":              "incoterm",
	"incoterms":             "incoterm",
	"invoice":               "invoiceNumber",
	"invoice number":        "invoiceNumber",
	"invoice no":            "invoiceNumber",
	"shipment date":         "shipmentDate",
	"ship date":             "shipmentDate",
	"etd":                   "shipmentDate",
	"arrival date":          "arrivalDate",
	"eta":                   "arrivalDate",
}

// ManifestFieldsFallback scans "Label: value" lines of the source text.
func ManifestFieldsFallback(text string) func(error) models.ManifestFields {
	return func(error) models.ManifestFields {
		found := make(models.ManifestFields)
		for _, line := range strings.Split(text, "\n") {
			label, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			label = strings.ToLower(strings.Trim(strings.TrimSpace(label), ".#"))
			name, ok := labelAliases[label]
			if !ok || found[name] != nil {
				continue
			}
			if v := normalizeField(name, value); v != nil {
				found[name] = v
			}
		}
		return NormalizeManifestFields(found)
	}
}

func ManifestFieldsPrompt(text string) func(int) string {
	if len(text) > maxPromptManifestBytes {
		text = text[:maxPromptManifestBytes]
	}
	skeleton := manifestSkeleton()
	return func(attempt int) string {
		var b strings.Builder
		if attempt == 0 {
			b.WriteString("Extract shipping manifest fields from the document below.\n")
			b.WriteString("Rules:\n")
			b.WriteString("- use exactly the keys shown; a key you cannot find is null\n")
			b.WriteString("- hsCode is digits only, 6 to 10 digits\n")
			b.WriteString("- dates are YYYY-MM-DD, currency is an ISO 4217 code\n")
			fmt.Fprintf(&b, "Keys: %s\n", skeleton)
			fmt.Fprintf(&b, "Document:\n---\n%s\n---\n", text)
			return b.String()
		}
		b.WriteString("Return ONLY this JSON object with values filled in or null. No prose, no code fences.\n")
		b.WriteString(skeleton)
		fmt.Fprintf(&b, "\nDocument:\n%s", text)
		return b.String()
	}
}

func manifestSkeleton() string {
	parts := make([]string, len(models.ManifestFieldNames))
	for i, name := range models.ManifestFieldNames {
		parts[i] = fmt.Sprintf("%q:null", name)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

type rawManifestAnalysis struct {
	Summary         string `json:"summary"`
	ComplianceScore any    `json:"complianceScore"`
	Risks           []struct {
		Field          string `json:"field"`
		Issue          string `json:"issue"`
		Severity       any    `json:"severity"`
		Recommendation string `json:"recommendation"`
	} `json:"risks"`
}

func ParseManifestAnalysis(raw string) (models.ManifestAnalysis, error) {
	var r rawManifestAnalysis
	if err := decode(raw, analysisSchema, &r); err != nil {
		return models.ManifestAnalysis{}, err
	}
	out := models.ManifestAnalysis{
		Summary:         strings.TrimSpace(r.Summary),
		ComplianceScore: ParseConfidence(r.ComplianceScore),
		Risks:           make([]models.ManifestRisk, 0, len(r.Risks)),
	}
	for i, risk := range r.Risks {
		severity, err := ParseLevel(fmt.Sprintf("risks[%d].severity", i), risk.Severity)
		if err != nil {
			return models.ManifestAnalysis{}, err
		}
		out.Risks = append(out.Risks, models.ManifestRisk{
			Field:          strings.TrimSpace(risk.Field),
			Issue:          strings.TrimSpace(risk.Issue),
			Severity:       severity,
			Recommendation: strings.TrimSpace(risk.Recommendation),
		})
	}
	return out, nil
}

func NormalizeManifestAnalysis(a models.ManifestAnalysis) models.ManifestAnalysis {
	a.ComplianceScore = ParseConfidence(float64(a.ComplianceScore))
	if a.Risks == nil {
		a.Risks = []models.ManifestRisk{}
	}
	return a
}

// requiredManifestFields are checked by the rule-based analysis fallback.
var requiredManifestFields = []struct {
	name     string
	severity models.Level
}{
	{"shipperName", models.LevelHigh},
	{"consigneeName", models.LevelHigh},
	{"goodsDescription", models.LevelHigh},
	{"hsCode", models.LevelHigh},
	{"originCountry", models.LevelMedium},
	{"destinationCountry", models.LevelMedium},
	{"declaredValue", models.LevelMedium},
	{"currency", models.LevelLow},
	{"grossWeight", models.LevelLow},
	{"incoterm", models.LevelLow},
}

var severityPenalty = map[models.Level]int{models.LevelHigh: 15, models.LevelMedium: 8, models.LevelLow: 4}

// ManifestAnalysisFallback flags missing or malformed required fields.
func ManifestAnalysisFallback(manifest map[string]any) func(error) models.ManifestAnalysis {
	return func(error) models.ManifestAnalysis {
		score := 100
		risks := []models.ManifestRisk{}
		for _, req := range requiredManifestFields {
			v, present := manifest[req.name]
			if present && normalizeField(req.name, v) != nil {
				continue
			}
			issue := "missing"
			if present {
				issue = "present but empty or malformed"
			}
			risks = append(risks, models.ManifestRisk{
				Field:          req.name,
				Issue:          fmt.Sprintf("%s is %s", req.name, issue),
				Severity:       req.severity,
				Recommendation: fmt.Sprintf("Provide a valid %s before filing.", req.name),
			})
			score -= severityPenalty[req.severity]
		}
		return models.ManifestAnalysis{
			Summary:         fmt.Sprintf("Rule-based review: %d issue(s) found in required fields.", len(risks)),
			ComplianceScore: max(0, score),
			Risks:           risks,
		}
	}
}

func ManifestAnalysisPrompt(manifest map[string]any) func(int) string {
	doc := manifestJSON(manifest)
	return func(attempt int) string {
		if attempt == 0 {
			return "Review this shipping manifest for customs compliance problems.\n" +
				"Rules:\n" +
				"- complianceScore is an integer from 0 to 100\n" +
				"- severity is exactly high, medium or low\n" +
				"- field names a manifest key\n" +
				`Respond with JSON: {"summary":"...","complianceScore":80,"risks":[{"field":"hsCode","issue":"...","severity":"high","recommendation":"..."}]}` +
				"\nManifest:\n" + doc
		}
		return "Return ONLY this JSON, no prose, no code fences. severity is high, medium or low.\n" +
			`{"summary":"","complianceScore":0,"risks":[]}` + "\nManifest:\n" + doc
	}
}

// manifestJSON renders a manifest for a prompt, truncated.
func manifestJSON(manifest map[string]any) string {
	b, err := json.Marshal(manifest)
	if err != nil {
		return "{}"
	}
	if len(b) > maxPromptManifestBytes {
		b = b[:maxPromptManifestBytes]
	}
	return string(b)
}

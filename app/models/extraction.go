package models

// Level is the shared high/medium/low scale used for risk, cost, severity and impact.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

func (l Level) Valid() bool {
	return l == LevelHigh || l == LevelMedium || l == LevelLow
}

// HSSuggestion is one candidate tariff classification.
type HSSuggestion struct {
	Code        string `json:"code"`
	Confidence  int    `json:"confidence"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"` // "model" or "reference"
}

type HSSuggestionResult struct {
	Suggestions []HSSuggestion `json:"suggestions"`
	Error       string         `json:"error,omitempty"`
}

type DutySource string

const (
	DutySourceMFN       DutySource = "MFN"
	DutySourceUSMCA     DutySource = "USMCA"
	DutySourceEU        DutySource = "EU"
	DutySourceFTA       DutySource = "FTA"
	DutySourceGSP       DutySource = "GSP"
	DutySourceReference DutySource = "REFERENCE"
	DutySourceEstimate  DutySource = "ESTIMATE"
)

func (s DutySource) Valid() bool {
	switch s {
	case DutySourceMFN, DutySourceUSMCA, DutySourceEU, DutySourceFTA,
		DutySourceGSP, DutySourceReference, DutySourceEstimate:
		return true
	}
	return false
}

type DutyEstimate struct {
	TariffRate float64    `json:"tariffRate"`
	Source     DutySource `json:"source"`
	Note       string     `json:"note"`
}

type Incoterm string

// Incoterms is the Incoterms 2020 rule set.
var Incoterms = []Incoterm{"EXW", "FCA", "CPT", "CIP", "DAP", "DPU", "DDP", "FAS", "FOB", "CFR", "CIF"}

func (i Incoterm) Valid() bool {
	for _, known := range Incoterms {
		if i == known {
			return true
		}
	}
	return false
}

type IncotermAlternative struct {
	Code        Incoterm `json:"code"`
	Confidence  int      `json:"confidence"`
	Risk        Level    `json:"risk"`
	Cost        Level    `json:"cost"`
	Explanation string   `json:"explanation"`
}

type IncotermSuggestion struct {
	Recommended  Incoterm              `json:"recommended"`
	Confidence   int                   `json:"confidence"`
	Risk         Level                 `json:"risk"`
	Cost         Level                 `json:"cost"`
	Explanation  string                `json:"explanation"`
	Alternatives []IncotermAlternative `json:"alternatives"`
}

// ManifestFieldNames is the fixed set of keys extracted from a manifest.
var ManifestFieldNames = []string{
	"shipperName", "shipperAddress", "consigneeName", "consigneeAddress", "notifyParty",
	"billOfLadingNumber", "bookingNumber", "containerNumber", "sealNumber", "carrier",
	"vesselName", "voyageNumber", "portOfLoading", "portOfDischarge", "placeOfReceipt",
	"placeOfDelivery", "originCountry", "destinationCountry", "goodsDescription", "hsCode",
	"quantity", "packageType", "grossWeight", "netWeight", "volume",
	"declaredValue", "currency", "incoterm", "invoiceNumber", "shipmentDate",
	"arrivalDate",
}

// ManifestFields maps every name in ManifestFieldNames to a normalized value or nil.
type ManifestFields map[string]*string

type ManifestRisk struct {
	Field          string `json:"field"`
	Issue          string `json:"issue"`
	Severity       Level  `json:"severity"`
	Recommendation string `json:"recommendation"`
}

type ManifestAnalysis struct {
	Summary         string         `json:"summary"`
	ComplianceScore int            `json:"complianceScore"`
	Risks           []ManifestRisk `json:"risks"`
}

type PolicyImpact struct {
	Policy         string   `json:"policy"`
	Description    string   `json:"description"`
	Impact         Level    `json:"impact"`
	AffectedFields []string `json:"affectedFields"`
}

type PolicyCheck struct {
	OverallRisk Level          `json:"overallRisk"`
	Impacts     []PolicyImpact `json:"impacts"`
}

type RemixChange struct {
	Field     string `json:"field"`
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Impact    Level  `json:"impact"`
	Rationale string `json:"rationale"`
}

type RemixPlan struct {
	Changes          []RemixChange `json:"changes"`
	EstimatedSavings float64       `json:"estimatedSavingsPercent"`
}

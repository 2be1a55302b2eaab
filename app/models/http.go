package models

// Request bodies accepted by the metered endpoints.

type HSSuggestRequest struct {
	Description   string `json:"description"`
	OriginCountry string `json:"originCountry"`
}

type DutyEstimateRequest struct {
	HSCode             string  `json:"hsCode"`
	OriginCountry      string  `json:"originCountry"`
	DestinationCountry string  `json:"destinationCountry"`
	Value              float64 `json:"value"`
	Currency           string  `json:"currency"`
}

type IncotermsRequest struct {
	OriginCountry      string  `json:"originCountry"`
	DestinationCountry string  `json:"destinationCountry"`
	TransportMode      string  `json:"transportMode"` // sea, air, road, rail
	GoodsDescription   string  `json:"goodsDescription"`
	Value              float64 `json:"value"`
	ExperienceLevel    string  `json:"experienceLevel"`
}

type ExtractRequest struct {
	Text string `json:"text"`
}

// ManifestRequest carries a manifest already in structured form.
type ManifestRequest struct {
	Manifest map[string]any `json:"manifest"`
}

type ExportRequest struct {
	Filename string           `json:"filename"`
	Rows     []map[string]any `json:"rows"`
}

type CheckoutRequest struct {
	Tier TierID `json:"tier"`
}

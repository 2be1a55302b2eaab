package app

import (
	"strings"

	"github.com/aloewind/exportremix-sub001/app/aiproto"
	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/tariff"

	"github.com/gin-gonic/gin"
)

const maxExtractTextBytes = 64 << 10

func validateHSSuggest(req *models.HSSuggestRequest) error {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return badInput("description is required")
	}
	return nil
}

func validateDutyEstimate(req *models.DutyEstimateRequest) error {
	code, ok := aiproto.NormalizeHSCode(req.HSCode)
	if !ok {
		return badInput("hsCode must have 6 to 10 digits")
	}
	req.HSCode = code
	req.OriginCountry = strings.TrimSpace(req.OriginCountry)
	req.DestinationCountry = strings.TrimSpace(req.DestinationCountry)
	if req.OriginCountry == "" || req.DestinationCountry == "" {
		return badInput("originCountry and destinationCountry are required")
	}
	if req.Value < 0 {
		return badInput("value must not be negative")
	}
	return nil
}

func validateIncoterms(req *models.IncotermsRequest) error {
	if strings.TrimSpace(req.OriginCountry) == "" || strings.TrimSpace(req.DestinationCountry) == "" {
		return badInput("originCountry and destinationCountry are required")
	}
	if strings.TrimSpace(req.TransportMode) == "" {
		return badInput("transportMode is required")
	}
	return nil
}

func validateExtract(req *models.ExtractRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return badInput("text is required")
	}
	if len(req.Text) > maxExtractTextBytes {
		return badInput("text is too large")
	}
	return nil
}

func validateManifest(req *models.ManifestRequest) error {
	if len(req.Manifest) == 0 {
		return badInput("manifest is required")
	}
	return nil
}

func (s *Server) suggestHS(c *gin.Context, acct models.Account, req *models.HSSuggestRequest) (any, error) {
	candidates := s.reference.Suggestions(req.Description, aiproto.MaxHSSuggestions)
	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.HSSuggestionResult]{
		Endpoint: "hs-suggest",
		User:     acct.ID,
		Prompt:   aiproto.HSPrompt(*req, candidates),
		Parse:    aiproto.ParseHSSuggestions,
		Fallback: aiproto.HSFallback(candidates),
		Normalize: func(r models.HSSuggestionResult) models.HSSuggestionResult {
			r.Suggestions = aiproto.MergeSuggestions(r.Suggestions, candidates, aiproto.MaxHSSuggestions)
			return aiproto.NormalizeHSResult(r)
		},
	})
	setOutcome(c, out.State)
	return out.Value, nil
}

type dutyResponse struct {
	models.DutyEstimate
	EstimatedDuty float64 `json:"estimatedDuty"`
	Currency      string  `json:"currency,omitempty"`
}

func (s *Server) estimateDuty(c *gin.Context, acct models.Account, req *models.DutyEstimateRequest) (any, error) {
	dc := aiproto.DutyContext{Request: *req, Conservative: tariff.ConservativeRate}
	if agreement := tariff.AgreementFor(req.OriginCountry, req.DestinationCountry); agreement.Eligible {
		dc.Agreement = agreement.Name
	}
	if entry, ok := s.reference.Lookup(req.HSCode); ok {
		rate := entry.MFNRate
		dc.ReferenceRate = &rate
	}

	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.DutyEstimate]{
		Endpoint:  "duty-estimate",
		User:      acct.ID,
		Prompt:    aiproto.DutyPrompt(dc),
		Parse:     aiproto.ParseDutyEstimate,
		Fallback:  aiproto.DutyFallback(dc),
		Normalize: aiproto.NormalizeDutyEstimate,
	})
	setOutcome(c, out.State)
	return dutyResponse{
		DutyEstimate:  out.Value,
		EstimatedDuty: tariff.EstimateDuty(req.Value, out.Value.TariffRate).InexactFloat64(),
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
	}, nil
}

func (s *Server) suggestIncoterms(c *gin.Context, acct models.Account, req *models.IncotermsRequest) (any, error) {
	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.IncotermSuggestion]{
		Endpoint:  "incoterms-suggest",
		User:      acct.ID,
		Prompt:    aiproto.IncotermPrompt(*req),
		Parse:     aiproto.ParseIncotermSuggestion,
		Fallback:  aiproto.IncotermFallback(*req),
		Normalize: aiproto.NormalizeIncotermSuggestion,
	})
	setOutcome(c, out.State)
	return out.Value, nil
}

func (s *Server) extractManifest(c *gin.Context, acct models.Account, req *models.ExtractRequest) (any, error) {
	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.ManifestFields]{
		Endpoint:  "extract-manifest",
		User:      acct.ID,
		Prompt:    aiproto.ManifestFieldsPrompt(req.Text),
		Parse:     aiproto.ParseManifestFields,
		Fallback:  aiproto.ManifestFieldsFallback(req.Text),
		Normalize: aiproto.NormalizeManifestFields,
	})
	setOutcome(c, out.State)
	return gin.H{"fields": out.Value}, nil
}

func (s *Server) analyzeManifest(c *gin.Context, acct models.Account, req *models.ManifestRequest) (any, error) {
	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.ManifestAnalysis]{
		Endpoint:  "analyze-manifest",
		User:      acct.ID,
		Prompt:    aiproto.ManifestAnalysisPrompt(req.Manifest),
		Parse:     aiproto.ParseManifestAnalysis,
		Fallback:  aiproto.ManifestAnalysisFallback(req.Manifest),
		Normalize: aiproto.NormalizeManifestAnalysis,
	})
	setOutcome(c, out.State)
	return out.Value, nil
}

func (s *Server) checkPolicy(c *gin.Context, acct models.Account, req *models.ManifestRequest) (any, error) {
	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.PolicyCheck]{
		Endpoint: "policy-check",
		User:     acct.ID,
		Prompt:   aiproto.PolicyCheckPrompt(req.Manifest),
		Parse:    aiproto.ParsePolicyCheck,
		Fallback: aiproto.PolicyCheckFallback,
	})
	setOutcome(c, out.State)
	return out.Value, nil
}

func (s *Server) remixManifest(c *gin.Context, acct models.Account, req *models.ManifestRequest) (any, error) {
	out := aiproto.Run(c.Request.Context(), s.protocol, aiproto.Call[models.RemixPlan]{
		Endpoint:  "remix",
		User:      acct.ID,
		Prompt:    aiproto.RemixPrompt(req.Manifest),
		Parse:     aiproto.ParseRemixPlan,
		Fallback:  aiproto.RemixFallback,
		Normalize: aiproto.NormalizeRemixPlan,
	})
	setOutcome(c, out.State)
	return out.Value, nil
}

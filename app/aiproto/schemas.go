package aiproto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structural gates only. Numeric fields are left untyped because ParsePercent
// tolerates strings; enumerations are checked in Go so the error names the field.
const (
	hsSchemaJSON = `{
  "type": "object",
  "required": ["suggestions"],
  "properties": {
    "suggestions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["code"],
        "properties": {
          "code": {"type": ["string", "number"]},
          "description": {"type": "string"}
        }
      }
    }
  }
}`

	dutySchemaJSON = `{
  "type": "object",
  "required": ["tariffRate", "source"],
  "properties": {
    "source": {"type": "string"},
    "note": {"type": "string"}
  }
}`

	incotermSchemaJSON = `{
  "type": "object",
  "required": ["recommended", "risk", "cost"],
  "properties": {
    "recommended": {"type": "string"},
    "explanation": {"type": "string"},
    "alternatives": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["code"],
        "properties": {
          "code": {"type": "string"},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

	analysisSchemaJSON = `{
  "type": "object",
  "required": ["summary", "complianceScore", "risks"],
  "properties": {
    "summary": {"type": "string"},
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "issue", "severity"],
        "properties": {
          "field": {"type": "string"},
          "issue": {"type": "string"},
          "recommendation": {"type": "string"}
        }
      }
    }
  }
}`

	policySchemaJSON = `{
  "type": "object",
  "required": ["overallRisk", "impacts"],
  "properties": {
    "impacts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["policy", "impact"],
        "properties": {
          "policy": {"type": "string"},
          "description": {"type": "string"},
          "affectedFields": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

	remixSchemaJSON = `{
  "type": "object",
  "required": ["changes"],
  "properties": {
    "changes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "suggested", "impact"],
        "properties": {
          "field": {"type": "string"},
          "original": {"type": ["string", "number", "null"]},
          "suggested": {"type": ["string", "number"]},
          "rationale": {"type": "string"}
        }
      }
    }
  }
}`
)

var (
	hsSchema       = mustSchema("hs-suggestions", hsSchemaJSON)
	dutySchema     = mustSchema("duty-estimate", dutySchemaJSON)
	incotermSchema = mustSchema("incoterm-suggestion", incotermSchemaJSON)
	manifestSchema = mustSchema("manifest-fields", manifestSchemaJSON())
	analysisSchema = mustSchema("manifest-analysis", analysisSchemaJSON)
	policySchema   = mustSchema("policy-check", policySchemaJSON)
	remixSchema    = mustSchema("remix-plan", remixSchemaJSON)
)

// manifestSchemaJSON allows a scalar or null for every known field and ignores
// the rest.
func manifestSchemaJSON() string {
	props := make(map[string]any, len(models.ManifestFieldNames))
	for _, name := range models.ManifestFieldNames {
		props[name] = map[string]any{"type": []string{"string", "number", "boolean", "null"}}
	}
	b, err := json.Marshal(map[string]any{"type": "object", "properties": props})
	if err != nil {
		panic(err)
	}
	return string(b)
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://exportremix.local/aiproto/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return compiled, nil
}

func mustSchema(name, schema string) *jsonschema.Schema {
	s, err := compileSchema(name, schema)
	if err != nil {
		panic(fmt.Sprintf("aiproto: %s: %v", name, err))
	}
	return s
}

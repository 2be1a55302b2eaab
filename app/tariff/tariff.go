// Package tariff holds the local HS reference table and duty arithmetic used to
// ground and back up the model.
package tariff

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ConservativeRate is the duty percentage assumed when nothing better is known.
const ConservativeRate = 5.0

//go:embed hs_reference.yaml
var defaultReference []byte

type Entry struct {
	Code        string   `yaml:"code"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	MFNRate     float64  `yaml:"mfnRate"`
}

// Candidate is a reference entry scored against a goods description.
type Candidate struct {
	Entry
	Confidence int
}

type Reference struct {
	entries []Entry
	byCode  map[string]Entry
}

type referenceFile struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads a reference table from path; an empty path loads the embedded one.
func Load(path string) (*Reference, error) {
	raw := defaultReference
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read hs reference: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Default() *Reference {
	r, err := Parse(defaultReference)
	if err != nil {
		panic(err)
	}
	return r
}

func Parse(raw []byte) (*Reference, error) {
	var f referenceFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse hs reference: %w", err)
	}
	if len(f.Entries) == 0 {
		return nil, errors.New("hs reference: no entries")
	}
	r := &Reference{byCode: make(map[string]Entry, len(f.Entries))}
	for _, e := range f.Entries {
		if len(e.Code) != 6 || strings.IndexFunc(e.Code, func(c rune) bool { return c < '0' || c > '9' }) >= 0 {
			return nil, fmt.Errorf("hs reference: %q is not a 6 digit subheading", e.Code)
		}
		if e.MFNRate < 0 || e.MFNRate > 100 {
			return nil, fmt.Errorf("hs reference: %s: rate out of range", e.Code)
		}
		for i, k := range e.Keywords {
			e.Keywords[i] = strings.ToLower(k)
		}
		r.entries = append(r.entries, e)
		r.byCode[e.Code] = e
	}
	return r, nil
}

func tokenize(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-'
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

// Match scores every entry by keyword hits and returns the best limit entries
// with at least one hit.
func (r *Reference) Match(description string, limit int) []Candidate {
	words := tokenize(description)
	var out []Candidate
	for _, e := range r.entries {
		hits := 0
		for _, k := range e.Keywords {
			if words[k] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, Candidate{Entry: e, Confidence: min(90, 30+20*hits)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Suggestions is Match rendered as HS suggestions.
func (r *Reference) Suggestions(description string, limit int) []models.HSSuggestion {
	matches := r.Match(description, limit)
	out := make([]models.HSSuggestion, 0, len(matches))
	for _, c := range matches {
		out = append(out, models.HSSuggestion{
			Code:        c.Code,
			Confidence:  c.Confidence,
			Description: c.Description,
			Source:      "reference",
		})
	}
	return out
}

// Lookup finds the entry for the 6 digit subheading of code.
func (r *Reference) Lookup(code string) (Entry, bool) {
	digits := strings.Map(func(c rune) rune {
		if c >= '0' && c <= '9' {
			return c
		}
		return -1
	}, code)
	if len(digits) < 6 {
		return Entry{}, false
	}
	e, ok := r.byCode[digits[:6]]
	return e, ok
}

// EstimateDuty returns value * rate / 100 rounded to cents.
func EstimateDuty(value, ratePercent float64) decimal.Decimal {
	return decimal.NewFromFloat(value).
		Mul(decimal.NewFromFloat(ratePercent)).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

package aiproto

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StripCodeFence removes a surrounding Markdown code fence, with or without a
// language tag.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced JSON object in s, skipping braces
// inside string literals.
func ExtractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// decode runs the shared front half of every parser: fence strip, object
// extraction, schema gate, then decoding into v.
func decode(raw string, schema *jsonschema.Schema, v any) error {
	obj, ok := ExtractObject(StripCodeFence(raw))
	if !ok {
		return fmt.Errorf("%w: no JSON object found", ErrParse)
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Field: "$", Reason: err.Error()}
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// NormalizeHSCode keeps only digits and accepts the result when it is 6 to 10
// digits long.
func NormalizeHSCode(v any) (string, bool) {
	var b strings.Builder
	for _, r := range scalarString(v) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	code := b.String()
	if len(code) < 6 || len(code) > 10 {
		return "", false
	}
	return code, true
}

// ParsePercent reads a number, a numeric string or a "12.5%" string and clamps
// it to [0, 100]. Anything else is 0.
func ParsePercent(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return math.Min(100, math.Max(0, f))
}

// ParseConfidence is ParsePercent rounded to an integer.
func ParseConfidence(v any) int {
	return int(math.Round(ParsePercent(v)))
}

// ParseLevel accepts high, medium or low in any letter case. Other values are
// rejected rather than guessed.
func ParseLevel(field string, v any) (models.Level, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "expected high, medium or low, got %v", v)
	}
	l := models.Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", invalid(field, "expected high, medium or low, got %q", s)
	}
	return l, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

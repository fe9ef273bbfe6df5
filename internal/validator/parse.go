package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"market-echo/internal/domain"
)

// wireVerdict uses pointers so missing fields can be told apart from zero
// values.
type wireVerdict struct {
	Agreement              *bool     `json:"agreement"`
	Reasoning              *string   `json:"reasoning"`
	AdjustedRecommendation *string   `json:"adjustedRecommendation"`
	ConfidenceScore        *float64  `json:"confidenceScore"`
	KeyFactors             *[]string `json:"keyFactors"`
	Summary                *string   `json:"summary"`
}

// ParseVerdict extracts and strictly decodes the verdict object from raw
// model output. Code fences and surrounding prose are tolerated; a fence
// tagged json is tried before other fences and before the bare text.
func ParseVerdict(raw string) (*domain.ValidatedVerdict, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "\ufeff"))
	if s == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrValidationParse)
	}

	var firstErr error
	for _, obj := range jsonObjects(s) {
		v, err := decodeVerdict(obj)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("%w: no JSON object found", domain.ErrValidationParse)
	}
	return nil, firstErr
}

func decodeVerdict(payload []byte) (*domain.ValidatedVerdict, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	var w wireVerdict
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationParse, err)
	}

	var missing []string
	if w.Agreement == nil {
		missing = append(missing, "agreement")
	}
	if w.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if w.ConfidenceScore == nil {
		missing = append(missing, "confidenceScore")
	}
	if w.KeyFactors == nil {
		missing = append(missing, "keyFactors")
	}
	if w.Summary == nil {
		missing = append(missing, "summary")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields %s", domain.ErrValidationParse, strings.Join(missing, ", "))
	}

	score := *w.ConfidenceScore
	if math.IsNaN(score) || score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: confidenceScore %v out of range", domain.ErrValidationParse, score)
	}

	v := &domain.ValidatedVerdict{
		Agreement:       *w.Agreement,
		Reasoning:       *w.Reasoning,
		ConfidenceScore: score,
		KeyFactors:      append([]string{}, (*w.KeyFactors)...),
		Summary:         *w.Summary,
	}
	if w.AdjustedRecommendation != nil {
		v.AdjustedRecommendation = *w.AdjustedRecommendation
	}
	return v, nil
}

// jsonObjects returns every top-level JSON object found in s, in the order
// they should be tried.
func jsonObjects(s string) [][]byte {
	var out [][]byte
	for _, section := range sections(s) {
		for i := 0; i < len(section); {
			j := strings.IndexByte(section[i:], '{')
			if j < 0 {
				break
			}
			i += j
			dec := json.NewDecoder(strings.NewReader(section[i:]))
			var obj json.RawMessage
			if err := dec.Decode(&obj); err != nil {
				i++
				continue
			}
			out = append(out, obj)
			i += int(dec.InputOffset())
		}
	}
	return out
}

// sections orders the places a verdict may sit: bodies of ```json fences,
// then bodies of other fences, then the whole reply.
func sections(s string) []string {
	var tagged, other []string
	parts := strings.Split(s, "```")
	for i := 1; i < len(parts); i += 2 {
		body := parts[i]
		info := ""
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
			info, body = strings.TrimSpace(body[:nl]), body[nl+1:]
		}
		if strings.EqualFold(info, "json") {
			tagged = append(tagged, body)
		} else {
			other = append(other, body)
		}
	}
	return append(append(tagged, other...), s)
}

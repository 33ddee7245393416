package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Language enum for the two-way toggle
type Language string

const (
	LanguageSource Language = "source"
	LanguageTarget Language = "target"
)

// Valid reports whether l is one of the two supported values.
func (l Language) Valid() bool {
	return l == LanguageSource || l == LanguageTarget
}

// Record is the structured five-field result extracted from a paper.
// Immutable once produced by a provider.
type Record struct {
	ProblemSolved     string   `json:"problem_solved"`
	Innovations       []string `json:"innovations"`
	ComparisonMethods []string `json:"comparison_methods"`
	Limitations       []string `json:"limitations"`
	Summary           string   `json:"summary"`
}

// shadow struct with pointer fields so missing keys can be told apart
// from empty values
type recordProbe struct {
	ProblemSolved     *string   `json:"problem_solved"`
	Innovations       *[]string `json:"innovations"`
	ComparisonMethods *[]string `json:"comparison_methods"`
	Limitations       *[]string `json:"limitations"`
	Summary           *string   `json:"summary"`
}

// ParseRecord decodes a provider payload into a Record. All five fields are
// mandatory; absence of any one is a hard failure, not a partial result.
func ParseRecord(raw string) (*Record, error) {
	raw = stripCodeFence(raw)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrSchemaViolation)
	}

	var probe recordProbe
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	missing := []string{}
	if probe.ProblemSolved == nil {
		missing = append(missing, "problem_solved")
	}
	if probe.Innovations == nil {
		missing = append(missing, "innovations")
	}
	if probe.ComparisonMethods == nil {
		missing = append(missing, "comparison_methods")
	}
	if probe.Limitations == nil {
		missing = append(missing, "limitations")
	}
	if probe.Summary == nil {
		missing = append(missing, "summary")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields: %s", ErrSchemaViolation, strings.Join(missing, ", "))
	}

	return &Record{
		ProblemSolved:     *probe.ProblemSolved,
		Innovations:       *probe.Innovations,
		ComparisonMethods: *probe.ComparisonMethods,
		Limitations:       *probe.Limitations,
		Summary:           *probe.Summary,
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON in one despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// AnalysisID identifier type
type AnalysisID string

// Analysis is a persisted analysis result kept for history and retrieval
type Analysis struct {
	ID        AnalysisID `json:"id"`
	SessionID string     `json:"session_id"`
	Filename  string     `json:"filename"`
	Language  Language   `json:"language"`
	Result    string     `json:"result"` // JSON string of the Record
	CreatedAt time.Time  `json:"created_at"`
}

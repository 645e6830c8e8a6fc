package search

import (
	"fmt"
	"strconv"
)

// FilterError reports a structured filter that failed validation. It is
// returned before any store lookup runs so malformed values never reach the
// query layer.
type FilterError struct {
	Key     string
	Message string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %q: %s", e.Key, e.Message)
}

// SystemFilters narrows AI system candidates.
type SystemFilters struct {
	SystemType      string
	LifecycleStatus string
	RiskTier        string
}

// AssessmentFilters narrows assessment candidates.
type AssessmentFilters struct {
	Status      string
	FrameworkID string
}

// RiskFilters narrows risk candidates. MinResidualScore is inclusive.
type RiskFilters struct {
	Category         string
	TreatmentStatus  string
	MinResidualScore *float64
}

// EvidenceFilters narrows evidence candidates. MimeType matches as a
// substring, so "pdf" matches "application/pdf".
type EvidenceFilters struct {
	ReviewStatus string
	MimeType     string
}

// Filters is the validated, typed form of Query.Filters, split per entity
// type. Each matcher reads only its own section.
type Filters struct {
	System     SystemFilters
	Assessment AssessmentFilters
	Risk       RiskFilters
	Evidence   EvidenceFilters
}

// ParseFilters validates the raw filter map. Unknown keys and malformed
// values are rejected with a *FilterError rather than propagated to the
// store layer.
func ParseFilters(raw map[string]string) (Filters, error) {
	var f Filters
	for key, value := range raw {
		if value == "" {
			continue
		}
		switch key {
		case "systemType":
			f.System.SystemType = value
		case "lifecycleStatus":
			f.System.LifecycleStatus = value
		case "riskTier":
			f.System.RiskTier = value
		case "status":
			f.Assessment.Status = value
		case "frameworkId":
			f.Assessment.FrameworkID = value
		case "category":
			f.Risk.Category = value
		case "treatmentStatus":
			f.Risk.TreatmentStatus = value
		case "minResidualScore":
			score, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Filters{}, &FilterError{Key: key, Message: "must be a number"}
			}
			f.Risk.MinResidualScore = &score
		case "reviewStatus":
			f.Evidence.ReviewStatus = value
		case "mimeType":
			f.Evidence.MimeType = value
		default:
			return Filters{}, &FilterError{Key: key, Message: "unknown filter"}
		}
	}
	return f, nil
}

package search

import (
	"context"

	"guardrail/api/internal/store"
)

// resultCap bounds how many raw candidates each entity lookup fetches from
// the store. It is a fan-out safeguard, not pagination: when more than
// resultCap records of one entity type match, Total undercounts the true
// match count. Accepted scale limit.
const resultCap = 50

type matcherFunc func(ctx context.Context, st Store, text, organizationID string, f Filters) ([]Result, error)

// matchers maps each entity type to its lookup. All four share the same
// shape; the differences live in the store query, the score-field order, the
// snippet source, and the metadata projection.
var matchers = map[EntityType]matcherFunc{
	EntityAISystem:   matchAISystems,
	EntityAssessment: matchAssessments,
	EntityRisk:       matchRisks,
	EntityEvidence:   matchEvidence,
}

// newResult shapes one record into the normalized envelope: relevance from
// the title-priority score fields, snippet from the primary descriptive
// field, metadata passed through untouched.
func newResult(entity EntityType, id, title, text string, scoreFields []string, snippetSource string, metadata map[string]any) Result {
	return Result{
		EntityType: entity,
		ID:         id,
		Title:      title,
		Snippet:    Highlight(snippetSource, text),
		Relevance:  Score(text, scoreFields),
		Metadata:   metadata,
	}
}

func matchAISystems(ctx context.Context, st Store, text, organizationID string, f Filters) ([]Result, error) {
	records, err := st.SearchAISystems(ctx, store.SystemSearchQuery{
		OrganizationID:  organizationID,
		Text:            text,
		SystemType:      f.System.SystemType,
		LifecycleStatus: f.System.LifecycleStatus,
		RiskTier:        f.System.RiskTier,
		Limit:           resultCap,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(records))
	for _, r := range records {
		results = append(results, newResult(EntityAISystem, r.ID, r.Name, text,
			[]string{r.Name, r.Description, r.Purpose},
			r.Description,
			map[string]any{
				"systemType":      r.SystemType,
				"lifecycleStatus": r.LifecycleStatus,
				"riskTier":        r.RiskTier,
				"updatedAt":       r.UpdatedAt,
			}))
	}
	return results, nil
}

func matchAssessments(ctx context.Context, st Store, text, organizationID string, f Filters) ([]Result, error) {
	records, err := st.SearchAssessments(ctx, store.AssessmentSearchQuery{
		OrganizationID: organizationID,
		Text:           text,
		Status:         f.Assessment.Status,
		FrameworkID:    f.Assessment.FrameworkID,
		Limit:          resultCap,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(records))
	for _, r := range records {
		// The owning system's name participates in scoring but not matching.
		results = append(results, newResult(EntityAssessment, r.ID, r.Title, text,
			[]string{r.Title, r.Description, r.SystemName},
			r.Description,
			map[string]any{
				"status":      r.Status,
				"frameworkId": r.FrameworkID,
				"systemName":  r.SystemName,
				"updatedAt":   r.UpdatedAt,
			}))
	}
	return results, nil
}

func matchRisks(ctx context.Context, st Store, text, organizationID string, f Filters) ([]Result, error) {
	records, err := st.SearchRisks(ctx, store.RiskSearchQuery{
		OrganizationID:   organizationID,
		Text:             text,
		Category:         f.Risk.Category,
		TreatmentStatus:  f.Risk.TreatmentStatus,
		MinResidualScore: f.Risk.MinResidualScore,
		Limit:            resultCap,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(records))
	for _, r := range records {
		results = append(results, newResult(EntityRisk, r.ID, r.Title, text,
			[]string{r.Title, r.Description, r.TreatmentPlan},
			r.Description,
			map[string]any{
				"category":        r.Category,
				"treatmentStatus": r.TreatmentStatus,
				"residualScore":   r.ResidualScore,
				"assessmentId":    r.AssessmentID,
			}))
	}
	return results, nil
}

func matchEvidence(ctx context.Context, st Store, text, organizationID string, f Filters) ([]Result, error) {
	records, err := st.SearchEvidence(ctx, store.EvidenceSearchQuery{
		OrganizationID: organizationID,
		Text:           text,
		ReviewStatus:   f.Evidence.ReviewStatus,
		MimeType:       f.Evidence.MimeType,
		Limit:          resultCap,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(records))
	for _, r := range records {
		title := r.OriginalName
		if title == "" {
			title = r.Filename
		}
		description := r.Description
		if description == "" {
			description = "File: " + r.Filename
		}
		results = append(results, newResult(EntityEvidence, r.ID, title, text,
			[]string{r.Filename, r.OriginalName, r.Description},
			description,
			map[string]any{
				"mimeType":     r.MimeType,
				"reviewStatus": r.ReviewStatus,
				"sizeBytes":    r.SizeBytes,
				"uploadedAt":   r.CreatedAt,
			}))
	}
	return results, nil
}

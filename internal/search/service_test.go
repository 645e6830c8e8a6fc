package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"guardrail/api/internal/store"
)

type fakeStore struct {
	searchAISystemsFn   func(context.Context, store.SystemSearchQuery) ([]store.AISystem, error)
	searchAssessmentsFn func(context.Context, store.AssessmentSearchQuery) ([]store.Assessment, error)
	searchRisksFn       func(context.Context, store.RiskSearchQuery) ([]store.Risk, error)
	searchEvidenceFn    func(context.Context, store.EvidenceSearchQuery) ([]store.Evidence, error)
}

func (f *fakeStore) SearchAISystems(ctx context.Context, q store.SystemSearchQuery) ([]store.AISystem, error) {
	if f.searchAISystemsFn != nil {
		return f.searchAISystemsFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeStore) SearchAssessments(ctx context.Context, q store.AssessmentSearchQuery) ([]store.Assessment, error) {
	if f.searchAssessmentsFn != nil {
		return f.searchAssessmentsFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeStore) SearchRisks(ctx context.Context, q store.RiskSearchQuery) ([]store.Risk, error) {
	if f.searchRisksFn != nil {
		return f.searchRisksFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeStore) SearchEvidence(ctx context.Context, q store.EvidenceSearchQuery) ([]store.Evidence, error) {
	if f.searchEvidenceFn != nil {
		return f.searchEvidenceFn(ctx, q)
	}
	return nil, nil
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	st := &fakeStore{
		searchAISystemsFn: func(context.Context, store.SystemSearchQuery) ([]store.AISystem, error) {
			t.Fatal("store must not be queried for an empty query")
			return nil, nil
		},
	}
	svc := NewService(st, 0)

	resp, err := svc.Search(context.Background(), Query{Text: "   ", OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 0 || len(resp.Results) != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
	if resp.Results == nil {
		t.Fatal("results must be an empty slice, not nil")
	}
	if resp.Page != 1 || resp.PageSize != defaultPageSize {
		t.Fatalf("expected defaulted paging, got page=%d pageSize=%d", resp.Page, resp.PageSize)
	}
}

func TestSearchScopesEveryLookupToTenantAndCap(t *testing.T) {
	seen := make(map[EntityType]bool)
	st := &fakeStore{
		searchAISystemsFn: func(_ context.Context, q store.SystemSearchQuery) ([]store.AISystem, error) {
			if q.OrganizationID != "org-1" {
				t.Errorf("ai_system lookup got org %q", q.OrganizationID)
			}
			if q.Limit != 50 {
				t.Errorf("ai_system lookup got limit %d", q.Limit)
			}
			seen[EntityAISystem] = true
			return nil, nil
		},
		searchAssessmentsFn: func(_ context.Context, q store.AssessmentSearchQuery) ([]store.Assessment, error) {
			if q.OrganizationID != "org-1" {
				t.Errorf("assessment lookup got org %q", q.OrganizationID)
			}
			if q.Limit != 50 {
				t.Errorf("assessment lookup got limit %d", q.Limit)
			}
			seen[EntityAssessment] = true
			return nil, nil
		},
		searchRisksFn: func(_ context.Context, q store.RiskSearchQuery) ([]store.Risk, error) {
			if q.OrganizationID != "org-1" {
				t.Errorf("risk lookup got org %q", q.OrganizationID)
			}
			if q.Limit != 50 {
				t.Errorf("risk lookup got limit %d", q.Limit)
			}
			seen[EntityRisk] = true
			return nil, nil
		},
		searchEvidenceFn: func(_ context.Context, q store.EvidenceSearchQuery) ([]store.Evidence, error) {
			if q.OrganizationID != "org-1" {
				t.Errorf("evidence lookup got org %q", q.OrganizationID)
			}
			if q.Limit != 50 {
				t.Errorf("evidence lookup got limit %d", q.Limit)
			}
			seen[EntityEvidence] = true
			return nil, nil
		},
	}
	svc := NewService(st, 0)

	if _, err := svc.Search(context.Background(), Query{Text: "fraud", OrganizationID: "org-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entity := range AllEntityTypes {
		if !seen[entity] {
			t.Errorf("entity %s was not queried by the default fan-out", entity)
		}
	}
}

func TestSearchMergesAndRanksAcrossEntityTypes(t *testing.T) {
	st := &fakeStore{
		searchAISystemsFn: func(context.Context, store.SystemSearchQuery) ([]store.AISystem, error) {
			return []store.AISystem{{
				ID:             "sys_1",
				OrganizationID: "org-1",
				Name:           "Fraud Detection Model",
				Description:    "Detects fraud",
			}}, nil
		},
		searchRisksFn: func(context.Context, store.RiskSearchQuery) ([]store.Risk, error) {
			return []store.Risk{{
				ID:             "rsk_1",
				OrganizationID: "org-1",
				Title:          "Model drift risk",
				Description:    "fraud detection accuracy degrading",
			}}, nil
		},
	}
	svc := NewService(st, 0)

	resp, err := svc.Search(context.Background(), Query{
		Text:           "fraud",
		EntityTypes:    []EntityType{EntityAISystem, EntityRisk},
		OrganizationID: "org-1",
		Page:           1,
		PageSize:       10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected total 2, got %d", resp.Total)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].EntityType != EntityAISystem {
		t.Fatalf("expected the name match ranked first, got %+v", resp.Results[0])
	}
	if resp.Results[0].Relevance < resp.Results[1].Relevance {
		t.Fatalf("results out of relevance order: %v < %v", resp.Results[0].Relevance, resp.Results[1].Relevance)
	}
	if resp.QueryTime < 0 {
		t.Fatalf("negative query time %d", resp.QueryTime)
	}
	if !strings.Contains(resp.Results[0].Snippet, "<mark>fraud</mark>") {
		t.Fatalf("expected highlighted snippet, got %q", resp.Results[0].Snippet)
	}
	if resp.Results[0].Metadata == nil {
		t.Fatal("expected pass-through metadata")
	}
}

func TestSearchPaginationReconstructsFullList(t *testing.T) {
	// Seven systems matching the query; the exact-name match outranks the
	// substring matches and the stable sort keeps ties in store order.
	systems := make([]store.AISystem, 0, 7)
	for i := 0; i < 7; i++ {
		systems = append(systems, store.AISystem{
			ID:   fmt.Sprintf("sys_%d", i),
			Name: strings.Repeat("x ", i) + "drift monitor",
		})
	}
	st := &fakeStore{
		searchAISystemsFn: func(context.Context, store.SystemSearchQuery) ([]store.AISystem, error) {
			return systems, nil
		},
	}
	svc := NewService(st, 0)

	base := Query{
		Text:           "drift monitor",
		EntityTypes:    []EntityType{EntityAISystem},
		OrganizationID: "org-1",
		PageSize:       3,
	}

	var pages []Result
	for page := 1; page <= 3; page++ {
		q := base
		q.Page = page
		resp, err := svc.Search(context.Background(), q)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if resp.Total != 7 {
			t.Fatalf("page %d: expected total 7, got %d", page, resp.Total)
		}
		if len(resp.Results) > 3 {
			t.Fatalf("page %d: exceeded page size: %d", page, len(resp.Results))
		}
		pages = append(pages, resp.Results...)
	}

	if len(pages) != 7 {
		t.Fatalf("expected 7 results across pages, got %d", len(pages))
	}
	ids := make(map[string]bool)
	for i, r := range pages {
		if ids[r.ID] {
			t.Fatalf("duplicate result %s across pages", r.ID)
		}
		ids[r.ID] = true
		if i > 0 && pages[i-1].Relevance < r.Relevance {
			t.Fatalf("pages out of global order at %d: %v < %v", i, pages[i-1].Relevance, r.Relevance)
		}
	}
}

func TestSearchPageBeyondEndIsEmpty(t *testing.T) {
	st := &fakeStore{
		searchAISystemsFn: func(context.Context, store.SystemSearchQuery) ([]store.AISystem, error) {
			return []store.AISystem{{ID: "sys_1", Name: "drift monitor"}}, nil
		},
	}
	svc := NewService(st, 0)

	resp, err := svc.Search(context.Background(), Query{
		Text:           "drift",
		EntityTypes:    []EntityType{EntityAISystem},
		OrganizationID: "org-1",
		Page:           5,
		PageSize:       10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 1 || len(resp.Results) != 0 {
		t.Fatalf("expected total 1 with empty page, got %+v", resp)
	}
}

func TestSearchMatcherFailureFailsWholeCall(t *testing.T) {
	st := &fakeStore{
		searchAISystemsFn: func(context.Context, store.SystemSearchQuery) ([]store.AISystem, error) {
			return []store.AISystem{{ID: "sys_1", Name: "drift monitor"}}, nil
		},
		searchEvidenceFn: func(context.Context, store.EvidenceSearchQuery) ([]store.Evidence, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewService(st, 0)

	_, err := svc.Search(context.Background(), Query{Text: "drift", OrganizationID: "org-1"})
	if err == nil {
		t.Fatal("expected the whole search to fail")
	}
	if !strings.Contains(err.Error(), "search evidence") {
		t.Fatalf("expected failing entity type in error, got %v", err)
	}
}

func TestSearchRejectsInvalidFiltersBeforeQuerying(t *testing.T) {
	st := &fakeStore{
		searchRisksFn: func(context.Context, store.RiskSearchQuery) ([]store.Risk, error) {
			t.Fatal("store must not be queried with invalid filters")
			return nil, nil
		},
	}
	svc := NewService(st, 0)

	_, err := svc.Search(context.Background(), Query{
		Text:           "drift",
		OrganizationID: "org-1",
		Filters:        map[string]string{"minResidualScore": "very high"},
	})
	var filterErr *FilterError
	if !errors.As(err, &filterErr) {
		t.Fatalf("expected *FilterError, got %v", err)
	}
}

func TestSearchRejectsUnknownEntityType(t *testing.T) {
	svc := NewService(&fakeStore{}, 0)
	_, err := svc.Search(context.Background(), Query{
		Text:           "drift",
		EntityTypes:    []EntityType{"widget"},
		OrganizationID: "org-1",
	})
	if err == nil || !strings.Contains(err.Error(), "widget") {
		t.Fatalf("expected unknown entity type error, got %v", err)
	}
}

func TestSearchRoutesFiltersToMatchingEntity(t *testing.T) {
	st := &fakeStore{
		searchAISystemsFn: func(_ context.Context, q store.SystemSearchQuery) ([]store.AISystem, error) {
			if q.RiskTier != "high" {
				t.Errorf("riskTier not routed to system query: %+v", q)
			}
			return nil, nil
		},
		searchRisksFn: func(_ context.Context, q store.RiskSearchQuery) ([]store.Risk, error) {
			if q.MinResidualScore == nil || *q.MinResidualScore != 15 {
				t.Errorf("minResidualScore not routed to risk query: %+v", q)
			}
			return nil, nil
		},
	}
	svc := NewService(st, 0)

	_, err := svc.Search(context.Background(), Query{
		Text:           "drift",
		OrganizationID: "org-1",
		Filters:        map[string]string{"riskTier": "high", "minResidualScore": "15"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearchTimeoutCancelsStoreQueries(t *testing.T) {
	st := &fakeStore{
		searchAISystemsFn: func(ctx context.Context, _ store.SystemSearchQuery) ([]store.AISystem, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return nil, nil
			}
		},
	}
	svc := NewService(st, 10*time.Millisecond)

	start := time.Now()
	_, err := svc.Search(context.Background(), Query{
		Text:           "drift",
		EntityTypes:    []EntityType{EntityAISystem},
		OrganizationID: "org-1",
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout did not bound the call: %v", elapsed)
	}
}

func TestSearchEvidenceFallbacks(t *testing.T) {
	st := &fakeStore{
		searchEvidenceFn: func(context.Context, store.EvidenceSearchQuery) ([]store.Evidence, error) {
			return []store.Evidence{{
				ID:       "ev_1",
				Filename: "model-card.pdf",
				MimeType: "application/pdf",
			}}, nil
		},
	}
	svc := NewService(st, 0)

	resp, err := svc.Search(context.Background(), Query{
		Text:           "model-card",
		EntityTypes:    []EntityType{EntityEvidence},
		OrganizationID: "org-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	got := resp.Results[0]
	if got.Title != "model-card.pdf" {
		t.Fatalf("expected filename title fallback, got %q", got.Title)
	}
	if !strings.Contains(got.Snippet, "File: ") {
		t.Fatalf("expected synthesized description snippet, got %q", got.Snippet)
	}
}

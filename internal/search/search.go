// Package search implements the global relevance-ranked multi-entity search:
// a free-text query fans out across AI systems, assessments, risks, and
// evidence, and the merged candidates are scored, sorted, and paginated.
package search

import (
	"context"

	"guardrail/api/internal/store"
)

// EntityType identifies the kind of entity in a search result.
type EntityType string

const (
	EntityAISystem   EntityType = "ai_system"
	EntityAssessment EntityType = "assessment"
	EntityRisk       EntityType = "risk"
	EntityEvidence   EntityType = "evidence"
)

// AllEntityTypes is the default fan-out target set, in merge order.
var AllEntityTypes = []EntityType{EntityAISystem, EntityAssessment, EntityRisk, EntityEvidence}

// Query describes a search request. OrganizationID is the mandatory tenant
// scope; Filters holds raw entity-specific filter values validated by
// ParseFilters before any store lookup runs.
type Query struct {
	Text           string
	EntityTypes    []EntityType
	OrganizationID string
	Page           int
	PageSize       int
	Filters        map[string]string
}

// Result is a single search hit. Identity is the (EntityType, ID) pair; IDs
// are only unique within their entity type. Snippet is pre-escaped HTML with
// at most one <mark> span. Metadata is pass-through presentation data.
type Result struct {
	EntityType EntityType     `json:"entityType"`
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Snippet    string         `json:"snippet"`
	Relevance  float64        `json:"relevance"`
	Metadata   map[string]any `json:"metadata"`
}

// Response is the envelope returned by Search. Total counts all candidates
// found across entity types before pagination, subject to the per-entity
// fetch cap.
type Response struct {
	Results   []Result `json:"results"`
	Total     int      `json:"total"`
	Page      int      `json:"page"`
	PageSize  int      `json:"pageSize"`
	QueryTime int64    `json:"queryTime"` // milliseconds
}

// Store is the record-store collaborator: one tenant-scoped, substring-
// filtered, capped candidate lookup per entity type.
type Store interface {
	SearchAISystems(ctx context.Context, q store.SystemSearchQuery) ([]store.AISystem, error)
	SearchAssessments(ctx context.Context, q store.AssessmentSearchQuery) ([]store.Assessment, error)
	SearchRisks(ctx context.Context, q store.RiskSearchQuery) ([]store.Risk, error)
	SearchEvidence(ctx context.Context, q store.EvidenceSearchQuery) ([]store.Evidence, error)
}

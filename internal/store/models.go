package store

import "time"

type Organization struct {
	ID         string
	Name       string
	Slug       string
	APIKeyHash string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type AISystem struct {
	ID              string
	OrganizationID  string
	Name            string
	Description     string
	Purpose         string
	SystemType      string
	LifecycleStatus string
	RiskTier        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Assessment struct {
	ID             string
	OrganizationID string
	AISystemID     string
	SystemName     string // joined from ai_systems, empty if unlinked
	Title          string
	Description    string
	Status         string
	FrameworkID    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Risk belongs to an assessment; its organization scope is derived from the
// owning assessment, never stored directly.
type Risk struct {
	ID              string
	AssessmentID    string
	OrganizationID  string // joined via assessments
	Title           string
	Description     string
	TreatmentPlan   string
	Category        string
	TreatmentStatus string
	LikelihoodScore int
	ImpactScore     int
	ResidualScore   float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Evidence struct {
	ID             string
	OrganizationID string
	AssessmentID   string
	Filename       string
	OriginalName   string
	Description    string
	MimeType       string
	SizeBytes      int64
	ReviewStatus   string
	StorageKey     string
	UploadedBy     string
	CreatedAt      time.Time
}

// SystemSearchQuery describes a tenant-scoped candidate lookup over AI
// systems: Text matches case-insensitively against name, description, or
// purpose; the remaining fields are optional structured filters.
type SystemSearchQuery struct {
	OrganizationID  string
	Text            string
	SystemType      string
	LifecycleStatus string
	RiskTier        string
	Limit           int
}

type AssessmentSearchQuery struct {
	OrganizationID string
	Text           string
	Status         string
	FrameworkID    string
	Limit          int
}

type RiskSearchQuery struct {
	OrganizationID   string
	Text             string
	Category         string
	TreatmentStatus  string
	MinResidualScore *float64
	Limit            int
}

type EvidenceSearchQuery struct {
	OrganizationID string
	Text           string
	ReviewStatus   string
	MimeType       string // substring match
	Limit          int
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"guardrail/api/internal/auth"
	"guardrail/api/internal/cache"
	"guardrail/api/internal/config"
	"guardrail/api/internal/search"
	"guardrail/api/internal/store"
	"guardrail/api/internal/util"
)

// Store is the persistence surface the application service depends on.
type Store interface {
	Ping(ctx context.Context) error

	GetOrganization(ctx context.Context, id string) (store.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (store.Organization, error)

	InsertAISystem(ctx context.Context, item store.AISystem) error
	ListAISystems(ctx context.Context, organizationID string) ([]store.AISystem, error)
	GetAISystem(ctx context.Context, organizationID, id string) (store.AISystem, error)

	InsertAssessment(ctx context.Context, item store.Assessment) error
	ListAssessments(ctx context.Context, organizationID string) ([]store.Assessment, error)
	GetAssessment(ctx context.Context, organizationID, id string) (store.Assessment, error)

	InsertRisk(ctx context.Context, item store.Risk) error
	ListRisks(ctx context.Context, organizationID string) ([]store.Risk, error)
	GetRisk(ctx context.Context, organizationID, id string) (store.Risk, error)

	InsertEvidence(ctx context.Context, item store.Evidence) error
	ListEvidence(ctx context.Context, organizationID string) ([]store.Evidence, error)
	GetEvidence(ctx context.Context, organizationID, id string) (store.Evidence, error)
	DeleteEvidence(ctx context.Context, organizationID, id string) error
	UpdateEvidenceReviewStatus(ctx context.Context, organizationID, id, status string) error

	SummaryCounts(ctx context.Context, organizationID string) (systems, assessments, risks, evidence int, err error)
}

// Searcher executes the multi-entity search.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Response, error)
}

// BlobStore holds evidence files.
type BlobStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// Session identifies the authenticated tenant for a request.
type Session struct {
	OrganizationID   string
	OrganizationName string
}

type Service struct {
	cfg      config.Config
	store    Store
	searcher Searcher
	cache    *cache.Cache // nil when Redis is not configured
	blobs    BlobStore    // nil when object storage is not configured
}

func New(cfg config.Config, st Store, searcher Searcher, searchCache *cache.Cache, blobs BlobStore) *Service {
	return &Service{cfg: cfg, store: st, searcher: searcher, cache: searchCache, blobs: blobs}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap prepares external collaborators. Failures are reported, not
// fatal; the caller decides whether to continue.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.blobs != nil {
		if err := s.blobs.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("bootstrap evidence bucket: %w", err)
		}
	}
	return nil
}

// --- Authentication ---

// IssueToken exchanges an organization API key for a short-lived access
// token scoped to that organization.
func (s *Service) IssueToken(ctx context.Context, organizationSlug, apiKey string) (map[string]any, error) {
	if strings.TrimSpace(organizationSlug) == "" || strings.TrimSpace(apiKey) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "organization and apiKey are required", nil)
	}

	org, err := s.store.GetOrganizationBySlug(ctx, organizationSlug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unknown organization or invalid API key", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup organization: %w", err)
	}
	if err := auth.VerifyAPIKey(org.APIKeyHash, apiKey); err != nil {
		return nil, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unknown organization or invalid API key", nil)
	}

	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Org:  org.ID,
		Name: org.Name,
		JTI:  util.NewID(""),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return map[string]any{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{OrganizationID: claims.Org, OrganizationName: claims.Name}, nil
}

// --- Search ---

// Search runs the multi-entity search through the response cache when one is
// configured. Cache failures degrade to an uncached search; they never fail
// the request.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	text := strings.TrimSpace(q.Text)

	if s.cache != nil && text != "" {
		key := cache.SearchKey(q)
		if cached, hit, err := s.cache.GetSearch(ctx, key); err != nil {
			log.Printf("search: cache read: %v", err)
		} else if hit {
			return cached, nil
		}

		resp, err := s.searcher.Search(ctx, q)
		if err != nil {
			return search.Response{}, err
		}
		if err := s.cache.SetSearch(ctx, key, resp); err != nil {
			log.Printf("search: cache write: %v", err)
		}
		if err := s.cache.RecordQuery(ctx, q.OrganizationID, text); err != nil {
			log.Printf("search: record query: %v", err)
		}
		return resp, nil
	}

	return s.searcher.Search(ctx, q)
}

// RecentSearches returns the organization's recent-query feed, newest first.
// Empty when no cache is configured.
func (s *Service) RecentSearches(ctx context.Context, organizationID string) ([]string, error) {
	if s.cache == nil {
		return []string{}, nil
	}
	queries, err := s.cache.RecentQueries(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if queries == nil {
		queries = []string{}
	}
	return queries, nil
}

// --- Summary ---

func (s *Service) Summary(ctx context.Context, organizationID string) (map[string]any, error) {
	systems, assessments, risks, evidence, err := s.store.SummaryCounts(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"aiSystems":   systems,
		"assessments": assessments,
		"risks":       risks,
		"evidence":    evidence,
	}, nil
}

// --- AI systems ---

type AISystemInput struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Purpose         string `json:"purpose"`
	SystemType      string `json:"systemType"`
	LifecycleStatus string `json:"lifecycleStatus"`
	RiskTier        string `json:"riskTier"`
}

func (s *Service) CreateAISystem(ctx context.Context, organizationID string, input AISystemInput) (store.AISystem, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.AISystem{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	item := store.AISystem{
		ID:              util.NewID("sys"),
		OrganizationID:  organizationID,
		Name:            strings.TrimSpace(input.Name),
		Description:     input.Description,
		Purpose:         input.Purpose,
		SystemType:      input.SystemType,
		LifecycleStatus: input.LifecycleStatus,
		RiskTier:        input.RiskTier,
	}
	if err := s.store.InsertAISystem(ctx, item); err != nil {
		return store.AISystem{}, err
	}
	return s.store.GetAISystem(ctx, organizationID, item.ID)
}

func (s *Service) ListAISystems(ctx context.Context, organizationID string) ([]store.AISystem, error) {
	return s.store.ListAISystems(ctx, organizationID)
}

func (s *Service) GetAISystem(ctx context.Context, organizationID, id string) (store.AISystem, error) {
	return s.store.GetAISystem(ctx, organizationID, id)
}

// --- Assessments ---

type AssessmentInput struct {
	AISystemID  string `json:"aiSystemId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	FrameworkID string `json:"frameworkId"`
}

func (s *Service) CreateAssessment(ctx context.Context, organizationID string, input AssessmentInput) (store.Assessment, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Assessment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.AISystemID != "" {
		if _, err := s.store.GetAISystem(ctx, organizationID, input.AISystemID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Assessment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "aiSystemId does not exist in this organization", nil)
			}
			return store.Assessment{}, err
		}
	}

	status := input.Status
	if status == "" {
		status = "draft"
	}
	item := store.Assessment{
		ID:             util.NewID("asm"),
		OrganizationID: organizationID,
		AISystemID:     input.AISystemID,
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Status:         status,
		FrameworkID:    input.FrameworkID,
	}
	if err := s.store.InsertAssessment(ctx, item); err != nil {
		return store.Assessment{}, err
	}
	return s.store.GetAssessment(ctx, organizationID, item.ID)
}

func (s *Service) ListAssessments(ctx context.Context, organizationID string) ([]store.Assessment, error) {
	return s.store.ListAssessments(ctx, organizationID)
}

func (s *Service) GetAssessment(ctx context.Context, organizationID, id string) (store.Assessment, error) {
	return s.store.GetAssessment(ctx, organizationID, id)
}

// --- Risks ---

type RiskInput struct {
	AssessmentID    string  `json:"assessmentId"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	TreatmentPlan   string  `json:"treatmentPlan"`
	Category        string  `json:"category"`
	TreatmentStatus string  `json:"treatmentStatus"`
	LikelihoodScore int     `json:"likelihoodScore"`
	ImpactScore     int     `json:"impactScore"`
	ResidualScore   float64 `json:"residualScore"`
}

func (s *Service) CreateRisk(ctx context.Context, organizationID string, input RiskInput) (store.Risk, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Risk{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.AssessmentID == "" {
		return store.Risk{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assessmentId is required", nil)
	}
	// The tenant scope of a risk is its assessment's organization; the
	// assessment must exist under the caller's tenant.
	if _, err := s.store.GetAssessment(ctx, organizationID, input.AssessmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Risk{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assessmentId does not exist in this organization", nil)
		}
		return store.Risk{}, err
	}

	treatmentStatus := input.TreatmentStatus
	if treatmentStatus == "" {
		treatmentStatus = "open"
	}
	item := store.Risk{
		ID:              util.NewID("rsk"),
		AssessmentID:    input.AssessmentID,
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		TreatmentPlan:   input.TreatmentPlan,
		Category:        input.Category,
		TreatmentStatus: treatmentStatus,
		LikelihoodScore: input.LikelihoodScore,
		ImpactScore:     input.ImpactScore,
		ResidualScore:   input.ResidualScore,
	}
	if err := s.store.InsertRisk(ctx, item); err != nil {
		return store.Risk{}, err
	}
	return s.store.GetRisk(ctx, organizationID, item.ID)
}

func (s *Service) ListRisks(ctx context.Context, organizationID string) ([]store.Risk, error) {
	return s.store.ListRisks(ctx, organizationID)
}

func (s *Service) GetRisk(ctx context.Context, organizationID, id string) (store.Risk, error) {
	return s.store.GetRisk(ctx, organizationID, id)
}

// --- Evidence ---

type EvidenceUpload struct {
	AssessmentID string
	OriginalName string
	Description  string
	MimeType     string
	SizeBytes    int64
	UploadedBy   string
	Content      io.Reader
}

func (s *Service) UploadEvidence(ctx context.Context, organizationID string, upload EvidenceUpload) (store.Evidence, error) {
	if s.blobs == nil {
		return store.Evidence{}, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Evidence storage is not configured", nil)
	}
	if strings.TrimSpace(upload.OriginalName) == "" {
		return store.Evidence{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
	}
	if upload.AssessmentID != "" {
		if _, err := s.store.GetAssessment(ctx, organizationID, upload.AssessmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Evidence{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assessmentId does not exist in this organization", nil)
			}
			return store.Evidence{}, err
		}
	}

	id := util.NewID("ev")
	filename := sanitizeFilename(upload.OriginalName)
	storageKey := organizationID + "/" + id + "/" + filename

	if err := s.blobs.Put(ctx, storageKey, upload.Content, upload.SizeBytes, upload.MimeType); err != nil {
		return store.Evidence{}, fmt.Errorf("store evidence file: %w", err)
	}

	item := store.Evidence{
		ID:             id,
		OrganizationID: organizationID,
		AssessmentID:   upload.AssessmentID,
		Filename:       filename,
		OriginalName:   upload.OriginalName,
		Description:    upload.Description,
		MimeType:       upload.MimeType,
		SizeBytes:      upload.SizeBytes,
		ReviewStatus:   "pending",
		StorageKey:     storageKey,
		UploadedBy:     upload.UploadedBy,
	}
	if err := s.store.InsertEvidence(ctx, item); err != nil {
		// Best-effort cleanup so the bucket does not accumulate orphans.
		if removeErr := s.blobs.Remove(ctx, storageKey); removeErr != nil {
			log.Printf("evidence: cleanup %s: %v", storageKey, removeErr)
		}
		return store.Evidence{}, err
	}
	return s.store.GetEvidence(ctx, organizationID, id)
}

func (s *Service) ListEvidence(ctx context.Context, organizationID string) ([]store.Evidence, error) {
	return s.store.ListEvidence(ctx, organizationID)
}

func (s *Service) GetEvidence(ctx context.Context, organizationID, id string) (store.Evidence, error) {
	return s.store.GetEvidence(ctx, organizationID, id)
}

// EvidenceDownloadURL returns a time-limited presigned URL for the file.
func (s *Service) EvidenceDownloadURL(ctx context.Context, organizationID, id string) (map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Evidence storage is not configured", nil)
	}
	item, err := s.store.GetEvidence(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	signed, err := s.blobs.PresignGet(ctx, item.StorageKey, item.OriginalName, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("presign evidence %s: %w", id, err)
	}
	return map[string]any{"url": signed}, nil
}

func (s *Service) ReviewEvidence(ctx context.Context, organizationID, id, status string) (store.Evidence, error) {
	switch status {
	case "pending", "approved", "rejected":
	default:
		return store.Evidence{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be pending, approved, or rejected", nil)
	}
	if err := s.store.UpdateEvidenceReviewStatus(ctx, organizationID, id, status); err != nil {
		return store.Evidence{}, err
	}
	return s.store.GetEvidence(ctx, organizationID, id)
}

func (s *Service) DeleteEvidence(ctx context.Context, organizationID, id string) error {
	item, err := s.store.GetEvidence(ctx, organizationID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvidence(ctx, organizationID, id); err != nil {
		return err
	}
	if s.blobs != nil {
		if err := s.blobs.Remove(ctx, item.StorageKey); err != nil {
			log.Printf("evidence: remove blob %s: %v", item.StorageKey, err)
		}
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "upload"
	}
	return base
}

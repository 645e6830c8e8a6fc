package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// likePattern wraps text in wildcards for ILIKE matching, escaping any
// wildcard characters in the input so user queries match literally.
func likePattern(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(text) + "%"
}

func searchLimit(limit int) int {
	if limit <= 0 || limit > 50 {
		return 50
	}
	return limit
}

// --- Organizations ---

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, api_key_hash, created_at, updated_at
		FROM organizations WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.APIKeyHash, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PostgresStore) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, api_key_hash, created_at, updated_at
		FROM organizations WHERE slug = $1
	`, slug).Scan(&org.ID, &org.Name, &org.Slug, &org.APIKeyHash, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PostgresStore) InsertOrganization(ctx context.Context, org Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, api_key_hash)
		VALUES ($1, $2, $3, $4)
	`, org.ID, org.Name, org.Slug, org.APIKeyHash)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// --- AI systems ---

const aiSystemColumns = `id, organization_id, name, description, purpose, system_type, lifecycle_status, risk_tier, created_at, updated_at`

func scanAISystem(row interface{ Scan(...any) error }) (AISystem, error) {
	var item AISystem
	err := row.Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Description, &item.Purpose,
		&item.SystemType, &item.LifecycleStatus, &item.RiskTier, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) InsertAISystem(ctx context.Context, item AISystem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_systems (id, organization_id, name, description, purpose, system_type, lifecycle_status, risk_tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.OrganizationID, item.Name, item.Description, item.Purpose,
		item.SystemType, item.LifecycleStatus, item.RiskTier)
	if err != nil {
		return fmt.Errorf("insert ai system: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAISystems(ctx context.Context, organizationID string) ([]AISystem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+aiSystemColumns+` FROM ai_systems
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list ai systems: %w", err)
	}
	defer rows.Close()

	items := make([]AISystem, 0)
	for rows.Next() {
		item, err := scanAISystem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ai system: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetAISystem(ctx context.Context, organizationID, id string) (AISystem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+aiSystemColumns+` FROM ai_systems
		WHERE organization_id = $1 AND id = $2
	`, organizationID, id)
	return scanAISystem(row)
}

func (s *PostgresStore) SearchAISystems(ctx context.Context, q SystemSearchQuery) ([]AISystem, error) {
	where := []string{
		"organization_id = $1",
		"(name ILIKE $2 OR description ILIKE $2 OR purpose ILIKE $2)",
	}
	args := []any{q.OrganizationID, likePattern(q.Text)}
	argN := 3

	if q.SystemType != "" {
		where = append(where, fmt.Sprintf("system_type = $%d", argN))
		args = append(args, q.SystemType)
		argN++
	}
	if q.LifecycleStatus != "" {
		where = append(where, fmt.Sprintf("lifecycle_status = $%d", argN))
		args = append(args, q.LifecycleStatus)
		argN++
	}
	if q.RiskTier != "" {
		where = append(where, fmt.Sprintf("risk_tier = $%d", argN))
		args = append(args, q.RiskTier)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT `+aiSystemColumns+` FROM ai_systems
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d
	`, strings.Join(where, " AND "), searchLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search ai systems: %w", err)
	}
	defer rows.Close()

	items := make([]AISystem, 0)
	for rows.Next() {
		item, err := scanAISystem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ai system: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Assessments ---

const assessmentColumns = `a.id, a.organization_id, a.ai_system_id, COALESCE(s.name, ''), a.title, a.description, a.status, a.framework_id, a.created_at, a.updated_at`

func scanAssessment(row interface{ Scan(...any) error }) (Assessment, error) {
	var item Assessment
	err := row.Scan(&item.ID, &item.OrganizationID, &item.AISystemID, &item.SystemName,
		&item.Title, &item.Description, &item.Status, &item.FrameworkID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) InsertAssessment(ctx context.Context, item Assessment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, organization_id, ai_system_id, title, description, status, framework_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`, item.ID, item.OrganizationID, item.AISystemID, item.Title, item.Description, item.Status, item.FrameworkID)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, organizationID string) ([]Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments a
		LEFT JOIN ai_systems s ON s.id = a.ai_system_id
		WHERE a.organization_id = $1
		ORDER BY a.created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	items := make([]Assessment, 0)
	for rows.Next() {
		item, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetAssessment(ctx context.Context, organizationID, id string) (Assessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments a
		LEFT JOIN ai_systems s ON s.id = a.ai_system_id
		WHERE a.organization_id = $1 AND a.id = $2
	`, organizationID, id)
	return scanAssessment(row)
}

func (s *PostgresStore) SearchAssessments(ctx context.Context, q AssessmentSearchQuery) ([]Assessment, error) {
	where := []string{
		"a.organization_id = $1",
		"(a.title ILIKE $2 OR a.description ILIKE $2)",
	}
	args := []any{q.OrganizationID, likePattern(q.Text)}
	argN := 3

	if q.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", argN))
		args = append(args, q.Status)
		argN++
	}
	if q.FrameworkID != "" {
		where = append(where, fmt.Sprintf("a.framework_id = $%d", argN))
		args = append(args, q.FrameworkID)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT `+assessmentColumns+`
		FROM assessments a
		LEFT JOIN ai_systems s ON s.id = a.ai_system_id
		WHERE %s
		ORDER BY a.created_at DESC
		LIMIT %d
	`, strings.Join(where, " AND "), searchLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search assessments: %w", err)
	}
	defer rows.Close()

	items := make([]Assessment, 0)
	for rows.Next() {
		item, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Risks ---

const riskColumns = `r.id, r.assessment_id, a.organization_id, r.title, r.description, r.treatment_plan, r.category, r.treatment_status, r.likelihood_score, r.impact_score, r.residual_score, r.created_at, r.updated_at`

func scanRisk(row interface{ Scan(...any) error }) (Risk, error) {
	var item Risk
	err := row.Scan(&item.ID, &item.AssessmentID, &item.OrganizationID, &item.Title, &item.Description,
		&item.TreatmentPlan, &item.Category, &item.TreatmentStatus,
		&item.LikelihoodScore, &item.ImpactScore, &item.ResidualScore, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) InsertRisk(ctx context.Context, item Risk) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risks (id, assessment_id, title, description, treatment_plan, category, treatment_status, likelihood_score, impact_score, residual_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.AssessmentID, item.Title, item.Description, item.TreatmentPlan,
		item.Category, item.TreatmentStatus, item.LikelihoodScore, item.ImpactScore, item.ResidualScore)
	if err != nil {
		return fmt.Errorf("insert risk: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRisks(ctx context.Context, organizationID string) ([]Risk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+riskColumns+`
		FROM risks r
		JOIN assessments a ON a.id = r.assessment_id
		WHERE a.organization_id = $1
		ORDER BY r.created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list risks: %w", err)
	}
	defer rows.Close()

	items := make([]Risk, 0)
	for rows.Next() {
		item, err := scanRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetRisk(ctx context.Context, organizationID, id string) (Risk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+riskColumns+`
		FROM risks r
		JOIN assessments a ON a.id = r.assessment_id
		WHERE a.organization_id = $1 AND r.id = $2
	`, organizationID, id)
	return scanRisk(row)
}

// SearchRisks scopes to the tenant through the owning assessment; risks carry
// no organization column of their own.
func (s *PostgresStore) SearchRisks(ctx context.Context, q RiskSearchQuery) ([]Risk, error) {
	where := []string{
		"a.organization_id = $1",
		"(r.title ILIKE $2 OR r.description ILIKE $2 OR r.treatment_plan ILIKE $2)",
	}
	args := []any{q.OrganizationID, likePattern(q.Text)}
	argN := 3

	if q.Category != "" {
		where = append(where, fmt.Sprintf("r.category = $%d", argN))
		args = append(args, q.Category)
		argN++
	}
	if q.TreatmentStatus != "" {
		where = append(where, fmt.Sprintf("r.treatment_status = $%d", argN))
		args = append(args, q.TreatmentStatus)
		argN++
	}
	if q.MinResidualScore != nil {
		where = append(where, fmt.Sprintf("r.residual_score >= $%d", argN))
		args = append(args, *q.MinResidualScore)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT `+riskColumns+`
		FROM risks r
		JOIN assessments a ON a.id = r.assessment_id
		WHERE %s
		ORDER BY r.created_at DESC
		LIMIT %d
	`, strings.Join(where, " AND "), searchLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search risks: %w", err)
	}
	defer rows.Close()

	items := make([]Risk, 0)
	for rows.Next() {
		item, err := scanRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Evidence ---

const evidenceColumns = `id, organization_id, COALESCE(assessment_id, ''), filename, original_name, description, mime_type, size_bytes, review_status, storage_key, uploaded_by, created_at`

func scanEvidence(row interface{ Scan(...any) error }) (Evidence, error) {
	var item Evidence
	err := row.Scan(&item.ID, &item.OrganizationID, &item.AssessmentID, &item.Filename, &item.OriginalName,
		&item.Description, &item.MimeType, &item.SizeBytes, &item.ReviewStatus,
		&item.StorageKey, &item.UploadedBy, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertEvidence(ctx context.Context, item Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence (id, organization_id, assessment_id, filename, original_name, description, mime_type, size_bytes, review_status, storage_key, uploaded_by)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.OrganizationID, item.AssessmentID, item.Filename, item.OriginalName,
		item.Description, item.MimeType, item.SizeBytes, item.ReviewStatus, item.StorageKey, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, organizationID string) ([]Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evidenceColumns+` FROM evidence
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	items := make([]Evidence, 0)
	for rows.Next() {
		item, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetEvidence(ctx context.Context, organizationID, id string) (Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+evidenceColumns+` FROM evidence
		WHERE organization_id = $1 AND id = $2
	`, organizationID, id)
	return scanEvidence(row)
}

func (s *PostgresStore) DeleteEvidence(ctx context.Context, organizationID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM evidence WHERE organization_id = $1 AND id = $2
	`, organizationID, id)
	if err != nil {
		return fmt.Errorf("delete evidence: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete evidence rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateEvidenceReviewStatus(ctx context.Context, organizationID, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE evidence SET review_status = $3 WHERE organization_id = $1 AND id = $2
	`, organizationID, id, status)
	if err != nil {
		return fmt.Errorf("update evidence review status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update evidence rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SearchEvidence(ctx context.Context, q EvidenceSearchQuery) ([]Evidence, error) {
	where := []string{
		"organization_id = $1",
		"(filename ILIKE $2 OR original_name ILIKE $2 OR description ILIKE $2)",
	}
	args := []any{q.OrganizationID, likePattern(q.Text)}
	argN := 3

	if q.ReviewStatus != "" {
		where = append(where, fmt.Sprintf("review_status = $%d", argN))
		args = append(args, q.ReviewStatus)
		argN++
	}
	if q.MimeType != "" {
		where = append(where, fmt.Sprintf("mime_type ILIKE $%d", argN))
		args = append(args, likePattern(q.MimeType))
		argN++
	}

	query := fmt.Sprintf(`
		SELECT `+evidenceColumns+` FROM evidence
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d
	`, strings.Join(where, " AND "), searchLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search evidence: %w", err)
	}
	defer rows.Close()

	items := make([]Evidence, 0)
	for rows.Next() {
		item, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Summary ---

func (s *PostgresStore) SummaryCounts(ctx context.Context, organizationID string) (systems, assessments, risks, evidence int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM ai_systems WHERE organization_id = $1),
			(SELECT count(*) FROM assessments WHERE organization_id = $1),
			(SELECT count(*) FROM risks r JOIN assessments a ON a.id = r.assessment_id WHERE a.organization_id = $1),
			(SELECT count(*) FROM evidence WHERE organization_id = $1)
	`, organizationID).Scan(&systems, &assessments, &risks, &evidence)
	if err != nil {
		err = fmt.Errorf("summary counts: %w", err)
	}
	return systems, assessments, risks, evidence, err
}

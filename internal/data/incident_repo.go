package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// IncidentRepo provides database operations for incidents. A partial unique
// index on (type, queue_name) WHERE status IN ('active','acknowledged')
// enforces at most one open incident per pair; CreateOpen maps that
// violation to ErrIncidentAlreadyOpen.
type IncidentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewIncidentRepo creates a new IncidentRepo with the real time provider.
func NewIncidentRepo(db *sql.DB) *IncidentRepo {
	return &IncidentRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewIncidentRepoWithTimeProvider creates an IncidentRepo with a custom time provider.
func NewIncidentRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *IncidentRepo {
	return &IncidentRepo{DB: db, timeProvider: tp}
}

const incidentColumns = `
  id,
  type,
  severity,
  queue_name,
  affected_jobs,
  title,
  description,
  recommended_action,
  status,
  resolved_at,
  resolved_by,
  created_at,
  updated_at
`

// GetOpen returns the open (active or acknowledged) incident for the pair, or nil.
func (r *IncidentRepo) GetOpen(ctx context.Context, typ model.IncidentType, queueName string) (*model.Incident, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE type = $1 AND queue_name = $2 AND status IN ('active', 'acknowledged')
		LIMIT 1
	`, typ, queueName)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open incident: %w", err)
	}
	return inc, nil
}

// CreateOpen inserts a new ACTIVE incident. A unique violation on the open
// partial index is an expected race under concurrent collector runs and is
// surfaced as ErrIncidentAlreadyOpen.
func (r *IncidentRepo) CreateOpen(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	if inc == nil {
		return nil, errors.New("incident is required")
	}
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO incidents
			(type, severity, queue_name, affected_jobs, title, description, recommended_action, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		RETURNING `+incidentColumns,
		inc.Type, inc.Severity, inc.QueueName, inc.AffectedJobs,
		inc.Title, inc.Description, inc.RecommendedAction,
	)
	created, err := scanIncident(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrIncidentAlreadyOpen
		}
		return nil, fmt.Errorf("create incident: %w", err)
	}
	return created, nil
}

// UpdateOpen refreshes severity, affected jobs, and description of an open incident.
func (r *IncidentRepo) UpdateOpen(
	ctx context.Context,
	id string,
	severity model.IncidentSeverity,
	affectedJobs int64,
	description string,
) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE incidents
		SET severity = $2,
		    affected_jobs = $3,
		    description = $4,
		    updated_at = $5
		WHERE id = $1 AND status IN ('active', 'acknowledged')
	`, id, severity, affectedJobs, description, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return requireIncidentUpdated(res)
}

// Resolve closes an incident with the resolver identity and reason.
func (r *IncidentRepo) Resolve(ctx context.Context, id, resolvedBy, reason string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE incidents
		SET status = 'resolved',
		    resolved_at = $2,
		    resolved_by = $3,
		    description = description || $4,
		    updated_at = $2
		WHERE id = $1 AND status IN ('active', 'acknowledged')
	`, id, now, resolvedBy, "\nresolved: "+reason)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	return requireIncidentUpdated(res)
}

func requireIncidentUpdated(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("incident update rows affected: %w", err)
	}
	if affected == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

func scanIncident(scanner jobRowScanner) (*model.Incident, error) {
	inc := &model.Incident{}
	var (
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	if err := scanner.Scan(
		&inc.ID,
		&inc.Type,
		&inc.Severity,
		&inc.QueueName,
		&inc.AffectedJobs,
		&inc.Title,
		&inc.Description,
		&inc.RecommendedAction,
		&inc.Status,
		&resolvedAt,
		&resolvedBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inc.ResolvedAt = cloneNullableTime(resolvedAt)
	inc.ResolvedBy = cloneNullableString(resolvedBy)
	return inc, nil
}

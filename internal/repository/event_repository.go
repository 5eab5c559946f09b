package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/model"
)

// HighRiskScore is the score from which Stats counts an event as high risk.
const HighRiskScore = 70

const eventColumns = `id, kind, session_id, user_id, risk_score, ip_address, user_agent, metadata, created_at`

// EventFilter narrows event listings
type EventFilter struct {
	SessionID string
	Kinds     []model.EventKind
	Limit     int
}

// EventStats aggregates the attempt log for dashboards
type EventStats struct {
	Sessions        int
	HighRiskEvents  int
	OTPAttempts     int
	OTPSucceeded    int
	OTPFailed       int
	ShopEvents      int
	ShopActivities  int
	ProductViews    int
	RiskAssessments int
}

// EventRepository persists the append-only attempt log in otp_attempts
type EventRepository struct {
	db *database.Postgres
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *database.Postgres) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts one event. Events are never updated.
func (r *EventRepository) Append(ctx context.Context, e *model.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	payload, err := e.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	var code *string
	var isValid *bool
	if e.OTP != nil {
		code = &e.OTP.Code
		isValid = &e.OTP.IsValid
	}

	query := `
		INSERT INTO otp_attempts (id, kind, session_id, user_id, risk_score, otp_code, is_valid,
		    ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		e.Kind,
		e.SessionID,
		e.UserID,
		e.RiskScore,
		code,
		isValid,
		e.IPAddress,
		e.UserAgent,
		payload,
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// List returns events matching f, newest first
func (r *EventRepository) List(ctx context.Context, f EventFilter) ([]*model.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if len(f.Kinds) > 0 {
		placeholders := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			args = append(args, string(k))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + eventColumns + ` FROM otp_attempts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Stats aggregates the whole log
func (r *EventRepository) Stats(ctx context.Context) (*EventStats, error) {
	query := `
		SELECT
		    COUNT(DISTINCT session_id),
		    COUNT(*) FILTER (WHERE kind <> 'shop_activity' AND risk_score >= $1),
		    COUNT(*) FILTER (WHERE kind = 'otp_attempt'),
		    COUNT(*) FILTER (WHERE kind = 'otp_attempt' AND is_valid),
		    COUNT(*) FILTER (WHERE kind = 'otp_attempt' AND NOT is_valid),
		    COUNT(*) FILTER (WHERE kind = 'shop_activity'),
		    COALESCE(SUM(
		        COALESCE(jsonb_array_length(metadata->'productViews'), 0)
		        + COALESCE((metadata->>'cartActions')::int, 0)
		        + COALESCE((metadata->>'wishlistActions')::int, 0)
		        + COALESCE((metadata->>'categoryChanges')::int, 0)
		        + COALESCE((metadata->>'searches')::int, 0)
		    ) FILTER (WHERE kind = 'shop_activity'), 0),
		    COALESCE(SUM(COALESCE(jsonb_array_length(metadata->'productViews'), 0))
		        FILTER (WHERE kind = 'shop_activity'), 0),
		    COUNT(*) FILTER (WHERE kind = 'risk_assessment')
		FROM otp_attempts
	`
	var s EventStats
	err := r.db.QueryRowContext(ctx, query, HighRiskScore).Scan(
		&s.Sessions,
		&s.HighRiskEvents,
		&s.OTPAttempts,
		&s.OTPSucceeded,
		&s.OTPFailed,
		&s.ShopEvents,
		&s.ShopActivities,
		&s.ProductViews,
		&s.RiskAssessments,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	return &s, nil
}

// CountSessions counts distinct sessions across the log and analytics
func (r *EventRepository) CountSessions(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
		    SELECT session_id FROM otp_attempts
		    UNION
		    SELECT session_id FROM user_analytics
		) s
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e       model.Event
		userID  sql.NullString
		ip      sql.NullString
		ua      sql.NullString
		payload []byte
	)
	err := row.Scan(
		&e.ID,
		&e.Kind,
		&e.SessionID,
		&userID,
		&e.RiskScore,
		&ip,
		&ua,
		&payload,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.UserID = nullString(userID)
	e.IPAddress = nullString(ip)
	e.UserAgent = nullString(ua)

	if err := e.SetPayload(payload); err != nil {
		return nil, fmt.Errorf("failed to decode event %s payload: %w", e.ID, err)
	}
	return &e, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/model"
)

const analyticsColumns = `id, session_id, user_id, page_url, user_agent,
	typing_wpm, typing_keystrokes, typing_pauses, typing_corrections,
	mouse_clicks, mouse_movements, mouse_velocity, mouse_idle_time,
	scroll_depth, scroll_speed, scroll_events,
	focus_changes, focus_time, tab_switches,
	session_duration, page_views, interactions_count, metadata, created_at, updated_at`

// AnalyticsRepository handles behavior snapshot persistence
type AnalyticsRepository struct {
	db *database.Postgres
}

// NewAnalyticsRepository creates a new AnalyticsRepository
func NewAnalyticsRepository(db *database.Postgres) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Create inserts a new analytics row
func (r *AnalyticsRepository) Create(ctx context.Context, a *model.UserAnalytics) error {
	if a.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}

	query := `
		INSERT INTO user_analytics (` + analyticsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		    $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.SessionID,
		a.UserID,
		a.PageURL,
		a.UserAgent,
		a.TypingWPM,
		a.TypingKeystrokes,
		a.TypingPauses,
		a.TypingCorrections,
		a.MouseClicks,
		a.MouseMovements,
		a.MouseVelocity,
		a.MouseIdleTime,
		a.ScrollDepth,
		a.ScrollSpeed,
		a.ScrollEvents,
		a.FocusChanges,
		a.FocusTime,
		a.TabSwitches,
		a.SessionDuration,
		a.PageViews,
		a.InteractionsCount,
		metadataJSON,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analytics: %w", err)
	}
	return nil
}

// List returns the newest rows across all sessions
func (r *AnalyticsRepository) List(ctx context.Context, limit int) ([]*model.UserAnalytics, error) {
	query := `SELECT ` + analyticsColumns + ` FROM user_analytics ORDER BY created_at DESC LIMIT $1`
	return r.query(ctx, query, limit)
}

// ListBySession returns a session's rows, newest first
func (r *AnalyticsRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.UserAnalytics, error) {
	query := `SELECT ` + analyticsColumns + ` FROM user_analytics
		WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, query, sessionID, limit)
}

func (r *AnalyticsRepository) query(ctx context.Context, query string, args ...any) ([]*model.UserAnalytics, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics: %w", err)
	}
	defer rows.Close()

	var out []*model.UserAnalytics
	for rows.Next() {
		a, err := scanAnalytics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analytics: %w", err)
	}
	return out, nil
}

// AverageTypingSpeed averages typing_wpm over every stored row
func (r *AnalyticsRepository) AverageTypingSpeed(ctx context.Context) (float64, error) {
	query := `SELECT COALESCE(AVG(typing_wpm), 0) FROM user_analytics`
	var avg float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to average typing speed: %w", err)
	}
	return avg, nil
}

func scanAnalytics(row rowScanner) (*model.UserAnalytics, error) {
	var (
		a         model.UserAnalytics
		userID    sql.NullString
		pageURL   sql.NullString
		userAgent sql.NullString
		metadata  []byte
	)
	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&userID,
		&pageURL,
		&userAgent,
		&a.TypingWPM,
		&a.TypingKeystrokes,
		&a.TypingPauses,
		&a.TypingCorrections,
		&a.MouseClicks,
		&a.MouseMovements,
		&a.MouseVelocity,
		&a.MouseIdleTime,
		&a.ScrollDepth,
		&a.ScrollSpeed,
		&a.ScrollEvents,
		&a.FocusChanges,
		&a.FocusTime,
		&a.TabSwitches,
		&a.SessionDuration,
		&a.PageViews,
		&a.InteractionsCount,
		&metadata,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan analytics: %w", err)
	}
	a.UserID = nullString(userID)
	a.PageURL = nullString(pageURL)
	a.UserAgent = nullString(userAgent)
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &a.Metadata)
	}
	return &a, nil
}

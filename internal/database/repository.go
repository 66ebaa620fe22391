package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"playtime/internal/calendar"
	"playtime/internal/models"
)

// Repository handles database operations
type Repository struct {
	db  *DB
	cal *calendar.Calendar
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(db *DB, cal *calendar.Calendar) *Repository {
	return &Repository{db: db, cal: cal}
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// AddTime credits seconds to the totals and the daily rollup of when's local
// day, and refreshes the user's display name, in one transaction. An empty
// name keeps whatever name is stored.
func (r *Repository) AddTime(ctx context.Context, userID int64, displayName, activity string, seconds int64, when time.Time) error {
	if seconds <= 0 {
		return nil
	}
	if activity == "" {
		return fmt.Errorf("%w: empty activity", models.ErrInvalidInput)
	}
	if when.IsZero() {
		when = r.cal.Now()
	}
	day := r.cal.Day(when)
	updatedAt := r.cal.Now().UTC().Format(time.RFC3339)

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin add time: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if displayName != "" {
		if _, err := tx.ExecContext(ctx, r.db.rebind(`
			INSERT INTO display_names (user_id, name, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`),
			userID, displayName, updatedAt); err != nil {
			return fmt.Errorf("failed to update display name: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO totals (user_id, activity, seconds)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, activity) DO UPDATE SET seconds = totals.seconds + excluded.seconds`),
		userID, activity, seconds); err != nil {
		return fmt.Errorf("failed to add total seconds: %w", err)
	}

	if _, err := tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO daily_totals (user_id, activity, day, seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, activity, day) DO UPDATE SET seconds = daily_totals.seconds + excluded.seconds`),
		userID, activity, day, seconds); err != nil {
		return fmt.Errorf("failed to add daily seconds: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit add time: %w", err)
	}
	return nil
}

// TopActivities ranks a user's activities within the period.
func (r *Repository) TopActivities(ctx context.Context, userID int64, period models.Period, limit int) ([]models.ActivityTime, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	w, err := r.cal.Window(period)
	if err != nil {
		return nil, err
	}

	var (
		query string
		args  []any
	)
	if w.AllTime {
		query = `SELECT activity, seconds AS total FROM totals
			WHERE user_id = ? AND seconds > 0
			ORDER BY total DESC, activity ASC
			LIMIT ?`
		args = []any{userID, limit}
	} else {
		query = `SELECT activity, SUM(seconds) AS total FROM daily_totals
			WHERE user_id = ? AND day BETWEEN ? AND ?
			GROUP BY activity
			HAVING SUM(seconds) > 0
			ORDER BY total DESC, activity ASC
			LIMIT ?`
		args = []any{userID, w.Start, w.End, limit}
	}

	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get top activities: %w", err)
	}
	defer rows.Close()

	activities := []models.ActivityTime{}
	for rows.Next() {
		var a models.ActivityTime
		if err := rows.Scan(&a.Activity, &a.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity rows: %w", err)
	}

	return activities, nil
}

// Leaderboard ranks the given users by seconds within the period, optionally
// restricted to one activity.
func (r *Repository) Leaderboard(ctx context.Context, userIDs []int64, activity string, period models.Period, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	w, err := r.cal.Window(period)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []models.LeaderboardEntry{}, nil
	}

	table := "daily_totals"
	if w.AllTime {
		table = "totals"
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, 0, len(userIDs)+4)
	for _, id := range userIDs {
		args = append(args, id)
	}

	var q strings.Builder
	fmt.Fprintf(&q, `SELECT t.user_id, COALESCE(n.name, '') AS name, SUM(t.seconds) AS total
		FROM %s t
		LEFT JOIN display_names n ON n.user_id = t.user_id
		WHERE t.user_id IN (%s)`, table, placeholders)
	if activity != "" {
		q.WriteString(` AND t.activity = ?`)
		args = append(args, activity)
	}
	if !w.AllTime {
		q.WriteString(` AND t.day BETWEEN ? AND ?`)
		args = append(args, w.Start, w.End)
	}
	q.WriteString(`
		GROUP BY t.user_id, n.name
		HAVING SUM(t.seconds) > 0
		ORDER BY total DESC, name ASC, t.user_id ASC
		LIMIT ?`)
	args = append(args, limit)

	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard rows: %w", err)
	}

	return entries, nil
}

// DisplayName returns the cached display name of a user.
func (r *Repository) DisplayName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := r.db.conn.QueryRowContext(ctx,
		r.db.rebind("SELECT name FROM display_names WHERE user_id = ?"),
		userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %w", err)
	}
	return name, nil
}

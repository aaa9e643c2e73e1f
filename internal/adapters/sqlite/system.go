package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockTradeBot/internal/domain"
)

// --- SystemStateRepository Implementation ---

// UpdateHeartbeat overwrites the single heartbeat row with the current
// time and status label.
func (r *Repository) UpdateHeartbeat(ctx context.Context, status string) error {
	const query = `
	INSERT INTO system_state (id, last_heartbeat, status) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET last_heartbeat = excluded.last_heartbeat, status = excluded.status`

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), status); err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

// LastHeartbeat retrieves the heartbeat record, or nil, nil on first run.
func (r *Repository) LastHeartbeat(ctx context.Context) (*domain.HeartbeatRecord, error) {
	const query = `SELECT id, last_heartbeat, status FROM system_state WHERE id = 1`

	hb := &domain.HeartbeatRecord{}
	err := r.db.QueryRowContext(ctx, query).Scan(&hb.ID, &hb.LastHeartbeat, &hb.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query heartbeat: %w", err)
	}
	return hb, nil
}

// AppendRecoveryEvent appends an immutable recovery audit record.
func (r *Repository) AppendRecoveryEvent(ctx context.Context, ev *domain.RecoveryEvent) (int64, error) {
	const query = `
	INSERT INTO recovery_events (occurred_at, success, discrepancies_found, message, actions_taken)
	VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		ev.OccurredAt, ev.Success, ev.DiscrepanciesFound, ev.Message, ev.ActionsTaken)
	if err != nil {
		return 0, fmt.Errorf("failed to insert recovery event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for recovery event: %w", err)
	}
	ev.ID = id
	r.logger.Debug(ctx, "Recovery event recorded", map[string]interface{}{"eventID": id, "success": ev.Success})
	return id, nil
}

// RecentRecoveryEvents retrieves the most recent recovery events,
// newest first, up to a limit.
func (r *Repository) RecentRecoveryEvents(ctx context.Context, limit int) ([]*domain.RecoveryEvent, error) {
	const query = `
	SELECT id, occurred_at, success, discrepancies_found, message, actions_taken
	FROM recovery_events ORDER BY occurred_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.RecoveryEvent, 0)
	for rows.Next() {
		ev := &domain.RecoveryEvent{}
		if err := rows.Scan(&ev.ID, &ev.OccurredAt, &ev.Success, &ev.DiscrepanciesFound, &ev.Message, &ev.ActionsTaken); err != nil {
			return nil, fmt.Errorf("failed to scan recovery event row: %w", err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recovery event rows: %w", err)
	}
	return events, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
)

// StrikeRepo persists the per (group, user) violation counters. Every mutation
// that carries an audit payload commits the counter update and the audit row
// in one transaction: the ledger and the log never diverge.
type StrikeRepo struct {
	pool *pgxpool.Pool
}

func NewStrikeRepo(pool *pgxpool.Pool) *StrikeRepo {
	return &StrikeRepo{pool: pool}
}

const insertAuditSQL = `
INSERT INTO audit_log (group_id, user_id, payload, created_at)
VALUES ($1, $2, $3::jsonb, $4)
`

// IncrementWithEvent adds one strike, stamps the record and appends the
// violation event atomically. Returns the new count.
func (r *StrikeRepo) IncrementWithEvent(ctx context.Context, groupID, userID string, payload json.RawMessage, now time.Time) (int, error) {
	var count int
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO strikes (group_id, user_id, count, last_strike_at, updated_at)
VALUES ($1, $2, 1, $3, NOW())
ON CONFLICT (group_id, user_id) DO UPDATE SET
	count = strikes.count + 1,
	last_strike_at = EXCLUDED.last_strike_at,
	updated_at = NOW()
RETURNING count
`, groupID, userID, now.UTC())
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("increment strike count: %w", err)
		}

		if _, err := tx.Exec(ctx, insertAuditSQL, groupID, userID, string(payload), now.UTC()); err != nil {
			return fmt.Errorf("append violation audit event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddWithEvent raises the count by amount and stamps the record.
func (r *StrikeRepo) AddWithEvent(ctx context.Context, groupID, userID string, amount int, payload json.RawMessage, now time.Time) (int, error) {
	var count int
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO strikes (group_id, user_id, count, last_strike_at, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (group_id, user_id) DO UPDATE SET
	count = strikes.count + $3,
	last_strike_at = EXCLUDED.last_strike_at,
	updated_at = NOW()
RETURNING count
`, groupID, userID, amount, now.UTC())
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("add strikes: %w", err)
		}

		if _, err := tx.Exec(ctx, insertAuditSQL, groupID, userID, string(payload), now.UTC()); err != nil {
			return fmt.Errorf("append manual add audit event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RemoveWithEvent lowers the count by amount, clamped at zero. A record that
// reaches zero loses its last-strike timestamp.
func (r *StrikeRepo) RemoveWithEvent(ctx context.Context, groupID, userID string, amount int, payload json.RawMessage, now time.Time) (int, error) {
	var count int
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO strikes (group_id, user_id, count, last_strike_at, updated_at)
VALUES ($1, $2, 0, NULL, NOW())
ON CONFLICT (group_id, user_id) DO UPDATE SET
	count = GREATEST(strikes.count - $3, 0),
	last_strike_at = CASE
		WHEN GREATEST(strikes.count - $3, 0) = 0 THEN NULL
		ELSE strikes.last_strike_at
	END,
	updated_at = NOW()
RETURNING count
`, groupID, userID, amount)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("remove strikes: %w", err)
		}

		if _, err := tx.Exec(ctx, insertAuditSQL, groupID, userID, string(payload), now.UTC()); err != nil {
			return fmt.Errorf("append manual remove audit event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SetWithEvent writes an absolute count. Zero clears the timestamp, anything
// positive stamps it with now.
func (r *StrikeRepo) SetWithEvent(ctx context.Context, groupID, userID string, newCount int, payload json.RawMessage, now time.Time) (int, error) {
	var count int
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO strikes (group_id, user_id, count, last_strike_at, updated_at)
VALUES ($1, $2, $3, CASE WHEN $3 > 0 THEN $4 END, NOW())
ON CONFLICT (group_id, user_id) DO UPDATE SET
	count = EXCLUDED.count,
	last_strike_at = EXCLUDED.last_strike_at,
	updated_at = NOW()
RETURNING count
`, groupID, userID, newCount, now.UTC())
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("set strikes: %w", err)
		}

		if _, err := tx.Exec(ctx, insertAuditSQL, groupID, userID, string(payload), now.UTC()); err != nil {
			return fmt.Errorf("append manual set audit event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Get returns the current record. An absent row reads as a zeroed record.
func (r *StrikeRepo) Get(ctx context.Context, groupID, userID string) (model.StrikeRecord, error) {
	if r.pool == nil {
		return model.StrikeRecord{GroupID: groupID, UserID: userID}, nil
	}

	record := model.StrikeRecord{GroupID: groupID, UserID: userID}
	row := r.pool.QueryRow(ctx, `
SELECT count, last_strike_at
FROM strikes
WHERE group_id = $1 AND user_id = $2
`, groupID, userID)
	if err := row.Scan(&record.Count, &record.LastStrikeAt); err != nil {
		if err == pgx.ErrNoRows {
			return record, nil
		}
		return model.StrikeRecord{}, fmt.Errorf("get strike record: %w", err)
	}
	return record, nil
}

// ResetIfStale zeroes the record when its last strike predates cutoff.
// Reports whether a reset happened.
func (r *StrikeRepo) ResetIfStale(ctx context.Context, groupID, userID string, cutoff time.Time) (bool, error) {
	if r.pool == nil {
		return false, nil
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE strikes SET count = 0, last_strike_at = NULL, updated_at = NOW()
WHERE group_id = $1 AND user_id = $2
	AND last_strike_at IS NOT NULL AND last_strike_at < $3
`, groupID, userID, cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("expire strike record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reset zeroes the record unconditionally (fresh start after an expulsion).
func (r *StrikeRepo) Reset(ctx context.Context, groupID, userID string) error {
	if r.pool == nil {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE strikes SET count = 0, last_strike_at = NULL, updated_at = NOW()
WHERE group_id = $1 AND user_id = $2
`, groupID, userID); err != nil {
		return fmt.Errorf("reset strike record: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
)

// TypeFilterAuto matches rows whose payload type is absent (legacy) or does
// not begin with MANUAL. Any other filter value requires an exact match.
const TypeFilterAuto = "AUTO"

type AuditRepo struct {
	pool *pgxpool.Pool
}

// AuditFilter narrows queries and exports over the audit log.
type AuditFilter struct {
	GroupID string
	UserID  string
	Type    string
	Start   *time.Time
	End     *time.Time
}

type GroupDeletions struct {
	GroupID   string
	Deletions int
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append writes one immutable audit row.
func (r *AuditRepo) Append(ctx context.Context, groupID, userID string, payload json.RawMessage, at time.Time) error {
	if r.pool == nil {
		return nil
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO audit_log (group_id, user_id, payload, created_at)
VALUES ($1, $2, $3::jsonb, $4)
`, groupID, userID, string(payload), at.UTC()); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Query returns one page ordered by timestamp descending plus the total row
// count for the filter.
func (r *AuditRepo) Query(ctx context.Context, filter AuditFilter, offset, limit int) ([]model.AuditRecord, int, error) {
	if r.pool == nil {
		return []model.AuditRecord{}, 0, nil
	}

	where, args := buildAuditWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit rows: %w", err)
	}

	query := "SELECT id, group_id, user_id, payload, created_at FROM audit_log" + where +
		" ORDER BY created_at DESC, id DESC" +
		" LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit rows: %w", err)
	}
	defer rows.Close()

	records := make([]model.AuditRecord, 0, limit)
	for rows.Next() {
		var rec model.AuditRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.GroupID, &rec.UserID, &payload, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit row: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit rows: %w", err)
	}

	return records, total, nil
}

// ListRange returns every row for a group inside [start, end) in ascending
// timestamp order, for the analytics aggregations.
func (r *AuditRepo) ListRange(ctx context.Context, groupID string, start, end time.Time) ([]model.AuditRecord, error) {
	if r.pool == nil {
		return []model.AuditRecord{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, group_id, user_id, payload, created_at
FROM audit_log
WHERE group_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC, id ASC
`, groupID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list audit range: %w", err)
	}
	defer rows.Close()

	records := make([]model.AuditRecord, 0, 64)
	for rows.Next() {
		var rec model.AuditRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.GroupID, &rec.UserID, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	return records, nil
}

// TopGroupsByDeletions ranks groups by merged deletion counts: enhanced
// DELETE penalties plus legacy auto-deletions (rows without a payload type).
func (r *AuditRepo) TopGroupsByDeletions(ctx context.Context, limit int) ([]GroupDeletions, error) {
	if r.pool == nil {
		return []GroupDeletions{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT group_id, COUNT(*) AS deletions
FROM audit_log
WHERE (payload->>'type' IS NULL)
	OR (payload->>'type' = 'PENALTY' AND payload->>'action' = 'DELETE')
GROUP BY group_id
ORDER BY deletions DESC, group_id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("rank groups by deletions: %w", err)
	}
	defer rows.Close()

	result := make([]GroupDeletions, 0, limit)
	for rows.Next() {
		var item GroupDeletions
		if err := rows.Scan(&item.GroupID, &item.Deletions); err != nil {
			return nil, fmt.Errorf("scan group deletions row: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group deletions rows: %w", err)
	}

	return result, nil
}

func buildAuditWhere(filter AuditFilter) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)

	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		clauses = append(clauses, "group_id = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, "user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Type == TypeFilterAuto {
		clauses = append(clauses, "(payload->>'type' IS NULL OR payload->>'type' NOT LIKE 'MANUAL%')")
	} else if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, "payload->>'type' = $"+strconv.Itoa(len(args)))
	}
	if filter.Start != nil {
		args = append(args, filter.Start.UTC())
		clauses = append(clauses, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if filter.End != nil {
		args = append(args, filter.End.UTC())
		clauses = append(clauses, "created_at < $"+strconv.Itoa(len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

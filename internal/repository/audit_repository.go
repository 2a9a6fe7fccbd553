package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AuditRepository defines the interface for audit log data access.
// Entries are append-only: there is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditLogEntry) error
	// Query returns entries matching the filters in reverse-chronological
	// order, plus the total count of the filtered set independent of limit.
	Query(ctx context.Context, filters AuditQueryFilters, limit, offset int) ([]AuditLogEntry, int, error)
}

// auditRepository implements AuditRepository using PostgreSQL
type auditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository instance
func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Append inserts one immutable audit entry
func (r *auditRepository) Append(ctx context.Context, entry *AuditLogEntry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode audit detail: %w", err)
	}

	query := `
		INSERT INTO audit_log_entries (user_id, action, resource_type, resource_id, detail, ip_address, user_agent, status, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		detail,
		entry.IPAddress,
		entry.UserAgent,
		entry.Status,
		entry.RiskLevel,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// Query returns a filtered, paginated, reverse-chronological page of entries
func (r *auditRepository) Query(ctx context.Context, filters AuditQueryFilters, limit, offset int) ([]AuditLogEntry, int, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	baseQuery := ` FROM audit_log_entries WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filters.UserID != nil {
		baseQuery += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *filters.UserID)
		argIdx++
	}
	if filters.Action != nil {
		baseQuery += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *filters.Action)
		argIdx++
	}
	if filters.RiskLevel != nil {
		baseQuery += fmt.Sprintf(" AND risk_level = $%d", argIdx)
		args = append(args, *filters.RiskLevel)
		argIdx++
	}
	if filters.StartDate != nil {
		baseQuery += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filters.StartDate)
		argIdx++
	}
	if filters.EndDate != nil {
		baseQuery += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filters.EndDate)
		argIdx++
	}

	countQuery := "SELECT COUNT(*)" + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	selectQuery := `
		SELECT id, user_id, action, resource_type, resource_id, detail, ip_address, user_agent, status, risk_level, created_at
	` + baseQuery + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var entry AuditLogEntry
		var detail []byte
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&detail,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Status,
			&entry.RiskLevel,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, 0, fmt.Errorf("failed to decode audit detail: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read audit entries: %w", err)
	}

	return entries, total, nil
}

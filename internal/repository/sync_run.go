package repository

import (
	"context"
	"database/sql"
	"fmt"

	"orgcache/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const createSyncRunsTable = `
CREATE TABLE IF NOT EXISTS org_sync_runs (
	run_id        UUID PRIMARY KEY,
	instance      TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	departments   INTEGER NOT NULL DEFAULT 0,
	user_details  INTEGER NOT NULL DEFAULT 0,
	users         INTEGER NOT NULL DEFAULT 0,
	cti_relations INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
)`

// SyncRunRepository 同步审计记录（Postgres）
type SyncRunRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSyncRunRepository 创建同步审计仓库
func NewSyncRunRepository(db *sql.DB, logger *zap.Logger) *SyncRunRepository {
	return &SyncRunRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 建表（幂等）
func (r *SyncRunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSyncRunsTable); err != nil {
		return fmt.Errorf("failed to create org_sync_runs: %w", err)
	}
	return nil
}

// Record 写入一次同步记录
func (r *SyncRunRepository) Record(ctx context.Context, run models.SyncRun) error {
	query := `
		INSERT INTO org_sync_runs (
			run_id, instance, started_at, finished_at, status,
			departments, user_details, users, cti_relations, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		run.RunID.String(),
		run.Instance,
		run.StartedAt,
		run.FinishedAt,
		run.Status,
		run.Departments,
		run.UserDetails,
		run.Users,
		run.CtiRelations,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run %s: %w", run.RunID, err)
	}
	return nil
}

// Recent 最近的同步记录，按开始时间倒序
func (r *SyncRunRepository) Recent(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT run_id, instance, started_at, finished_at, status,
		       departments, user_details, users, cti_relations, error
		FROM org_sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		var run models.SyncRun
		var runID string
		if err := rows.Scan(
			&runID,
			&run.Instance,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Departments,
			&run.UserDetails,
			&run.Users,
			&run.CtiRelations,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if run.RunID, err = uuid.Parse(runID); err != nil {
			r.logger.Warn("Skipping sync run with malformed id", zap.String("run_id", runID), zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}
	return runs, nil
}

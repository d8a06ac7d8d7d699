package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventsignup/internal/domain"
)

type taskQueue struct {
	DB *sql.DB
}

// taskLease bounds how long a claimed task may sit in 'running' before it is
// eligible for reclaim. A worker that crashes mid-task only delays delivery
// by this much.
const taskLease = 5 * time.Minute

// NewTaskQueue returns the postgres-backed task queue. Claiming uses
// `FOR UPDATE SKIP LOCKED` so concurrent workers never pick the same task;
// delivery is at least once and handlers are expected to be idempotent.
func NewTaskQueue(db *sql.DB) domain.TaskQueue {
	return &taskQueue{DB: db}
}

func (q *taskQueue) Enqueue(ctx context.Context, name string, args map[string]string, eta *time.Time) (string, error) {
	id := uuid.New().String()
	runAt := time.Now()
	if eta != nil {
		runAt = *eta
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	query := `
		INSERT INTO tasks (id, name, args, run_at, attempts, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 'queued', NOW(), NOW())
	`
	if _, err := q.DB.ExecContext(ctx, query, id, name, payload, runAt); err != nil {
		return "", err
	}
	return id, nil
}

// Claim also picks up running tasks whose lease has lapsed, so a task whose
// worker died between claim and completion is redelivered instead of being
// stranded. Each reclaim counts as an attempt, which bounds crash loops.
func (q *taskQueue) Claim(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	query := `
		UPDATE tasks
		SET status = 'running', attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE (status = 'queued' AND run_at <= $1)
			   OR (status = 'running' AND updated_at <= $3)
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, args, run_at, attempts
	`
	rows, err := q.DB.QueryContext(ctx, query, now, limit, now.Add(-taskLease))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*domain.Task
	for rows.Next() {
		t := &domain.Task{}
		var payload []byte
		if err := rows.Scan(&t.ID, &t.Name, &payload, &t.RunAt, &t.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &t.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args of task %s: %w", t.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (q *taskQueue) Complete(ctx context.Context, taskID string) error {
	return q.setStatus(ctx, taskID, "done", nil, nil)
}

func (q *taskQueue) Retry(ctx context.Context, taskID string, runAt time.Time, taskErr error) error {
	return q.setStatus(ctx, taskID, "queued", &runAt, taskErr)
}

func (q *taskQueue) Fail(ctx context.Context, taskID string, taskErr error) error {
	return q.setStatus(ctx, taskID, "failed", nil, taskErr)
}

func (q *taskQueue) setStatus(ctx context.Context, taskID, status string, runAt *time.Time, taskErr error) error {
	var lastError sql.NullString
	if taskErr != nil {
		lastError = sql.NullString{String: taskErr.Error(), Valid: true}
	}
	query := `
		UPDATE tasks
		SET status = $2, run_at = COALESCE($3, run_at), last_error = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := q.DB.ExecContext(ctx, query, taskID, status, runAt, lastError)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

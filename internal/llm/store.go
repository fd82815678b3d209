package llm

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"dreamlog/backend/internal/db"
)

// Store persists backend attempts and health checks. Rows are not user
// scoped, so it works on the shared pool.
type Store struct {
	DB *db.Store
}

func NewStore(store *db.Store) *Store {
	return &Store{DB: store}
}

func (s *Store) InsertAttempts(ctx context.Context, dreamID *int64, attempts []Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, attempt := range attempts {
		var errMsg *string
		if attempt.Error != "" {
			msg := attempt.Error
			errMsg = &msg
		}
		batch.Queue(`
			INSERT INTO backend_attempts (dream_id, backend, success, error_kind, error_message, latency_ms, input_tokens, output_tokens, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			dreamID, attempt.Backend, attempt.Success, attempt.Kind, errMsg, attempt.Latency.Milliseconds(),
			attempt.Usage.InputTokens, attempt.Usage.OutputTokens, now)
	}
	return s.DB.Pool.SendBatch(ctx, batch).Close()
}

func (s *Store) InsertHealth(ctx context.Context, result HealthCheckResult) error {
	var errMsg *string
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		errMsg = &msg
	}
	_, err := s.DB.Pool.Exec(ctx, `
		INSERT INTO backend_health (backend, status, latency_ms, error_message, check_time)
		VALUES ($1,$2,$3,$4,$5)`,
		result.Backend, result.Status, result.Latency.Milliseconds(), errMsg, result.Timestamp.UTC())
	return err
}

func (s *Store) RecentHealthFailures(ctx context.Context, backend string) (int, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT status FROM backend_health
		WHERE backend=$1
		ORDER BY check_time DESC
		LIMIT 3`, backend)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	failures := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, err
		}
		if status != "ok" {
			failures++
		}
	}
	return failures, rows.Err()
}

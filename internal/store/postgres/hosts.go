package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/host"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

func (s *Store) UpsertHost(ctx context.Context, workerID string, seenAt time.Time, info map[string]any) (bool, error) {
	if info == nil {
		info = map[string]any{}
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return false, fmt.Errorf("encode host info: %w", err)
	}

	// xmax = 0 only holds for freshly inserted rows, which tells a first
	// heartbeat apart from a refresh.
	var created bool
	err = s.pool.QueryRow(ctx, `
INSERT INTO hosts (worker_id, last_heartbeat_at, info) VALUES ($1, $2, $3)
ON CONFLICT (worker_id) DO UPDATE SET last_heartbeat_at = EXCLUDED.last_heartbeat_at, info = EXCLUDED.info
RETURNING (xmax = 0)
`, workerID, seenAt, string(infoJSON)).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert host: %w", err)
	}
	return created, nil
}

func (s *Store) GetHost(ctx context.Context, workerID string) (*host.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT worker_id, last_heartbeat_at, info FROM hosts WHERE worker_id = $1`, workerID)
	r, err := scanHost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrHostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get host: %w", err)
	}
	return r, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]*host.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT worker_id, last_heartbeat_at, info FROM hosts ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var records []*host.Record
	for rows.Next() {
		r, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanHost(row pgx.Row) (*host.Record, error) {
	var (
		r        host.Record
		infoJSON []byte
	)
	if err := row.Scan(&r.WorkerID, &r.LastHeartbeatAt, &infoJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(infoJSON, &r.Info); err != nil {
		return nil, fmt.Errorf("decode host info: %w", err)
	}
	return &r, nil
}

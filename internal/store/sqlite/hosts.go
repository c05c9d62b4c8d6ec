package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

	res, err := s.db.ExecContext(ctx, `
UPDATE hosts SET last_heartbeat_at=?, info=? WHERE worker_id=?
`, formatTime(seenAt), string(infoJSON), workerID)
	if err != nil {
		return false, fmt.Errorf("update host: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO hosts (worker_id, last_heartbeat_at, info) VALUES (?, ?, ?)
`, workerID, formatTime(seenAt), string(infoJSON))
	if err != nil {
		if isConstraintError(err) {
			// Lost a creation race against another heartbeat; apply the
			// update instead.
			_, err = s.db.ExecContext(ctx, `
UPDATE hosts SET last_heartbeat_at=?, info=? WHERE worker_id=?
`, formatTime(seenAt), string(infoJSON), workerID)
			if err != nil {
				return false, fmt.Errorf("update host after race: %w", err)
			}
			return false, nil
		}
		return false, fmt.Errorf("insert host: %w", err)
	}
	return true, nil
}

func (s *Store) GetHost(ctx context.Context, workerID string) (*host.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT worker_id, last_heartbeat_at, info FROM hosts WHERE worker_id = ?`, workerID)
	r, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrHostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get host: %w", err)
	}
	return r, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]*host.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, last_heartbeat_at, info FROM hosts ORDER BY worker_id`)
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

func scanHost(row rowScanner) (*host.Record, error) {
	var (
		r        host.Record
		seenAt   string
		infoJSON string
	)
	if err := row.Scan(&r.WorkerID, &seenAt, &infoJSON); err != nil {
		return nil, err
	}
	var err error
	if r.LastHeartbeatAt, err = parseTime(seenAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(infoJSON), &r.Info); err != nil {
		return nil, fmt.Errorf("decode host info: %w", err)
	}
	return &r, nil
}

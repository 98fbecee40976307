package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"idle-arena/internal/event"
)

// SaveFrame upserts a frame's encoded records
func (s *Store) SaveFrame(ctx context.Context, frame uint32, records []event.Record) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO frames (frame, record_count, records, saved_at) VALUES (?, ?, ?, ?)
ON CONFLICT(frame) DO UPDATE SET
	record_count = excluded.record_count,
	records = excluded.records,
	saved_at = excluded.saved_at
`, int64(frame), len(records), event.EncodeRecords(records), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save frame %d: %w", frame, err)
	}
	return nil
}

func (s *Store) LoadFrame(ctx context.Context, frame uint32) ([]event.Record, bool, error) {
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT records FROM frames WHERE frame = ?`, int64(frame)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load frame %d: %w", frame, err)
	}
	records, err := event.DecodeRecords(data)
	if err != nil {
		return nil, true, fmt.Errorf("decode frame %d: %w", frame, err)
	}
	return records, true, nil
}

func (s *Store) LoadRange(ctx context.Context, from, to uint32) ([]event.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT frame, records FROM frames WHERE frame BETWEEN ? AND ? ORDER BY frame`, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("load frames %d..%d: %w", from, to, err)
	}
	defer rows.Close()

	var out []event.Record
	for rows.Next() {
		var frame int64
		var data []byte
		if err := rows.Scan(&frame, &data); err != nil {
			return nil, err
		}
		records, err := event.DecodeRecords(data)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", frame, err)
		}
		out = append(out, records...)
	}
	return out, rows.Err()
}

func (s *Store) Frames(ctx context.Context, from, to uint32) ([]uint32, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT frame FROM frames WHERE frame BETWEEN ? AND ? ORDER BY frame`, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("list frames %d..%d: %w", from, to, err)
	}
	defer rows.Close()

	out := make([]uint32, 0)
	for rows.Next() {
		var frame int64
		if err := rows.Scan(&frame); err != nil {
			return nil, err
		}
		out = append(out, uint32(frame))
	}
	return out, rows.Err()
}

func (s *Store) LastFrame(ctx context.Context) (uint32, error) {
	var last int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(frame), 0) FROM frames`).Scan(&last); err != nil {
		return 0, fmt.Errorf("last frame: %w", err)
	}
	return uint32(last), nil
}

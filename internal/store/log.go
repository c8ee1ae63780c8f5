package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/wsync/internal/translog"
)

// Append adds an entry to the end of the log and returns it with its
// assigned sequence number. The first entry of an empty log gets seq 0.
//
// Allocation and insert share one IMMEDIATE transaction, so producers in
// different processes cannot race to the same seq.
func (s *Store) Append(ctx context.Context, kind translog.Kind, payload translog.Payload) (translog.LogEntry, error) {
	if _, err := translog.ParseKind(string(kind)); err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: %w", err)
	}
	if payload == nil {
		payload = translog.Payload{}
	}
	payloadJSON, err := translog.MarshalCanonical(payload)
	if err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM transaction_log`).Scan(&seq); err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: next seq: %w", err)
	}

	// Re-read the payload so the returned entry matches what readers will see.
	stored, err := translog.UnmarshalPayload(payloadJSON)
	if err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: %w", err)
	}
	entry := translog.LogEntry{Seq: seq, Kind: kind, Payload: stored}

	hash, err := translog.EntryHash(entry)
	if err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transaction_log (seq, kind, payload, hash)
		VALUES (?, ?, ?, ?)
	`, seq, string(kind), string(payloadJSON), hash); err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return translog.LogEntry{}, fmt.Errorf("append: commit: %w", err)
	}

	return entry, nil
}

// EnsureInitialized appends the init entry when the log is empty.
// Returns true if the entry was written by this call.
func (s *Store) EnsureInitialized(ctx context.Context) (bool, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return false, err
	}
	if last != translog.Uninitialized {
		return false, nil
	}
	if _, err := s.Append(ctx, translog.KindInit, nil); err != nil {
		return false, err
	}
	return true, nil
}

// FetchEntries returns every entry with seq strictly greater than afterSeq,
// ascending. The result is a snapshot; entries appended afterwards are picked
// up by the next call.
//
// Returns an empty slice (not nil) when there is nothing new.
func (s *Store) FetchEntries(ctx context.Context, afterSeq int64) ([]translog.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, payload
		FROM transaction_log
		WHERE seq > ?
		ORDER BY seq ASC
	`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("fetch entries: %w", err)
	}
	return scanEntries(rows)
}

// ListEntries returns the most recent limit entries in ascending order.
// A limit <= 0 returns the whole log.
func (s *Store) ListEntries(ctx context.Context, limit int) ([]translog.LogEntry, error) {
	query := `
		SELECT seq, kind, payload FROM (
			SELECT seq, kind, payload FROM transaction_log
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return scanEntries(rows)
}

// LastSeq returns the highest sequence number in the log, or
// translog.Uninitialized when the log is empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transaction_log`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !seq.Valid {
		return translog.Uninitialized, nil
	}
	return seq.Int64, nil
}

// EntryHash returns the stored content hash for seq.
// Returns sql.ErrNoRows if the entry does not exist.
func (s *Store) EntryHash(ctx context.Context, seq int64) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM transaction_log WHERE seq = ?`, seq).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("entry hash: %w", err)
	}
	return hash, nil
}

func scanEntries(rows *sql.Rows) ([]translog.LogEntry, error) {
	defer rows.Close()

	entries := []translog.LogEntry{}
	for rows.Next() {
		var (
			seq     int64
			kind    string
			payload string
		)
		if err := rows.Scan(&seq, &kind, &payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		p, err := translog.UnmarshalPayload([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", seq, err)
		}
		entries = append(entries, translog.LogEntry{Seq: seq, Kind: translog.Kind(kind), Payload: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

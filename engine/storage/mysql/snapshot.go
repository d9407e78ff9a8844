package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahalstead/caseng/engine/storage"
)

// sqlNullTimeStr formats t for MySQL, with Valid false for zero times.
func sqlNullTimeStr(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(mySQLTimestampFormat), Valid: true}
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid {
		return time.Time{}, nil
	}
	return time.Parse(mySQLTimestampFormat, s.String)
}

// StoreCaseSnapshot implements the storage interface method.
func (s *MySQLStorage) StoreCaseSnapshot(ctx context.Context, snap *storage.CaseSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validating case snapshot: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO cases
  (case_id, definition_name, case_number, state, error, correlation_keys, created_at, terminal_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?) AS new
ON DUPLICATE KEY
UPDATE
  state = new.state,
  error = new.error,
  correlation_keys = new.correlation_keys,
  terminal_at = new.terminal_at;`,
		snap.CaseID,
		snap.DefinitionName,
		snap.Number,
		snap.State,
		sqlNullString(snap.Error),
		sqlNullString(strings.Join(snap.CorrelationKeys, ",")),
		snap.CreatedAt.UTC().Format(mySQLTimestampFormat),
		sqlNullTimeStr(snap.TerminalAt),
	)
	if err != nil {
		return fmt.Errorf("storing case %s: %w", snap.CaseID, err)
	}
	return nil
}

// RetrieveCaseSnapshot implements the storage interface method.
func (s *MySQLStorage) RetrieveCaseSnapshot(ctx context.Context, caseID string) (*storage.CaseSnapshot, error) {
	var (
		snap       = &storage.CaseSnapshot{CaseID: caseID}
		caseErr    sql.NullString
		correl     sql.NullString
		createdAt  string
		terminalAt sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx, `
SELECT
  definition_name, case_number, state, error, correlation_keys, created_at, terminal_at
FROM
  cases
WHERE
  case_id = ?;`,
		caseID,
	).Scan(&snap.DefinitionName, &snap.Number, &snap.State, &caseErr, &correl, &createdAt, &terminalAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("case %s: %w", caseID, storage.ErrSnapshotNotFound)
	case err != nil:
		return nil, fmt.Errorf("querying case %s: %w", caseID, err)
	}
	snap.Error = caseErr.String
	if correl.Valid && correl.String != "" {
		snap.CorrelationKeys = strings.Split(correl.String, ",")
	}
	if snap.CreatedAt, err = time.Parse(mySQLTimestampFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created at: %w", err)
	}
	if snap.TerminalAt, err = parseNullTime(terminalAt); err != nil {
		return nil, fmt.Errorf("parsing terminal at: %w", err)
	}
	return snap, nil
}

// StoreWorkItemSnapshot implements the storage interface method.
func (s *MySQLStorage) StoreWorkItemSnapshot(ctx context.Context, snap *storage.WorkItemSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validating work item snapshot: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO work_items
  (work_item_id, case_id, task_id, state, resource_id, activation_id, enabled_at, allocated_at, started_at, ended_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) AS new
ON DUPLICATE KEY
UPDATE
  state = new.state,
  resource_id = new.resource_id,
  allocated_at = new.allocated_at,
  started_at = new.started_at,
  ended_at = new.ended_at;`,
		snap.WorkItemID,
		snap.CaseID,
		snap.TaskID,
		snap.State,
		sqlNullString(snap.ResourceID),
		sqlNullString(snap.ActivationID),
		snap.EnabledAt.UTC().Format(mySQLTimestampFormat),
		sqlNullTimeStr(snap.AllocatedAt),
		sqlNullTimeStr(snap.StartedAt),
		sqlNullTimeStr(snap.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("storing work item %s: %w", snap.WorkItemID, err)
	}
	return nil
}

// RetrieveWorkItemSnapshots implements the storage interface method.
func (s *MySQLStorage) RetrieveWorkItemSnapshots(ctx context.Context, caseID string) ([]*storage.WorkItemSnapshot, error) {
	rows, err := s.db.QueryContext(
		ctx, `
SELECT
  work_item_id, task_id, state, resource_id, activation_id, enabled_at, allocated_at, started_at, ended_at
FROM
  work_items
WHERE
  case_id = ?;`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying work items for %s: %w", caseID, err)
	}
	defer rows.Close()
	var snaps []*storage.WorkItemSnapshot
	for rows.Next() {
		var (
			snap         = &storage.WorkItemSnapshot{CaseID: caseID}
			resourceID   sql.NullString
			activationID sql.NullString
			enabledAt    string
			allocatedAt  sql.NullString
			startedAt    sql.NullString
			endedAt      sql.NullString
		)
		if err = rows.Scan(&snap.WorkItemID, &snap.TaskID, &snap.State, &resourceID, &activationID, &enabledAt, &allocatedAt, &startedAt, &endedAt); err != nil {
			return snaps, fmt.Errorf("scanning work item: %w", err)
		}
		snap.ResourceID = resourceID.String
		snap.ActivationID = activationID.String
		if snap.EnabledAt, err = time.Parse(mySQLTimestampFormat, enabledAt); err != nil {
			return snaps, fmt.Errorf("parsing enabled at: %w", err)
		}
		if snap.AllocatedAt, err = parseNullTime(allocatedAt); err != nil {
			return snaps, fmt.Errorf("parsing allocated at: %w", err)
		}
		if snap.StartedAt, err = parseNullTime(startedAt); err != nil {
			return snaps, fmt.Errorf("parsing started at: %w", err)
		}
		if snap.EndedAt, err = parseNullTime(endedAt); err != nil {
			return snaps, fmt.Errorf("parsing ended at: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteCase implements the storage interface method.
func (s *MySQLStorage) DeleteCase(ctx context.Context, caseID string) error {
	return tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM lifecycle_events WHERE case_id = ?;`,
			`DELETE FROM work_items WHERE case_id = ?;`,
			`DELETE FROM cases WHERE case_id = ?;`,
		} {
			if _, err := tx.ExecContext(ctx, q, caseID); err != nil {
				return fmt.Errorf("deleting case rows: %w", err)
			}
		}
		return nil
	})
}

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ahalstead/caseng/engine/storage"
)

// StoreEvents implements the storage interface method.
func (s *MySQLStorage) StoreEvents(ctx context.Context, events []storage.Event) error {
	for i, event := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("validating event %d: %w", i, err)
		}
		_, err := s.db.ExecContext(
			ctx, `
INSERT INTO lifecycle_events
  (case_id, entity_kind, entity_id, task_id, from_state, to_state, at, correlation_id, detail)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			event.CaseID,
			string(event.EntityKind),
			event.EntityID,
			sqlNullString(event.TaskID),
			event.From,
			event.To,
			event.At.UTC().Format(mySQLTimestampFormat),
			sqlNullString(event.CorrelationID),
			sqlNullString(event.Detail),
		)
		if err != nil {
			return fmt.Errorf("inserting event %d for %s: %w", i, event.CaseID, err)
		}
	}
	return nil
}

// RetrieveEvents implements the storage interface method.
func (s *MySQLStorage) RetrieveEvents(ctx context.Context, caseID string) ([]storage.Event, error) {
	rows, err := s.db.QueryContext(
		ctx, `
SELECT
  entity_kind, entity_id, task_id, from_state, to_state, at, correlation_id, detail
FROM
  lifecycle_events
WHERE
  case_id = ?
ORDER BY
  event_seq;`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events for %s: %w", caseID, err)
	}
	defer rows.Close()
	var events []storage.Event
	for rows.Next() {
		var (
			event         storage.Event
			kind          string
			taskID        sql.NullString
			at            string
			correlationID sql.NullString
			detail        sql.NullString
		)
		if err = rows.Scan(&kind, &event.EntityID, &taskID, &event.From, &event.To, &at, &correlationID, &detail); err != nil {
			return events, fmt.Errorf("scanning event: %w", err)
		}
		event.EntityKind = storage.EntityKind(kind)
		event.CaseID = caseID
		event.TaskID = taskID.String
		event.CorrelationID = correlationID.String
		event.Detail = detail.String
		if event.At, err = time.Parse(mySQLTimestampFormat, at); err != nil {
			return events, fmt.Errorf("parsing event timestamp: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"snapreview/internal/constants"
	"snapreview/pkg/database"
	"snapreview/pkg/logging"
)

// SQLEventStore stores events in a SQL table with ordered IDs.
// Table schema:
// CREATE TABLE IF NOT EXISTS business_events (
//   id BIGINT AUTO_INCREMENT PRIMARY KEY,
//   business_id CHAR(36) NOT NULL,
//   type VARCHAR(64) NOT NULL,
//   at DATETIME(6) NOT NULL,
//   data JSON NOT NULL,
//   KEY idx_business_id (business_id),
//   KEY idx_business_time (business_id, id)
// );
// NOTE: JSON may be emulated as LONGTEXT on older MySQL variants.

type SQLEventStore struct {
	db     *database.DB
	logger *logging.Logger
}

func NewSQLEventStore(db *database.DB, logger *logging.Logger) *SQLEventStore {
	s := &SQLEventStore{db: db, logger: logger.Component("events")}
	if err := s.ensureTable(); err != nil {
		// Best effort; don't crash app start
		s.logger.Warn("ensure events table failed", "error", err)
	}
	return s
}

var _ EventStore = (*SQLEventStore)(nil)

func (s *SQLEventStore) ensureTable() error {
	qry := `CREATE TABLE IF NOT EXISTS business_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		business_id CHAR(36) NOT NULL,
		type VARCHAR(64) NOT NULL,
		at DATETIME(6) NOT NULL,
		data JSON NOT NULL,
		KEY idx_business_id (business_id),
		KEY idx_business_time (business_id, id)
	)`
	_, err := s.db.Conn().Exec(qry)
	return err
}

func (s *SQLEventStore) Append(ctx context.Context, e Event) error {
	b, err := e.MarshalData()
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	at := e.Timestamp()
	if at.IsZero() {
		at = time.Now()
	}

	cctx, cancel := context.WithTimeout(ctx, constants.EventsSQLTimeoutDefault)
	defer cancel()
	_, err = s.db.Conn().ExecContext(cctx,
		`INSERT INTO business_events (business_id, type, at, data) VALUES (?,?,?,?)`,
		e.BusinessID(), e.Type(), at, string(b))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLEventStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	cctx, cancel := context.WithTimeout(ctx, constants.EventsSQLTimeoutDefault)
	defer cancel()

	rows, err := s.db.Conn().QueryContext(cctx,
		`SELECT id, business_id, type, at, data FROM business_events
		 WHERE business_id = ? ORDER BY id DESC LIMIT ?`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var dataStr string
		if err := rows.Scan(&se.Seq, &se.BusinessID, &se.Type, &se.Ts, &dataStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		se.Payload = json.RawMessage(dataStr)
		out = append(out, se)
	}
	return out, rows.Err()
}

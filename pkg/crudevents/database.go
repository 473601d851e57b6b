// Package crudevents provides the sinks crud events are recorded in and the
// publishers they are fanned out to once committed.
package crudevents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/crud"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// DefaultTableName is the table DatabaseSink writes to unless told otherwise.
const DefaultTableName = "crud_event"

var eventColumns = []string{
	"id", "event_type", "model", "request_type", "request_body", "ref_id",
	"user_auth_id", "user_auth_name", "rows_affected", "event_date",
}

// DatabaseSink records events in a table, inside the transaction of the
// mutation they describe.
type DatabaseSink struct {
	table string
}

// NewDatabaseSink returns a sink writing to table, DefaultTableName when empty.
func NewDatabaseSink(table string) *DatabaseSink {
	if table == "" {
		table = DefaultTableName
	}
	return &DatabaseSink{table: table}
}

// Table returns the table name.
func (s *DatabaseSink) Table() string { return s.table }

// EnsureTable creates the event table and its indexes if they do not exist.
func (s *DatabaseSink) EnsureTable(ctx context.Context, db common.Database) error {
	d := common.DialectOf(db)
	text, stamp := "TEXT", "TIMESTAMP"
	switch d {
	case common.DialectMSSQL:
		text, stamp = "NVARCHAR(MAX)", "DATETIME2"
	case common.DialectPostgres:
		stamp = "TIMESTAMPTZ"
	}

	table := d.QuoteIdent(s.table)
	columns := fmt.Sprintf(`
			id VARCHAR(64) PRIMARY KEY,
			event_type VARCHAR(16) NOT NULL,
			model VARCHAR(255) NOT NULL,
			request_type VARCHAR(255) NOT NULL,
			request_body %s NOT NULL,
			ref_id VARCHAR(255),
			user_auth_id VARCHAR(255),
			user_auth_name VARCHAR(255),
			rows_affected BIGINT NOT NULL DEFAULT 0,
			event_date %s NOT NULL`, text, stamp)

	var query string
	if d == common.DialectMSSQL {
		query = fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)", s.table, table, columns)
	} else {
		query = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columns)
	}
	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if d == common.DialectMSSQL {
		return nil
	}
	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ref ON %s(model, ref_id)", s.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_event_date ON %s(event_date)", s.table, table),
	}
	for _, indexQuery := range indexes {
		if _, err := db.Exec(ctx, indexQuery); err != nil {
			logger.Warn("Failed to create index: %v", err)
		}
	}
	return nil
}

// Record inserts the event using tx.
func (s *DatabaseSink) Record(ctx context.Context, tx common.Database, ev *crud.Event) error {
	d := common.DialectOf(tx)
	quoted := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		quoted[i] = d.QuoteIdent(c)
	}
	query := "INSERT INTO " + d.QuoteIdent(s.table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + common.Placeholders(len(eventColumns)) + ")"

	_, err := tx.Exec(ctx, query,
		ev.ID, string(ev.EventType), ev.Model, ev.RequestType, ev.RequestBody, ev.RefID,
		ev.UserAuthID, ev.UserAuthName, ev.RowsAffected, ev.EventDate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Model       string
	RequestType string
	RefID       string
	Since       time.Time
	Limit       int
}

// List returns recorded events in the order they happened.
func (s *DatabaseSink) List(ctx context.Context, db common.Database, filter Filter) ([]*crud.Event, error) {
	d := common.DialectOf(db)
	var where []string
	var args []interface{}
	add := func(column string, op string, value interface{}) {
		where = append(where, d.QuoteIdent(column)+" "+op+" ?")
		args = append(args, value)
	}
	if filter.Model != "" {
		add("model", "=", filter.Model)
	}
	if filter.RequestType != "" {
		add("request_type", "=", filter.RequestType)
	}
	if filter.RefID != "" {
		add("ref_id", "=", filter.RefID)
	}
	if !filter.Since.IsZero() {
		add("event_date", ">=", filter.Since)
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + d.QuoteIdent(s.table))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY " + d.QuoteIdent("event_date") + ", " + d.QuoteIdent("id"))
	if filter.Limit > 0 {
		sb.WriteString(d.Paging(0, filter.Limit, true))
	}

	var events []*crud.Event
	if err := db.Query(ctx, &events, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

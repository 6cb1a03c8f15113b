package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

var (
	insertTelemetrySQL = fmt.Sprintf(
		`INSERT INTO telemetry (session_id, time_unix_nanos, %s) VALUES (?, ?%s)`,
		strings.Join(telemetry.FieldNames, ", "),
		strings.Repeat(", ?", len(telemetry.FieldNames)),
	)
	selectTelemetrySQL = fmt.Sprintf(
		`SELECT time_unix_nanos, %s FROM telemetry WHERE session_id = ? ORDER BY time_unix_nanos`,
		strings.Join(telemetry.FieldNames, ", "),
	)
)

// RecordTelemetry stores one record under session.
func (db *DB) RecordTelemetry(session string, rec telemetry.Record) error {
	fields := rec.Fields()
	args := make([]any, 0, 2+len(telemetry.FieldNames))
	args = append(args, session, rec.Time.UnixNano())
	for _, name := range telemetry.FieldNames {
		args = append(args, fields[name])
	}
	if _, err := db.Exec(insertTelemetrySQL, args...); err != nil {
		return fmt.Errorf("record telemetry: %w", err)
	}
	return nil
}

// Telemetry returns the records of session oldest first. A positive limit
// keeps only the last limit records.
func (db *DB) Telemetry(session string, limit int) ([]telemetry.Record, error) {
	query := selectTelemetrySQL
	args := []any{session}
	if limit > 0 {
		// newest limit rows, re-ordered oldest first
		query = fmt.Sprintf(`SELECT * FROM (%s DESC LIMIT ?) ORDER BY time_unix_nanos`, query)
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []telemetry.Record
	values := make([]float64, len(telemetry.FieldNames))
	dest := make([]any, 1+len(values))
	var nanos int64
	dest[0] = &nanos
	for i := range values {
		dest[i+1] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		m := make(map[string]float64, len(values))
		for i, name := range telemetry.FieldNames {
			m[name] = values[i]
		}
		records = append(records, telemetry.FromFields(time.Unix(0, nanos).UTC(), m))
	}
	return records, rows.Err()
}

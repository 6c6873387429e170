package store

import (
	"database/sql"
	"strings"
)

// DetectDSNType inspects a database connection string and reports the
// driver it belongs to: "postgres" or "sqlite3". Anything that does not
// look like a PostgreSQL URL or key/value DSN is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// nullFloatPtr converts a nullable float column, shared by both SQL
// backends for the optional order coordinates.
func nullFloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

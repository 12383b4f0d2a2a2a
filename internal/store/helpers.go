package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// nilIfEmpty converts empty strings to nil for nullable DB columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// stringOrEmpty unwraps a nullable text column.
func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// timeOrZero unwraps a nullable timestamp column.
func timeOrZero(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}

// encodeKeywords serializes escalation keywords for storage as JSON text.
func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeKeywords parses the JSON keyword column. Empty or malformed values
// decode to an empty slice rather than failing the whole config read.
func decodeKeywords(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return []string{}
	}
	return keywords
}

// rawOrNil converts an opaque JSON column value for insertion.
func rawOrNil(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// rawFromColumn converts a nullable text column back to opaque JSON.
func rawFromColumn(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

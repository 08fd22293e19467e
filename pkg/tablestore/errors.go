package tablestore

import (
	"fmt"
	"strings"
)

// APIError represents an error response from the database API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tablestore API error (status %d): %s - %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("tablestore API error (status %d): %s", e.Status, e.Code)
}

// SchemaError reports a column whose type differs from the required one.
type SchemaError struct {
	Table  string
	Column string
	Want   ColumnType
	Got    ColumnType
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: column %q has type %s, want %s", e.Table, e.Column, e.Got, e.Want)
}

// DuplicateKeyError reports more than one row matching a natural key.
type DuplicateKeyError struct {
	Table   string
	Key     []KeyField
	PageIDs []string
}

func (e *DuplicateKeyError) Error() string {
	parts := make([]string, len(e.Key))
	for i, k := range e.Key {
		parts[i] = k.Name + "=" + k.Value
	}
	return fmt.Sprintf("table %s: %d rows match key %s: %s",
		e.Table, len(e.PageIDs), strings.Join(parts, ","), strings.Join(e.PageIDs, ", "))
}

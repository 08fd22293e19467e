package reconcile

import (
	"context"
	"log/slog"

	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// DryRunStore is a Store that only logs the writes a sync would make.
type DryRunStore struct{}

func (DryRunStore) EnsureSchema(_ context.Context, tableID string, required tablestore.Schema) error {
	slog.Info("[dry-run] ensure schema", "table", tableID, "columns", len(required))
	return nil
}

// Upsert reports every row as created, since the remote table is never read.
func (DryRunStore) Upsert(_ context.Context, tableID string, key []tablestore.KeyField, create, update tablestore.Properties) (tablestore.UpsertResult, error) {
	slog.Info("[dry-run] upsert", "table", tableID, "key", keyString(key), "fields", len(create)+len(update))
	return tablestore.UpsertResult{Created: true}, nil
}

func (DryRunStore) UpdateExisting(_ context.Context, tableID string, key []tablestore.KeyField, update tablestore.Properties) (tablestore.UpsertResult, error) {
	slog.Info("[dry-run] update if present", "table", tableID, "key", keyString(key), "fields", len(update))
	return tablestore.UpsertResult{}, nil
}

func keyString(key []tablestore.KeyField) string {
	s := ""
	for i, k := range key {
		if i > 0 {
			s += ","
		}
		s += k.Name + "=" + k.Value
	}
	return s
}

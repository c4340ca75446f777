package store

import (
	"context"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
)

// StoreProviderMemory is the in-process record store
const StoreProviderMemory = "memory"

// StoreProviderDatabase is the gorm-backed postgres record store
const StoreProviderDatabase = "database"

// RecordStore provides durable, schema-validated storage of credential records
type RecordStore interface {
	// Create persists a new record; an id is assigned when the record has none
	Create(ctx context.Context, record credential.Record) error

	// GetBy returns the first record of the given kind whose fields match the query;
	// credential.ErrNotFound is returned when no record matches
	GetBy(ctx context.Context, kind credential.Kind, query map[string]interface{}) (credential.Record, error)

	// Update replaces an existing record, enforcing lifecycle and write-once rules
	Update(ctx context.Context, record credential.Record) error
}

// GetByID is a convenience method to resolve a record by id
func GetByID(ctx context.Context, store RecordStore, kind credential.Kind, id interface{}) (credential.Record, error) {
	return store.GetBy(ctx, kind, map[string]interface{}{"id": id})
}

// StoreProviderFactory returns the record store for the given provider
func StoreProviderFactory(provider string) RecordStore {
	switch provider {
	case StoreProviderMemory:
		return NewMemoryStore()
	case StoreProviderDatabase:
		return NewDatabaseStore()
	default:
		common.Log.Warningf("failed to initialize store provider; unknown provider: %s", provider)
	}

	return nil
}

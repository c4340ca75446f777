package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinzhu/gorm"
	dbconf "github.com/kthomas/go-db-config"
	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
)

// DatabaseStore is a RecordStore backed by the configured postgres database
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore initializes a record store using the shared database connection
func NewDatabaseStore() *DatabaseStore {
	return &DatabaseStore{
		db: dbconf.DatabaseConnection(),
	}
}

// Create implements RecordStore
func (s *DatabaseStore) Create(ctx context.Context, record credential.Record) error {
	err := credential.Validate(record)
	if err != nil {
		return err
	}

	if record.RecordID() == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate id for %s; %s", record.Kind(), err.Error())
		}
		record.SetRecordID(id)
	}

	result := s.db.Create(record)
	if errs := result.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("failed to create %s %s; %s", record.Kind(), record.RecordID(), joinErrors(errs))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to create %s %s; no rows affected", record.Kind(), record.RecordID())
	}

	common.Log.Debugf("created %s %s", record.Kind(), record.RecordID())
	return nil
}

// GetBy implements RecordStore
func (s *DatabaseStore) GetBy(ctx context.Context, kind credential.Kind, query map[string]interface{}) (credential.Record, error) {
	record, err := credential.NewRecord(kind)
	if err != nil {
		return nil, err
	}

	db := s.db.Where(query).Order("created_at ASC").First(record)
	if db.RecordNotFound() {
		return nil, fmt.Errorf("%w: %s matching %v", credential.ErrNotFound, kind, query)
	}
	if errs := db.GetErrors(); len(errs) > 0 {
		return nil, fmt.Errorf("failed to resolve %s; %s", kind, joinErrors(errs))
	}

	return record, nil
}

// Update implements RecordStore; the current row is locked while the update is checked
func (s *DatabaseStore) Update(ctx context.Context, record credential.Record) error {
	err := credential.Validate(record)
	if err != nil {
		return err
	}

	tx := s.db.Begin()
	defer tx.RollbackUnlessCommitted()

	current, err := credential.NewRecord(record.Kind())
	if err != nil {
		return err
	}

	db := tx.Set("gorm:query_option", "FOR UPDATE").Where("id = ?", record.RecordID()).First(current)
	if db.RecordNotFound() {
		return fmt.Errorf("%w: %s %s", credential.ErrNotFound, record.Kind(), record.RecordID())
	}
	if errs := db.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("failed to resolve %s %s for update; %s", record.Kind(), record.RecordID(), joinErrors(errs))
	}

	err = credential.CheckUpdate(current, record)
	if err != nil {
		return err
	}

	result := tx.Save(record)
	if errs := result.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("failed to update %s %s; %s", record.Kind(), record.RecordID(), joinErrors(errs))
	}

	result = tx.Commit()
	if errs := result.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("failed to commit update of %s %s; %s", record.Kind(), record.RecordID(), joinErrors(errs))
	}

	common.Log.Debugf("updated %s %s", record.Kind(), record.RecordID())
	return nil
}

func joinErrors(errs []error) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

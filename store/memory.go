package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
)

// MemoryStore is an in-process RecordStore; records are held as serialized
// copies so callers never share state with the store
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[credential.Kind][]*memoryRecord
}

type memoryRecord struct {
	id     uuid.UUID
	raw    []byte
	fields map[string]interface{}
}

// NewMemoryStore initializes an empty in-memory record store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[credential.Kind][]*memoryRecord{},
	}
}

// Create implements RecordStore
func (s *MemoryStore) Create(ctx context.Context, record credential.Record) error {
	err := credential.Validate(record)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.RecordID() == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate id for %s; %s", record.Kind(), err.Error())
		}
		record.SetRecordID(id)
	} else if s.indexOf(record.Kind(), record.RecordID()) != -1 {
		return fmt.Errorf("%w: %s %s already exists", credential.ErrSchema, record.Kind(), record.RecordID())
	}

	rec, err := marshalMemoryRecord(record)
	if err != nil {
		return err
	}

	s.records[record.Kind()] = append(s.records[record.Kind()], rec)
	common.Log.Tracef("created %s %s", record.Kind(), record.RecordID())
	return nil
}

// GetBy implements RecordStore
func (s *MemoryStore) GetBy(ctx context.Context, kind credential.Kind, query map[string]interface{}) (credential.Record, error) {
	if _, err := credential.NewRecord(kind); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, rec := range s.records[kind] {
		match, err := rec.matches(query)
		if err != nil {
			return nil, err
		}
		if match {
			return rec.unmarshal(kind)
		}
	}

	return nil, fmt.Errorf("%w: %s matching %v", credential.ErrNotFound, kind, query)
}

// Update implements RecordStore
func (s *MemoryStore) Update(ctx context.Context, record credential.Record) error {
	err := credential.Validate(record)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.indexOf(record.Kind(), record.RecordID())
	if i == -1 {
		return fmt.Errorf("%w: %s %s", credential.ErrNotFound, record.Kind(), record.RecordID())
	}

	current, err := s.records[record.Kind()][i].unmarshal(record.Kind())
	if err != nil {
		return err
	}

	err = credential.CheckUpdate(current, record)
	if err != nil {
		return err
	}

	rec, err := marshalMemoryRecord(record)
	if err != nil {
		return err
	}

	s.records[record.Kind()][i] = rec
	common.Log.Tracef("updated %s %s", record.Kind(), record.RecordID())
	return nil
}

func (s *MemoryStore) indexOf(kind credential.Kind, id uuid.UUID) int {
	for i, rec := range s.records[kind] {
		if rec.id == id {
			return i
		}
	}
	return -1
}

func marshalMemoryRecord(record credential.Record) (*memoryRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %s; %s", record.Kind(), record.RecordID(), err.Error())
	}

	var fields map[string]interface{}
	err = json.Unmarshal(raw, &fields)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s %s; %s", record.Kind(), record.RecordID(), err.Error())
	}

	return &memoryRecord{
		id:     record.RecordID(),
		raw:    raw,
		fields: fields,
	}, nil
}

func (r *memoryRecord) unmarshal(kind credential.Kind) (credential.Record, error) {
	record, err := credential.NewRecord(kind)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(r.raw, record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s; %s", kind, r.id, err.Error())
	}

	return record, nil
}

// matches compares each query value with the field of the same (json) name,
// using the json encoding of both sides
func (r *memoryRecord) matches(query map[string]interface{}) (bool, error) {
	for name, want := range query {
		wantRaw, err := json.Marshal(want)
		if err != nil {
			return false, fmt.Errorf("failed to marshal query value for %s; %s", name, err.Error())
		}

		got, ok := r.fields[name]
		if !ok {
			if string(wantRaw) == "null" {
				continue
			}
			return false, nil
		}

		gotRaw, _ := json.Marshal(got)
		if string(gotRaw) != string(wantRaw) {
			return false, nil
		}
	}

	return true, nil
}

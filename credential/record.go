package credential

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	uuid "github.com/kthomas/go.uuid"
)

// Kind identifies the schema of a record
type Kind string

const (
	KindDocument          Kind = "Document"
	KindIssuedDocument    Kind = "IssuedDocument"
	KindAwardedDocument   Kind = "AwardedDocument"
	KindShareRequest      Kind = "ShareRequest"
	KindProofShareRequest Kind = "ProofShareRequest"
	KindReceivedProof     Kind = "ReceivedProof"
	KindEntity            Kind = "Entity"
	KindProfile           Kind = "Profile"
)

var validate = validator.New()

// Record is implemented by every persisted domain record
type Record interface {
	Kind() Kind
	RecordID() uuid.UUID
	SetRecordID(id uuid.UUID)
}

// Tracked is implemented by records which move through the phase lifecycle
type Tracked interface {
	Record
	LifecycleStatus() Status

	// WriteOnce returns the fields which may be set once and never changed afterwards
	WriteOnce() map[string]*string
}

// Kinds returns all known record kinds
func Kinds() []Kind {
	return []Kind{
		KindDocument,
		KindIssuedDocument,
		KindAwardedDocument,
		KindShareRequest,
		KindProofShareRequest,
		KindReceivedProof,
		KindEntity,
		KindProfile,
	}
}

// NewRecord returns a zero-valued record of the given kind
func NewRecord(kind Kind) (Record, error) {
	switch kind {
	case KindDocument:
		return &Document{}, nil
	case KindIssuedDocument:
		return &IssuedDocument{}, nil
	case KindAwardedDocument:
		return &AwardedDocument{}, nil
	case KindShareRequest:
		return &ShareRequest{}, nil
	case KindProofShareRequest:
		return &ProofShareRequest{}, nil
	case KindReceivedProof:
		return &ReceivedProof{}, nil
	case KindEntity:
		return &Entity{}, nil
	case KindProfile:
		return &Profile{}, nil
	}

	return nil, fmt.Errorf("%w: unknown record kind %s", ErrSchema, kind)
}

// Validate the given record against its schema
func Validate(record Record) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrSchema)
	}

	if _, err := NewRecord(record.Kind()); err != nil {
		return err
	}

	if tracked, ok := record.(Tracked); ok && !LifecycleOf(record.Kind()).Valid(tracked.LifecycleStatus()) {
		return fmt.Errorf("%w: invalid status %s on %s %s", ErrSchema, tracked.LifecycleStatus(), record.Kind(), record.RecordID())
	}

	err := validate.Struct(record)
	if err != nil {
		return fmt.Errorf("%w: invalid %s %s; %s", ErrSchema, record.Kind(), record.RecordID(), err.Error())
	}

	return nil
}

// CheckUpdate returns an error if replacing current with next would violate
// a lifecycle rule
func CheckUpdate(current, next Record) error {
	if current.Kind() != next.Kind() {
		return fmt.Errorf("%w: cannot replace %s with %s", ErrSchema, current.Kind(), next.Kind())
	}

	if doc, ok := current.(*Document); ok {
		if !doc.Equals(next.(*Document)) {
			return fmt.Errorf("%w: document %s content", ErrImmutable, doc.ID)
		}
		return nil
	}

	tracked, ok := current.(Tracked)
	if !ok {
		return nil
	}
	updated := next.(Tracked)

	if !LifecycleOf(current.Kind()).CanTransition(tracked.LifecycleStatus(), updated.LifecycleStatus()) {
		return fmt.Errorf("%w: %s %s from %s to %s", ErrInvalidTransition, current.Kind(), current.RecordID(), tracked.LifecycleStatus(), updated.LifecycleStatus())
	}

	nextFields := updated.WriteOnce()
	for name, val := range tracked.WriteOnce() {
		if val == nil {
			continue
		}
		if nextVal := nextFields[name]; nextVal == nil || *nextVal != *val {
			return fmt.Errorf("%w: %s on %s %s", ErrImmutable, name, current.Kind(), current.RecordID())
		}
	}

	return nil
}

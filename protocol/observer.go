package protocol

import (
	"context"
	"time"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
)

// Phase of the credential exchange
type Phase string

const (
	PhaseAward       Phase = "award"
	PhaseRequest     Phase = "request"
	PhaseProof       Phase = "proof"
	PhaseAcknowledge Phase = "acknowledge"
	PhaseReceive     Phase = "receive"
)

// Event describes a single phase transition
type Event struct {
	RecordID  uuid.UUID         `json:"record_id"`
	Kind      credential.Kind   `json:"kind"`
	Phase     Phase             `json:"phase"`
	Status    credential.Status `json:"status"`
	LedgerRef *string           `json:"ledger_ref,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Observer is notified of every phase transition; implementations must not block
type Observer interface {
	Observe(ctx context.Context, event *Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, event *Event)

// Observe implements Observer
func (f ObserverFunc) Observe(ctx context.Context, event *Event) {
	f(ctx, event)
}

// LogObserver logs each transition at debug level
type LogObserver struct{}

// Observe implements Observer
func (LogObserver) Observe(ctx context.Context, event *Event) {
	common.Log.Debugf("%s phase transitioned %s %s to %s", event.Phase, event.Kind, event.RecordID, event.Status)
}

// MultiObserver fans events out to each of its observers in order
type MultiObserver []Observer

// Observe implements Observer
func (m MultiObserver) Observe(ctx context.Context, event *Event) {
	for _, observer := range m {
		if observer != nil {
			observer.Observe(ctx, event)
		}
	}
}

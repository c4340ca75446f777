package ledger

import (
	"context"
	"errors"

	"github.com/provideplatform/attestation/credential"
)

// ErrTransactionNotFound is returned when the ledger has no record of a transaction
var ErrTransactionNotFound = errors.New("transaction not found")

// Transaction is the ledger's view of an anchored artifact
type Transaction struct {
	Hash          string            `json:"hash"`
	Status        credential.Status `json:"status"`
	Data          []byte            `json:"data,omitempty"`
	BlockNumber   *uint64           `json:"block_number,omitempty"`
	Confirmations uint64            `json:"confirmations"`
}

// Confirmed returns true if the transaction reached the confirmed status
func (t *Transaction) Confirmed() bool {
	return t != nil && t.Status == credential.StatusConfirmed
}

// Terminal returns true if the transaction is confirmed or failed
func (t *Transaction) Terminal() bool {
	return t != nil && (t.Status == credential.StatusConfirmed || t.Status == credential.StatusFail)
}

// Client anchors artifacts as transactions and reports their confirmation status
type Client interface {
	// Publish submits the artifact and returns the transaction hash; rejected
	// submissions return credential.ErrLedgerPublish
	Publish(ctx context.Context, artifact []byte) (*string, error)

	// GetTransaction performs a single, side-effect free status check
	GetTransaction(ctx context.Context, hash string, minConfirmations uint64) (*Transaction, error)

	// GetTransactionSync blocks until the transaction reaches a terminal status,
	// the configured bound elapses (credential.ErrLedgerTimeout) or ctx is done
	GetTransactionSync(ctx context.Context, hash string, minConfirmations uint64) (*Transaction, error)
}

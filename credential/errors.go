package credential

import "errors"

var (
	// ErrNotFound is returned when a required record or document is missing
	ErrNotFound = errors.New("not found")

	// ErrSchema is returned when a record or message does not match a known schema
	ErrSchema = errors.New("schema error")

	// ErrInvalidTransition is returned when a status update would regress the lifecycle
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrImmutable is returned when an immutable value (document content, ledger reference) is modified
	ErrImmutable = errors.New("immutable value modified")

	// ErrAttemptFrozen is returned when a phase is re-entered on a record which failed
	ErrAttemptFrozen = errors.New("attempt frozen")

	// ErrLedgerPublish is returned when the ledger rejects a submission
	ErrLedgerPublish = errors.New("ledger publish error")

	// ErrLedgerTimeout is returned when confirmation polling exceeds its bound
	ErrLedgerTimeout = errors.New("ledger timeout")

	// ErrCryptoComputation is returned when the crypto provider rejects its inputs
	ErrCryptoComputation = errors.New("crypto computation error")

	// ErrMessagingDelivery is returned when a notification fails after ledger confirmation
	ErrMessagingDelivery = errors.New("messaging delivery error")
)

// IsNotFound returns true if the given error wraps ErrNotFound
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

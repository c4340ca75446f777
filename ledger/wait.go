package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/sethvargo/go-retry"
)

var errTransactionPending = errors.New("transaction pending")

// WaitForConfirmation polls the given client until the transaction reaches a
// terminal status; a zero timeout leaves the wait bounded only by ctx
func WaitForConfirmation(
	ctx context.Context,
	client Client,
	hash string,
	minConfirmations uint64,
	interval, timeout time.Duration,
) (*Transaction, error) {
	if interval <= 0 {
		interval = time.Millisecond * 100
	}

	backoff := retry.NewConstant(interval)
	if timeout > 0 {
		backoff = retry.WithMaxDuration(timeout, backoff)
	}

	var tx *Transaction
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := client.GetTransaction(ctx, hash, minConfirmations)
		if err != nil {
			if errors.Is(err, ErrTransactionNotFound) {
				return retry.RetryableError(err)
			}
			return err
		}

		if !resp.Terminal() {
			common.Log.Tracef("tx %s pending; %d confirmation(s)", hash, resp.Confirmations)
			return retry.RetryableError(errTransactionPending)
		}

		tx = resp
		return nil
	})

	if err != nil {
		if errors.Is(err, errTransactionPending) || errors.Is(err, ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: tx %s not terminal after %s", credential.ErrLedgerTimeout, hash, timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: wait for tx %s interrupted; %w", credential.ErrLedgerTimeout, hash, ctx.Err())
		}
		return nil, err
	}

	common.Log.Debugf("tx %s reached terminal status: %s", hash, tx.Status)
	return tx, nil
}

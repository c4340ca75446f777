package local

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/ledger"
	"github.com/providenetwork/merkletree"
)

// ArtifactValidator decides whether an artifact is accepted when its block is sealed
type ArtifactValidator func(artifact []byte) error

// Block is a sealed set of transactions
type Block struct {
	Number       uint64
	Root         []byte
	Transactions []string
	Timestamp    time.Time

	tree *merkletree.MerkleTree
}

type localTx struct {
	hash     string
	artifact []byte
	block    *uint64
	failed   bool
}

// Ledger is an in-process ledger; transactions are sealed into blocks whose
// merkle roots commit to the transaction hashes
type Ledger struct {
	mutex     sync.RWMutex
	nonce     uint64
	txs       map[string]*localTx
	pending   []*localTx
	blocks    []*Block
	validator ArtifactValidator

	blockInterval time.Duration
	pollInterval  time.Duration
	timeout       time.Duration

	shutdown chan struct{}
	stopOnce sync.Once
}

// InitLocalLedger initializes a local ledger; a zero block interval seals a
// block on every publish, otherwise blocks are sealed on a ticker until Stop
func InitLocalLedger(blockInterval, pollInterval, timeout time.Duration, validator ArtifactValidator) *Ledger {
	l := &Ledger{
		txs:           map[string]*localTx{},
		pending:       make([]*localTx, 0),
		blocks:        make([]*Block, 0),
		validator:     validator,
		blockInterval: blockInterval,
		pollInterval:  pollInterval,
		timeout:       timeout,
		shutdown:      make(chan struct{}),
	}

	if blockInterval > 0 {
		go l.run()
	}

	return l
}

func (l *Ledger) run() {
	ticker := time.NewTicker(l.blockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mutex.Lock()
			err := l.seal()
			l.mutex.Unlock()
			if err != nil {
				common.Log.Warningf("failed to seal local ledger block; %s", err.Error())
			}
		case <-l.shutdown:
			common.Log.Debug("local ledger block production stopped")
			return
		}
	}
}

// Stop halts block production
func (l *Ledger) Stop() {
	l.stopOnce.Do(func() {
		close(l.shutdown)
	})
}

// Publish implements ledger.Client
func (l *Ledger) Publish(ctx context.Context, artifact []byte) (*string, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", credential.ErrLedgerPublish)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	txHash := transactionHash(l.nonce, artifact)
	l.nonce++

	tx := &localTx{
		hash:     txHash,
		artifact: append([]byte{}, artifact...),
	}
	l.txs[txHash] = tx
	l.pending = append(l.pending, tx)
	common.Log.Debugf("published tx %s to local ledger", txHash)

	if l.blockInterval <= 0 {
		err := l.seal()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", credential.ErrLedgerPublish, err.Error())
		}
	}

	return &txHash, nil
}

// transactionHash commits to the ledger nonce and the artifact, so the same
// artifact may be anchored more than once
func transactionHash(nonce uint64, artifact []byte) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	h.Write(artifact)
	return hex.EncodeToString(h.Sum(nil))
}

// GetTransaction implements ledger.Client
func (l *Ledger) GetTransaction(ctx context.Context, txHash string, minConfirmations uint64) (*ledger.Transaction, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	tx, ok := l.txs[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, txHash)
	}

	resp := &ledger.Transaction{
		Hash:   txHash,
		Status: credential.StatusPending,
	}

	if tx.block == nil {
		return resp, nil
	}

	blockNumber := *tx.block
	resp.BlockNumber = &blockNumber
	resp.Confirmations = uint64(len(l.blocks)) - blockNumber

	if tx.failed {
		resp.Status = credential.StatusFail
		return resp, nil
	}

	if minConfirmations == 0 {
		minConfirmations = 1
	}
	if resp.Confirmations >= minConfirmations {
		resp.Status = credential.StatusConfirmed
		resp.Data = append([]byte{}, tx.artifact...)
	}

	return resp, nil
}

// GetTransactionSync implements ledger.Client
func (l *Ledger) GetTransactionSync(ctx context.Context, txHash string, minConfirmations uint64) (*ledger.Transaction, error) {
	return ledger.WaitForConfirmation(ctx, l, txHash, minConfirmations, l.pollInterval, l.timeout)
}

// Height returns the number of sealed blocks
func (l *Ledger) Height() uint64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return uint64(len(l.blocks))
}

// BlockAt returns the sealed block with the given number
func (l *Ledger) BlockAt(number uint64) (*Block, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if number >= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("block %d not sealed; height: %d", number, len(l.blocks))
	}
	return l.blocks[number], nil
}

// VerifyInclusion returns true if the transaction is committed to by the root of its block
func (l *Ledger) VerifyInclusion(txHash string) (bool, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	tx, ok := l.txs[txHash]
	if !ok {
		return false, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, txHash)
	}
	if tx.block == nil {
		return false, nil
	}

	return l.blocks[*tx.block].tree.VerifyContent(&txContent{hash: txHash})
}

// seal moves all pending transactions into a new block; callers hold the write lock
func (l *Ledger) seal() error {
	if len(l.pending) == 0 {
		return nil
	}

	contents := make([]merkletree.Content, 0, len(l.pending))
	hashes := make([]string, 0, len(l.pending))
	for _, tx := range l.pending {
		contents = append(contents, &txContent{hash: tx.hash})
		hashes = append(hashes, tx.hash)
	}

	tree, err := merkletree.NewTreeWithHashStrategy(contents, func() hash.Hash {
		return sha256.New()
	})
	if err != nil {
		return fmt.Errorf("failed to build merkle tree for block %d; %s", len(l.blocks), err.Error())
	}

	number := uint64(len(l.blocks))
	for _, tx := range l.pending {
		blockNumber := number
		tx.block = &blockNumber

		if l.validator != nil {
			if err := l.validator(tx.artifact); err != nil {
				common.Log.Debugf("tx %s failed validation in block %d; %s", tx.hash, number, err.Error())
				tx.failed = true
			}
		}
	}

	l.blocks = append(l.blocks, &Block{
		Number:       number,
		Root:         tree.MerkleRoot(),
		Transactions: hashes,
		Timestamp:    time.Now(),
		tree:         tree,
	})
	l.pending = make([]*localTx, 0)

	common.Log.Debugf("sealed local ledger block %d with %d tx(s); root: %s", number, len(hashes), hex.EncodeToString(tree.MerkleRoot()))
	return nil
}

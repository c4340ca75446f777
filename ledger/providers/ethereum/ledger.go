package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/ledger"
)

// anchorMethod is the contract method artifacts are passed to when an abi is configured
const anchorMethod = "publish"

// Backend is the subset of the json-rpc client used to anchor artifacts
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash ethcommon.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// Ledger anchors artifacts as transactions on an ethereum network
type Ledger struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    ethcommon.Address
	to      ethcommon.Address
	abi     *abi.ABI

	pollInterval time.Duration
	timeout      time.Duration

	// nonce assignment is serialized per sending account
	mutex sync.Mutex
}

// Dial connects to the configured rpc endpoint and initializes the ledger
func Dial(rpcURL, privateKey, anchorAddress, anchorABI string, pollInterval, timeout time.Duration) (*Ledger, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc endpoint %s; %s", rpcURL, err.Error())
	}

	return InitEthereumLedger(client, privateKey, anchorAddress, anchorABI, pollInterval, timeout)
}

// InitEthereumLedger initializes a ledger using the given backend; artifacts are sent
// as raw calldata unless a contract abi exposing publish(bytes) is given
func InitEthereumLedger(backend Backend, privateKey, anchorAddress, anchorABI string, pollInterval, timeout time.Duration) (*Ledger, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger account private key; %s", err.Error())
	}

	l := &Ledger{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		pollInterval: pollInterval,
		timeout:      timeout,
	}

	if anchorAddress != "" {
		if !ethcommon.IsHexAddress(anchorAddress) {
			return nil, fmt.Errorf("invalid ledger anchor address: %s", anchorAddress)
		}
		l.to = ethcommon.HexToAddress(anchorAddress)
	} else {
		l.to = l.from
	}

	if anchorABI != "" {
		parsed, err := abi.JSON(strings.NewReader(anchorABI))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ledger anchor abi; %s", err.Error())
		}
		if _, ok := parsed.Methods[anchorMethod]; !ok {
			return nil, fmt.Errorf("ledger anchor abi does not expose %s method", anchorMethod)
		}
		l.abi = &parsed
	}

	common.Log.Debugf("initialized ethereum ledger; account: %s; anchor: %s", l.from.Hex(), l.to.Hex())
	return l, nil
}

// Publish implements ledger.Client
func (l *Ledger) Publish(ctx context.Context, artifact []byte) (*string, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", credential.ErrLedgerPublish)
	}

	data, err := l.pack(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", credential.ErrLedgerPublish, err.Error())
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	chainID, err := l.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve chain id; %s", credential.ErrLedgerPublish, err.Error())
	}

	nonce, err := l.backend.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve nonce for %s; %s", credential.ErrLedgerPublish, l.from.Hex(), err.Error())
	}

	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve gas price; %s", credential.ErrLedgerPublish, err.Error())
	}

	gas, err := l.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: l.from,
		To:   &l.to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to estimate gas; %s", credential.ErrLedgerPublish, err.Error())
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &l.to,
		Value:    big.NewInt(0),
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign tx; %s", credential.ErrLedgerPublish, err.Error())
	}

	err = l.backend.SendTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to broadcast tx %s; %s", credential.ErrLedgerPublish, signed.Hash().Hex(), err.Error())
	}

	txHash := signed.Hash().Hex()
	common.Log.Debugf("broadcast tx %s; nonce: %d; gas: %d", txHash, nonce, gas)
	return &txHash, nil
}

// GetTransaction implements ledger.Client
func (l *Ledger) GetTransaction(ctx context.Context, txHash string, minConfirmations uint64) (*ledger.Transaction, error) {
	hash := ethcommon.HexToHash(txHash)
	resp := &ledger.Transaction{
		Hash:   txHash,
		Status: credential.StatusPending,
	}

	receipt, err := l.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt for tx %s; %s", txHash, err.Error())
		}

		_, _, err := l.backend.TransactionByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, txHash)
			}
			return nil, fmt.Errorf("failed to fetch tx %s; %s", txHash, err.Error())
		}

		return resp, nil
	}

	blockNumber := receipt.BlockNumber.Uint64()
	resp.BlockNumber = &blockNumber

	if receipt.Status == types.ReceiptStatusFailed {
		resp.Status = credential.StatusFail
		return resp, nil
	}

	head, err := l.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve head block number; %s", err.Error())
	}
	if head >= blockNumber {
		resp.Confirmations = head - blockNumber + 1
	}

	if minConfirmations == 0 {
		minConfirmations = 1
	}
	if resp.Confirmations < minConfirmations {
		return resp, nil
	}

	tx, _, err := l.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tx %s; %s", txHash, err.Error())
	}

	resp.Data, err = l.unpack(tx.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact from tx %s; %s", txHash, err.Error())
	}

	resp.Status = credential.StatusConfirmed
	return resp, nil
}

// GetTransactionSync implements ledger.Client
func (l *Ledger) GetTransactionSync(ctx context.Context, txHash string, minConfirmations uint64) (*ledger.Transaction, error) {
	return ledger.WaitForConfirmation(ctx, l, txHash, minConfirmations, l.pollInterval, l.timeout)
}

func (l *Ledger) pack(artifact []byte) ([]byte, error) {
	if l.abi == nil {
		return artifact, nil
	}
	return l.abi.Pack(anchorMethod, artifact)
}

func (l *Ledger) unpack(data []byte) ([]byte, error) {
	if l.abi == nil {
		return data, nil
	}

	method := l.abi.Methods[anchorMethod]
	if len(data) < 4 {
		return nil, errors.New("calldata shorter than method selector")
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 argument to %s; found %d", anchorMethod, len(args))
	}

	artifact, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected %s argument type %T", anchorMethod, args[0])
	}

	return artifact, nil
}

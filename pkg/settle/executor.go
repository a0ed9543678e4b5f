// Package settle is the boundary to the on-chain settlement layer. The core
// never talks to the chain except through the Executor interface: a dry-run
// gate, a submission call, and receipt polling.
package settle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

// ErrChain marks submission or receipt-polling failures coming from the
// settlement boundary. They are per-trade failures, never process-fatal.
var ErrChain = errors.New("settlement chain error")

// Receipt is the minimal mined-transaction view the pipeline needs.
type Receipt struct {
	TxHash      common.Hash
	Succeeded   bool
	BlockNumber uint64
}

// Executor drives matches through the settlement contract.
//
// Simulate is a boolean gate, not an error path: any revert condition
// (expired deadline, bad signature, insufficient balance or allowance)
// yields false so the intake stage can drop doomed matches without
// exception-driven control flow. A non-nil error reports transport trouble
// only; the match is still not admitted.
type Executor interface {
	Simulate(ctx context.Context, m *order.Match) (bool, error)
	Execute(ctx context.Context, m *order.Match) (common.Hash, error)
	// PollReceipt returns (nil, nil) while the transaction is unmined.
	PollReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
}

// ChainClient is the slice of an ethclient.Client the executor uses.
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ContractExecutor submits trades to the settlement contract with a single
// exchange-operated signer. The signer's nonce sequence is strictly ordered
// on-chain; the pipeline's submission worker cap is the only thing keeping
// concurrent submissions from colliding on it.
type ContractExecutor struct {
	client   ChainClient
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	log      *zap.Logger
}

// NewContractExecutor wires an executor against an already-dialed client.
func NewContractExecutor(client ChainClient, contract common.Address, key *ecdsa.PrivateKey, chainID *big.Int, log *zap.Logger) (*ContractExecutor, error) {
	parsed, err := parseSettlementABI()
	if err != nil {
		return nil, fmt.Errorf("parse settlement abi: %w", err)
	}
	return &ContractExecutor{
		client:   client,
		abi:      parsed,
		contract: contract,
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		log:      log,
	}, nil
}

// From returns the exchange signer address.
func (e *ContractExecutor) From() common.Address { return e.from }

// Simulate dry-runs the trade with eth_call from the signer address.
func (e *ContractExecutor) Simulate(ctx context.Context, m *order.Match) (bool, error) {
	data, err := packTrade(e.abi, m)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChain, err)
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &e.contract,
		Data: data,
	}, nil)
	if err != nil {
		// Reverts surface as call errors; both reverts and transport
		// failures gate the match out. Transport trouble is still
		// reported so the caller can log it.
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: simulate trade %s: %v", ErrChain, m.PendingTradeID, err)
	}

	results, err := e.abi.Unpack("trade", out)
	if err != nil || len(results) != 1 {
		return false, nil
	}
	ok, _ := results[0].(bool)
	return ok, nil
}

// Execute signs and broadcasts the trade transaction, returning its hash.
func (e *ContractExecutor) Execute(ctx context.Context, m *order.Match) (common.Hash, error) {
	data, err := packTrade(e.abi, m)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrChain, err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: fetch nonce: %v", ErrChain, err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: suggest gas price: %v", ErrChain, err)
	}
	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &e.contract,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: estimate gas: %v", ErrChain, err)
	}

	tx := types.NewTransaction(nonce, e.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: sign trade tx: %v", ErrChain, err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send trade tx: %v", ErrChain, err)
	}

	e.log.Info("trade submitted",
		zap.String("trade_id", m.PendingTradeID),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return signed.Hash(), nil
}

// PollReceipt checks once for a mined receipt.
func (e *ContractExecutor) PollReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	r, err := e.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: receipt %s: %v", ErrChain, txHash.Hex(), err)
	}
	return &Receipt{
		TxHash:      txHash,
		Succeeded:   r.Status == types.ReceiptStatusSuccessful,
		BlockNumber: r.BlockNumber.Uint64(),
	}, nil
}

// isRevert distinguishes an EVM revert from plain transport failure. Revert
// data surfaces through the rpc DataError interface.
func isRevert(err error) bool {
	var dataErr interface{ ErrorData() interface{} }
	return errors.As(err, &dataErr)
}

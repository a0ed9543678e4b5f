package settle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/order"
)

type fakeClient struct {
	callOut     []byte
	callErr     error
	nonce       uint64
	sendErr     error
	sent        *types.Transaction
	receipt     *types.Receipt
	receiptErr  error
	receiptHash common.Hash
}

func (c *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.callOut, c.callErr
}

func (c *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 300_000, nil
}

func (c *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.sent = tx
	return c.sendErr
}

func (c *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.receiptHash = txHash
	return c.receipt, c.receiptErr
}

type revertError struct{ msg string }

func (e revertError) Error() string          { return e.msg }
func (e revertError) ErrorData() interface{} { return "0x08c379a0" }

func sampleMatch() *order.Match {
	return &order.Match{
		PendingTradeID:    "0xabc",
		MakerOrderID:      "0x1111",
		Maker:             common.HexToAddress("0x1000000000000000000000000000000000000001"),
		BaseToken:         common.HexToAddress("0x4200000000000000000000000000000000000006"),
		QuoteToken:        common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		BaseAmountFilled:  big.NewInt(1_000_000_000_000_000_000),
		QuoteAmountFilled: big.NewInt(2_500_000_000),
		MakerSignature:    "0x" + repeatHex("ab", 65),
		MakerTimestamp:    1700000000,
		MakerDeadline:     1800000000,
		MakerSalt:         "12345",
		MakerSide:         order.Sell,
		Taker:             common.HexToAddress("0x2000000000000000000000000000000000000002"),
		TakerOrderID:      "0x2222",
		TakerSignature:    "0x" + repeatHex("cd", 65),
		TakerTimestamp:    1700000010,
		TakerDeadline:     1800000000,
		TakerSalt:         "67890",
	}
}

func repeatHex(b string, n int) string {
	out := make([]byte, 0, len(b)*n)
	for i := 0; i < n; i++ {
		out = append(out, b...)
	}
	return string(out)
}

func newExecutor(t *testing.T, client *fakeClient) *ContractExecutor {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	exec, err := NewContractExecutor(
		client,
		common.HexToAddress("0x3000000000000000000000000000000000000003"),
		key,
		big.NewInt(8453),
		zap.NewNop(),
	)
	require.NoError(t, err)
	return exec
}

func TestPackTrade(t *testing.T) {
	contractABI, err := parseSettlementABI()
	require.NoError(t, err)

	data, err := packTrade(contractABI, sampleMatch())
	require.NoError(t, err)
	// 4-byte selector plus the encoded tuple.
	require.Greater(t, len(data), 4)

	method, err := contractABI.MethodById(data[:4])
	require.NoError(t, err)
	require.Equal(t, "trade", method.Name)
}

func TestPackTradeRejectsBadSignatureHex(t *testing.T) {
	contractABI, err := parseSettlementABI()
	require.NoError(t, err)

	m := sampleMatch()
	m.MakerSignature = "abcd"
	_, err = packTrade(contractABI, m)
	require.Error(t, err)

	m = sampleMatch()
	m.TakerSignature = "0xzz"
	_, err = packTrade(contractABI, m)
	require.Error(t, err)
}

func TestSimulateAccepts(t *testing.T) {
	contractABI, err := parseSettlementABI()
	require.NoError(t, err)
	out, err := contractABI.Methods["trade"].Outputs.Pack(true)
	require.NoError(t, err)

	exec := newExecutor(t, &fakeClient{callOut: out})
	ok, err := exec.Simulate(context.Background(), sampleMatch())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSimulateRevertIsNotAnError(t *testing.T) {
	exec := newExecutor(t, &fakeClient{callErr: revertError{msg: "execution reverted"}})
	ok, err := exec.Simulate(context.Background(), sampleMatch())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSimulateTransportFailure(t *testing.T) {
	exec := newExecutor(t, &fakeClient{callErr: errors.New("connection refused")})
	ok, err := exec.Simulate(context.Background(), sampleMatch())
	require.ErrorIs(t, err, ErrChain)
	require.False(t, ok)
}

func TestExecuteSignsAndSends(t *testing.T) {
	client := &fakeClient{nonce: 7}
	exec := newExecutor(t, client)

	hash, err := exec.Execute(context.Background(), sampleMatch())
	require.NoError(t, err)
	require.NotNil(t, client.sent)
	require.Equal(t, hash, client.sent.Hash())
	require.Equal(t, uint64(7), client.sent.Nonce())
	require.Equal(t, exec.contract, *client.sent.To())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), client.sent)
	require.NoError(t, err)
	require.Equal(t, exec.From(), sender)
}

func TestExecuteSendFailure(t *testing.T) {
	exec := newExecutor(t, &fakeClient{sendErr: errors.New("nonce too low")})
	_, err := exec.Execute(context.Background(), sampleMatch())
	require.ErrorIs(t, err, ErrChain)
}

func TestPollReceipt(t *testing.T) {
	txHash := common.HexToHash("0xdead")
	client := &fakeClient{receipt: &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(123),
	}}
	exec := newExecutor(t, client)

	r, err := exec.PollReceipt(context.Background(), txHash)
	require.NoError(t, err)
	require.True(t, r.Succeeded)
	require.Equal(t, uint64(123), r.BlockNumber)
	require.Equal(t, txHash, r.TxHash)
	require.Equal(t, txHash, client.receiptHash)
}

func TestPollReceiptUnmined(t *testing.T) {
	exec := newExecutor(t, &fakeClient{receiptErr: ethereum.NotFound})
	r, err := exec.PollReceipt(context.Background(), common.HexToHash("0xdead"))
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestPollReceiptReverted(t *testing.T) {
	client := &fakeClient{receipt: &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(124),
	}}
	exec := newExecutor(t, client)

	r, err := exec.PollReceipt(context.Background(), common.HexToHash("0xdead"))
	require.NoError(t, err)
	require.False(t, r.Succeeded)
}

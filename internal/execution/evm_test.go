package execution

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/registry"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	testWalletKey = "0x59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	testToken     = "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82"
)

type fakeEVM struct {
	mu sync.Mutex

	chainID       int64
	quotedOut     *big.Int
	tokenBalance  *big.Int
	allowance     *big.Int
	receiptStatus uint64
	simulateErr   error
	nonce         uint64

	sent []*types.Transaction
}

func newFakeEVM() *fakeEVM {
	return &fakeEVM{
		chainID:       56,
		quotedOut:     big.NewInt(1_000_000),
		tokenBalance:  big.NewInt(0),
		allowance:     big.NewInt(0),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

var (
	testRouterABI, _ = abi.JSON(strings.NewReader(registry.UniswapV2RouterABI))
	testERC20ABI, _  = abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
)

func (f *fakeEVM) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }

func (f *fakeEVM) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(25), big.NewInt(1e16)), nil
}

func (f *fakeEVM) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, nil
	}
	selector := msg.Data[:4]
	switch {
	case bytesEqual(selector, testRouterABI.Methods["getAmountsOut"].ID):
		args, err := testRouterABI.Methods["getAmountsOut"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		in := args[0].(*big.Int)
		return testRouterABI.Methods["getAmountsOut"].Outputs.Pack([]*big.Int{in, f.quotedOut})
	case bytesEqual(selector, testERC20ABI.Methods["balanceOf"].ID):
		return testERC20ABI.Methods["balanceOf"].Outputs.Pack(f.tokenBalance)
	case bytesEqual(selector, testERC20ABI.Methods["allowance"].ID):
		return testERC20ABI.Methods["allowance"].Outputs.Pack(f.allowance)
	}
	// Transaction simulation.
	return nil, f.simulateErr
}

func (f *fakeEVM) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 100_000, nil }

func (f *fakeEVM) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return nil, errors.New("method not supported")
}

func (f *fakeEVM) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(3_000_000_000)}, nil
}

func (f *fakeEVM) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeEVM) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeEVM) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.receiptStatus}, nil
}

func bytesEqual(a, b []byte) bool { return string(a) == string(b) }

func newTestEVMAdapter(t *testing.T, client *fakeEVM) *EVMAdapter {
	t.Helper()
	a, err := NewEVMAdapter(id.BSC, client, EVMOptions{PollInterval: time.Millisecond, ReceiptTimeout: time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEVMAdapter failed: %v", err)
	}
	a.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return a
}

func TestEVMAdapterRejectsNonEVMNetwork(t *testing.T) {
	if _, err := NewEVMAdapter(id.Solana, newFakeEVM(), EVMOptions{}, zerolog.Nop()); err == nil {
		t.Fatal("expected solana to be rejected")
	}
}

func TestEVMBalanceConvertsWei(t *testing.T) {
	a := newTestEVMAdapter(t, newFakeEVM())
	got, err := a.Balance(context.Background(), "0x0000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("expected 0.25, got %s", got)
	}
	if _, err := a.Balance(context.Background(), "not-an-address"); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestEVMGenerateWallets(t *testing.T) {
	a := newTestEVMAdapter(t, newFakeEVM())
	wallets, err := a.GenerateWallets(context.Background(), 3)
	if err != nil {
		t.Fatalf("GenerateWallets failed: %v", err)
	}
	if len(wallets) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(wallets))
	}
	seen := map[string]bool{}
	for _, w := range wallets {
		if !id.IsEVMAddress(w.PublicAddress) || w.PrivateKey == "" {
			t.Fatalf("malformed wallet %+v", w.PublicAddress)
		}
		if seen[w.PublicAddress] {
			t.Fatalf("duplicate wallet %s", w.PublicAddress)
		}
		seen[w.PublicAddress] = true
	}
}

func TestEVMBuySwapsExactNativeForTokens(t *testing.T) {
	client := newFakeEVM()
	a := newTestEVMAdapter(t, client)

	hash, err := a.ExecuteSwap(context.Background(), model.SwapRequest{
		Network:         id.BSC,
		PrivateKey:      testWalletKey,
		TokenAddress:    testToken,
		Amount:          decimal.RequireFromString("0.01"),
		SlippagePercent: decimal.NewFromInt(1),
		Side:            model.SideBuy,
	})
	if err != nil {
		t.Fatalf("ExecuteSwap failed: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(client.sent))
	}
	tx := client.sent[0]
	if hash != tx.Hash().Hex() {
		t.Fatalf("hash mismatch %s vs %s", hash, tx.Hash().Hex())
	}
	router, _, _ := registry.V2Contracts(id.BSC)
	if tx.To() == nil || *tx.To() != common.HexToAddress(router) {
		t.Fatalf("expected router target, got %v", tx.To())
	}
	if tx.Value().Cmp(big.NewInt(1e16)) != 0 {
		t.Fatalf("expected 0.01 BNB value, got %s", tx.Value())
	}
	if tx.Gas() != 120_000 {
		t.Fatalf("expected padded gas limit 120000, got %d", tx.Gas())
	}
	if tx.GasTipCap().Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Fatalf("expected 2 gwei fallback tip, got %s", tx.GasTipCap())
	}
	if tx.GasFeeCap().Cmp(big.NewInt(8_000_000_000)) != 0 {
		t.Fatalf("expected fee cap 2*base+tip, got %s", tx.GasFeeCap())
	}

	method, err := testRouterABI.MethodById(tx.Data()[:4])
	if err != nil || method.Name != "swapExactETHForTokens" {
		t.Fatalf("unexpected method %v err=%v", method, err)
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack swap args: %v", err)
	}
	if minOut := args[0].(*big.Int); minOut.Cmp(id.MinAmountOut(client.quotedOut, 100)) != 0 {
		t.Fatalf("unexpected min out %s", minOut)
	}
	if deadline := args[3].(*big.Int); deadline.Int64() != 1_700_000_000+600 {
		t.Fatalf("unexpected deadline %s", deadline)
	}
}

func TestEVMSellApprovesThenSwapsWholeBalance(t *testing.T) {
	client := newFakeEVM()
	client.tokenBalance = big.NewInt(5_000)
	a := newTestEVMAdapter(t, client)

	_, err := a.ExecuteSwap(context.Background(), model.SwapRequest{
		Network:         id.BSC,
		PrivateKey:      testWalletKey,
		TokenAddress:    testToken,
		SlippagePercent: decimal.NewFromInt(2),
		Side:            model.SideSell,
	})
	if err != nil {
		t.Fatalf("ExecuteSwap failed: %v", err)
	}
	if len(client.sent) != 2 {
		t.Fatalf("expected approve and swap, got %d transactions", len(client.sent))
	}
	approve, swap := client.sent[0], client.sent[1]
	if *approve.To() != common.HexToAddress(testToken) {
		t.Fatalf("expected approve against token, got %s", approve.To())
	}
	if approve.Nonce() != 0 || swap.Nonce() != 1 {
		t.Fatalf("unexpected nonces %d, %d", approve.Nonce(), swap.Nonce())
	}
	method, err := testRouterABI.MethodById(swap.Data()[:4])
	if err != nil || method.Name != "swapExactTokensForETH" {
		t.Fatalf("unexpected method %v err=%v", method, err)
	}
	args, _ := method.Inputs.Unpack(swap.Data()[4:])
	if amountIn := args[0].(*big.Int); amountIn.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("expected whole balance sold, got %s", amountIn)
	}
}

func TestEVMSellSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	client := newFakeEVM()
	client.tokenBalance = big.NewInt(5_000)
	client.allowance = big.NewInt(10_000)
	a := newTestEVMAdapter(t, client)

	_, err := a.ExecuteSwap(context.Background(), model.SwapRequest{
		Network: id.BSC, PrivateKey: testWalletKey, TokenAddress: testToken, Side: model.SideSell,
	})
	if err != nil {
		t.Fatalf("ExecuteSwap failed: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected only the swap, got %d transactions", len(client.sent))
	}
}

func TestEVMSellWithoutTokensFails(t *testing.T) {
	a := newTestEVMAdapter(t, newFakeEVM())
	_, err := a.ExecuteSwap(context.Background(), model.SwapRequest{
		Network: id.BSC, PrivateKey: testWalletKey, TokenAddress: testToken, Side: model.SideSell,
	})
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestEVMSwapErrors(t *testing.T) {
	buy := model.SwapRequest{
		Network: id.BSC, PrivateKey: testWalletKey, TokenAddress: testToken,
		Amount: decimal.RequireFromString("0.01"), Side: model.SideBuy,
	}

	t.Run("reverted", func(t *testing.T) {
		client := newFakeEVM()
		client.receiptStatus = types.ReceiptStatusFailed
		_, err := newTestEVMAdapter(t, client).ExecuteSwap(context.Background(), buy)
		if !clierr.Is(err, clierr.CodeReverted) {
			t.Fatalf("expected reverted error, got %v", err)
		}
	})
	t.Run("simulation", func(t *testing.T) {
		client := newFakeEVM()
		client.simulateErr = errors.New("execution reverted: INSUFFICIENT_OUTPUT_AMOUNT")
		_, err := newTestEVMAdapter(t, client).ExecuteSwap(context.Background(), buy)
		if !clierr.Is(err, clierr.CodeSimulation) {
			t.Fatalf("expected simulation error, got %v", err)
		}
		if len(client.sent) != 0 {
			t.Fatal("nothing should be broadcast after a failed simulation")
		}
	})
	t.Run("chain mismatch", func(t *testing.T) {
		client := newFakeEVM()
		client.chainID = 1
		_, err := newTestEVMAdapter(t, client).ExecuteSwap(context.Background(), buy)
		if !clierr.Is(err, clierr.CodeUnsupported) {
			t.Fatalf("expected unsupported error, got %v", err)
		}
	})
	t.Run("bad key", func(t *testing.T) {
		req := buy
		req.PrivateKey = "0xnotakey"
		_, err := newTestEVMAdapter(t, newFakeEVM()).ExecuteSwap(context.Background(), req)
		if !clierr.Is(err, clierr.CodeSigner) {
			t.Fatalf("expected signer error, got %v", err)
		}
		if strings.Contains(err.Error(), "notakey") {
			t.Fatal("error must not echo key material")
		}
	})
	t.Run("zero quote", func(t *testing.T) {
		client := newFakeEVM()
		client.quotedOut = big.NewInt(0)
		_, err := newTestEVMAdapter(t, client).ExecuteSwap(context.Background(), buy)
		if !clierr.Is(err, clierr.CodeUnsupported) {
			t.Fatalf("expected unsupported error, got %v", err)
		}
	})
}

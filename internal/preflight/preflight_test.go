package preflight

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBalances struct {
	mu       sync.Mutex
	balances map[string]string
	failAll  bool
	calls    []string
}

func (f *fakeBalances) Balance(_ context.Context, _ id.Network, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, address)
	if f.failAll {
		return decimal.Zero, errors.New("rpc down")
	}
	raw, ok := f.balances[address]
	if !ok {
		return decimal.Zero, errors.New("unknown wallet")
	}
	return decimal.RequireFromString(raw), nil
}

func sessionWith(wallets ...string) *session.Session {
	s := session.New(1)
	var ws []model.Wallet
	for _, w := range wallets {
		ws = append(ws, model.Wallet{PublicAddress: w, PrivateKey: "secret-" + w})
	}
	s.ReplaceWallets(id.Solana, ws)
	s.SetToken(id.Solana, "So11111111111111111111111111111111111111112")
	return s
}

func TestTokenNotSelected(t *testing.T) {
	src := &fakeBalances{}
	s := session.New(1)
	res := NewValidator(src).CanStartExecution(context.Background(), s)
	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, ReasonTokenNotSelected, res.Reason)
	assert.Empty(t, src.calls)
}

func TestNoWalletsForNetwork(t *testing.T) {
	src := &fakeBalances{}
	s := sessionWith()
	s.ReplaceWallets(id.BSC, []model.Wallet{{PublicAddress: "0xabc"}})
	res := NewValidator(src).CanStartExecution(context.Background(), s)
	assert.Equal(t, ReasonNoWallets, res.Reason)
	assert.Empty(t, src.calls)
}

func TestPrimaryWalletUnfundedStopsEarly(t *testing.T) {
	src := &fakeBalances{balances: map[string]string{"A": "0.009", "B": "5"}}
	res := NewValidator(src).CanStartExecution(context.Background(), sessionWith("A", "B"))
	assert.Equal(t, ReasonPrimaryUnfunded, res.Reason)
	assert.False(t, res.Swept)
	assert.Equal(t, []string{"A"}, src.calls)
}

func TestAllBalanceLookupsFail(t *testing.T) {
	src := &fakeBalances{failAll: true}
	res := NewValidator(src).CanStartExecution(context.Background(), sessionWith("A", "B", "C"))
	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, ReasonAllUnfunded, res.Reason)
	assert.True(t, res.Swept)
	assert.False(t, res.AnyFunded)
	require.Len(t, res.Balances, 3)
	for _, b := range res.Balances {
		assert.Equal(t, "Error", b.Display())
	}
}

func TestUnreadablePrimaryIsNeverTreatedAsFunded(t *testing.T) {
	src := &fakeBalances{balances: map[string]string{"B": "3"}}
	res := NewValidator(src).CanStartExecution(context.Background(), sessionWith("A", "B"))
	assert.Equal(t, ReasonPartiallyFunded, res.Reason)
	assert.True(t, res.AnyFunded)
	assert.False(t, res.AllFunded)
}

func TestSweepAllUnfundedAfterPrimaryPasses(t *testing.T) {
	// The primary reads funded first and then drains before the sweep.
	src := &drainingBalances{first: decimal.NewFromInt(1)}
	res := NewValidator(src).CanStartExecution(context.Background(), sessionWith("A", "B"))
	assert.True(t, res.Swept)
	assert.Equal(t, ReasonAllUnfunded, res.Reason)
	assert.False(t, res.AnyFunded)
	assert.False(t, res.AllFunded)
}

func TestPartiallyFundedIsBlockedButAnyFundedReported(t *testing.T) {
	src := &fakeBalances{balances: map[string]string{"A": "1", "B": "0.001"}}
	res := NewValidator(src).CanStartExecution(context.Background(), sessionWith("A", "B", "C"))
	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, ReasonPartiallyFunded, res.Reason)
	assert.True(t, res.AnyFunded)
	assert.False(t, res.AllFunded)
	require.Len(t, res.Balances, 3)
	assert.Error(t, res.Balances[2].Err, "unknown wallet counts as insufficient")
}

func TestPromptsInOrder(t *testing.T) {
	src := &fakeBalances{balances: map[string]string{"A": "0.01", "B": "2"}}
	v := NewValidator(src)
	s := sessionWith("A", "B")

	res := v.CanStartExecution(context.Background(), s)
	assert.Equal(t, StatusNeedsInput, res.Status)
	assert.Equal(t, PromptSpeed, res.Prompt)
	assert.True(t, res.AllFunded)

	s.Speed = model.SpeedFast
	assert.Equal(t, PromptSlippage, v.CanStartExecution(context.Background(), s).Prompt)

	s.SetSlippage(decimal.NewFromInt(1))
	assert.Equal(t, PromptBuyAmount, v.CanStartExecution(context.Background(), s).Prompt)

	s.SetBuyAmount(decimal.RequireFromString("0.001"))
	res = v.CanStartExecution(context.Background(), s)
	assert.True(t, res.Ready())
	assert.Equal(t, PromptNone, res.Prompt)
}

func TestCustomThreshold(t *testing.T) {
	src := &fakeBalances{balances: map[string]string{"A": "0.5"}}
	v := NewValidator(src, WithThreshold(decimal.NewFromInt(1)))
	assert.Equal(t, ReasonPrimaryUnfunded, v.CanStartExecution(context.Background(), sessionWith("A")).Reason)
	assert.True(t, v.Threshold().Equal(decimal.NewFromInt(1)))
}

type drainingBalances struct {
	mu    sync.Mutex
	first decimal.Decimal
	calls int
}

func (d *drainingBalances) Balance(context.Context, id.Network, string) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls == 1 {
		return d.first, nil
	}
	return decimal.Zero, nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu         sync.Mutex
	balances   map[string]string
	failSwaps  map[string]bool
	reverts    map[string]bool
	swaps      []model.SwapRequest
	balanceOps int
	nextTx     int
}

func (f *fakeExecutor) Balance(_ context.Context, _ id.Network, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceOps++
	raw, ok := f.balances[address]
	if !ok {
		return decimal.Zero, errors.New("rpc unavailable")
	}
	return decimal.RequireFromString(raw), nil
}

func (f *fakeExecutor) ExecuteSwap(_ context.Context, req model.SwapRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, req)
	for addr, fail := range f.failSwaps {
		if fail && req.PrivateKey == "key-"+addr {
			return "", errors.New("slippage exceeded")
		}
	}
	f.nextTx++
	tx := fmt.Sprintf("tx%d", f.nextTx)
	for addr, revert := range f.reverts {
		if revert && req.PrivateKey == "key-"+addr {
			return tx, errors.New("transaction reverted")
		}
	}
	return tx, nil
}

func zeroDelayPolicy() Policy {
	p := DefaultPolicy()
	p.InterRoundDelay = 0
	return p
}

func wallets(addrs ...string) []model.Wallet {
	out := make([]model.Wallet, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Wallet{PublicAddress: a, PrivateKey: "key-" + a})
	}
	return out
}

func cycle(side model.Side, speed model.Speed, ws []model.Wallet) Cycle {
	return Cycle{
		UserID:       42,
		Network:      id.Solana,
		TokenAddress: "So11111111111111111111111111111111111111112",
		Side:         side,
		Speed:        speed,
		Wallets:      ws,
		Amount:       decimal.RequireFromString("0.001"),
		Slippage:     decimal.NewFromInt(1),
	}
}

func TestPlanTotalsForEverySpeed(t *testing.T) {
	p := DefaultPolicy()
	for _, speed := range model.Speeds {
		tier, err := p.Tier(speed)
		require.NoError(t, err)
		for n := 1; n <= 20; n++ {
			plan, err := p.Plan(speed, n)
			require.NoError(t, err)
			assert.Equal(t, n*tier.Rate, plan.TotalOperations)
			wantRounds := (tier.Rate + tier.TxPerWalletPerRound - 1) / tier.TxPerWalletPerRound
			assert.Equal(t, wantRounds, plan.Rounds)

			sum := 0
			for _, size := range plan.RoundSizes() {
				sum += size
			}
			assert.Equal(t, plan.TotalOperations, sum)
		}
	}
}

func TestPlanModerateThreeWallets(t *testing.T) {
	plan, err := DefaultPolicy().Plan(model.SpeedModerate, 3)
	require.NoError(t, err)
	assert.Equal(t, 27, plan.TotalOperations)
	assert.Equal(t, 5, plan.Rounds)
	assert.Equal(t, []int{6, 6, 6, 6, 3}, plan.RoundSizes())
}

func TestPlanRejectsBadInput(t *testing.T) {
	_, err := DefaultPolicy().Plan(model.SpeedFast, 0)
	assert.Error(t, err)
	_, err = DefaultPolicy().Plan(model.Speed("warp"), 2)
	assert.Error(t, err)
}

func TestSpeedLabels(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, "🐢 Slow (4 trx/20s)", p.SpeedLabel(model.SpeedSlow))
	assert.Equal(t, "🚗 Moderate (9 trx/20s)", p.SpeedLabel(model.SpeedModerate))
	assert.Equal(t, "🚀 Fast (12 trx/20s)", p.SpeedLabel(model.SpeedFast))
}

func TestBuyCycleRunsFullBudgetWithProgressPerRound(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, zeroDelayPolicy())

	var events []Progress
	report, err := s.RunCycle(context.Background(), cycle(model.SideBuy, model.SpeedModerate, wallets("A", "B", "C")), func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 27, report.Sent)
	assert.Equal(t, 27, report.Succeeded)
	assert.Len(t, report.Operations, 27)
	assert.Len(t, exec.swaps, 27)
	assert.Zero(t, exec.balanceOps, "buys never re-check balances")
	require.Len(t, events, 5)
	assert.Equal(t, []int{6, 12, 18, 24, 27}, sentSeries(events))
	assert.Equal(t, "https://solscan.io/tx/tx1", report.Operations[0].URL)
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.Interrupted)
}

func TestFailuresAreLocalToTheOperation(t *testing.T) {
	exec := &fakeExecutor{failSwaps: map[string]bool{"B": true}}
	s := New(exec, zeroDelayPolicy())

	report, err := s.RunCycle(context.Background(), cycle(model.SideBuy, model.SpeedSlow, wallets("A", "B")), nil)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Sent)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 4, report.Failed)
	for _, op := range report.Operations {
		if op.Wallet == "B" {
			assert.Equal(t, "Error: slippage exceeded", op.Display())
		}
	}
}

func TestRevertedSwapKeepsItsHash(t *testing.T) {
	exec := &fakeExecutor{reverts: map[string]bool{"A": true}}
	s := New(exec, zeroDelayPolicy())

	report, err := s.RunCycle(context.Background(), cycle(model.SideBuy, model.SpeedSlow, wallets("A")), nil)
	require.NoError(t, err)
	require.Len(t, report.Operations, 4)
	assert.Equal(t, 4, report.Failed)
	op := report.Operations[0]
	assert.Equal(t, model.OperationFailed, op.Status)
	assert.Equal(t, "tx1", op.TxID)
	assert.Equal(t, "https://solscan.io/tx/tx1", op.URL)
	assert.Equal(t, "Error: transaction reverted (https://solscan.io/tx/tx1)", op.Display())
}

func TestProgressOncePerRoundForEverySpeed(t *testing.T) {
	p := zeroDelayPolicy()
	for _, speed := range model.Speeds {
		t.Run(string(speed), func(t *testing.T) {
			tier, err := p.Tier(speed)
			require.NoError(t, err)
			s := New(&fakeExecutor{}, p, WithSleep(func(context.Context, time.Duration) error { return nil }))

			var events []Progress
			report, err := s.RunCycle(context.Background(), cycle(model.SideBuy, speed, wallets("A", "B")), func(pr Progress) {
				events = append(events, pr)
			})
			require.NoError(t, err)

			rounds := (tier.Rate + tier.TxPerWalletPerRound - 1) / tier.TxPerWalletPerRound
			require.Len(t, events, rounds)
			assert.Equal(t, 2*tier.Rate, events[len(events)-1].Sent)
			assert.Equal(t, 2*tier.Rate, report.Sent)
		})
	}
}

func TestSellSkipsLowOrUnreadableBalances(t *testing.T) {
	exec := &fakeExecutor{balances: map[string]string{"A": "0.5", "B": "0.0019"}}
	s := New(exec, zeroDelayPolicy())

	report, err := s.RunCycle(context.Background(), cycle(model.SideSell, model.SpeedFast, wallets("A", "B", "C")), nil)
	require.NoError(t, err)

	assert.Equal(t, 36, report.TotalOperations)
	assert.Equal(t, 36, report.Sent, "skips still count toward the budget")
	assert.Equal(t, 12, report.Succeeded)
	assert.Equal(t, []string{"B", "C"}, report.Skipped)
	for _, req := range exec.swaps {
		assert.Equal(t, "key-A", req.PrivateKey, "only the funded wallet may swap")
		assert.Equal(t, model.SideSell, req.Side)
	}
	skips := 0
	for _, op := range report.Operations {
		if op.Status == model.OperationSkipped {
			skips++
			assert.Contains(t, op.Display(), "Skipped (low balance): ")
		}
	}
	assert.Equal(t, 24, skips)
}

func TestCancellationStopsAtInterRoundWait(t *testing.T) {
	exec := &fakeExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	waits := 0
	s := New(exec, DefaultPolicy(), WithSleep(func(ctx context.Context, d time.Duration) error {
		waits++
		assert.Equal(t, 20*time.Second, d)
		cancel()
		return ctx.Err()
	}))

	report, err := s.RunCycle(ctx, cycle(model.SideBuy, model.SpeedSlow, wallets("A", "B")), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 1, waits)
	assert.Equal(t, 2, report.Sent)
	assert.Len(t, report.Operations, 2)
}

func TestNoWaitAfterLastRound(t *testing.T) {
	waits := 0
	s := New(&fakeExecutor{}, DefaultPolicy(), WithSleep(func(context.Context, time.Duration) error {
		waits++
		return nil
	}))
	_, err := s.RunCycle(context.Background(), cycle(model.SideBuy, model.SpeedFast, wallets("A")), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, waits, "three rounds wait twice")
}

func TestRunCycleValidatesInput(t *testing.T) {
	s := New(&fakeExecutor{}, zeroDelayPolicy())
	_, err := s.RunCycle(context.Background(), cycle(model.Side("hold"), model.SpeedSlow, wallets("A")), nil)
	assert.Error(t, err)
	_, err = s.RunCycle(context.Background(), cycle(model.SideBuy, model.SpeedSlow, nil), nil)
	assert.Error(t, err)
}

func sentSeries(events []Progress) []int {
	out := make([]int, 0, len(events))
	for _, e := range events {
		out = append(out, e.Sent)
	}
	return out
}

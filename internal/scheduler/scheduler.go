package scheduler

import (
	"context"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/registry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Executor is the chain access a cycle needs.
type Executor interface {
	Balance(ctx context.Context, network id.Network, address string) (decimal.Decimal, error)
	ExecuteSwap(ctx context.Context, req model.SwapRequest) (string, error)
}

// Cycle is one buy or sell run over a wallet set.
type Cycle struct {
	UserID       int64
	Network      id.Network
	TokenAddress string
	Side         model.Side
	Speed        model.Speed
	Wallets      []model.Wallet
	Amount       decimal.Decimal
	Slippage     decimal.Decimal
}

// Progress is emitted once per finished round.
type Progress struct {
	Side   model.Side
	Sent   int
	Total  int
	Round  int
	Rounds int
}

type Scheduler struct {
	policy  Policy
	exec    Executor
	log     zerolog.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	newID   func() string
}

type Option func(*Scheduler)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithSleep replaces the inter-round wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(exec Executor, policy Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		policy: policy,
		exec:   exec,
		log:    zerolog.Nop(),
		sleep:  sleepContext,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Policy() Policy { return s.policy }

// RunCycle issues the cycle's whole operation budget round by round. A failed
// or skipped operation is recorded and the cycle moves on. Cancellation is
// honoured between rounds; the partial report comes back with ctx.Err().
func (s *Scheduler) RunCycle(ctx context.Context, c Cycle, progress func(Progress)) (model.CycleReport, error) {
	if !c.Side.Valid() {
		return model.CycleReport{}, clierr.New(clierr.CodeUsage, "side must be buy or sell")
	}
	plan, err := s.policy.Plan(c.Speed, len(c.Wallets))
	if err != nil {
		return model.CycleReport{}, err
	}

	report := model.CycleReport{
		ID:              s.newID(),
		UserID:          c.UserID,
		Network:         c.Network,
		TokenAddress:    c.TokenAddress,
		Side:            c.Side,
		Speed:           c.Speed,
		TotalOperations: plan.TotalOperations,
		Rounds:          plan.Rounds,
		Operations:      make([]model.Operation, 0, plan.TotalOperations),
		StartedAt:       s.now().UTC(),
	}
	log := s.log.With().
		Str("cycle", report.ID).
		Int64("user_id", c.UserID).
		Str("network", c.Network.String()).
		Str("side", string(c.Side)).
		Logger()
	log.Info().Int("wallets", plan.Wallets).Int("total", plan.TotalOperations).Int("rounds", plan.Rounds).Msg("cycle started")

	skipped := map[string]bool{}
	for round := 1; round <= plan.Rounds; round++ {
		for _, wallet := range c.Wallets {
			for t := 0; t < plan.TxPerWalletPerRound && report.Sent < plan.TotalOperations; t++ {
				op := s.runOperation(ctx, log, c, wallet, round)
				report.Operations = append(report.Operations, op)
				report.Sent++
				switch op.Status {
				case model.OperationSucceeded:
					report.Succeeded++
				case model.OperationFailed:
					report.Failed++
				case model.OperationSkipped:
					if !skipped[wallet.PublicAddress] {
						skipped[wallet.PublicAddress] = true
						report.Skipped = append(report.Skipped, wallet.PublicAddress)
					}
				}
				s.metrics.ObserveOperation(c.Network.String(), string(c.Side), string(op.Status))
			}
		}

		if progress != nil {
			progress(Progress{Side: c.Side, Sent: report.Sent, Total: plan.TotalOperations, Round: round, Rounds: plan.Rounds})
		}
		if report.Sent < plan.TotalOperations {
			if err := s.sleep(ctx, s.policy.InterRoundDelay); err != nil {
				report.Interrupted = true
				s.finish(log, &report)
				return report, err
			}
		}
	}

	s.finish(log, &report)
	return report, nil
}

func (s *Scheduler) runOperation(ctx context.Context, log zerolog.Logger, c Cycle, wallet model.Wallet, round int) model.Operation {
	op := model.Operation{Round: round, Wallet: wallet.PublicAddress, Side: c.Side}

	if c.Side == model.SideSell {
		bal, err := s.exec.Balance(ctx, c.Network, wallet.PublicAddress)
		if err != nil || bal.LessThan(s.policy.GasFloor) {
			ev := log.Warn().Str("wallet", wallet.PublicAddress)
			if err != nil {
				ev = ev.Err(err)
			} else {
				ev = ev.Str("balance", bal.String())
			}
			ev.Msg("sell skipped: low balance")
			op.Status = model.OperationSkipped
			return op
		}
	}

	txID, err := s.exec.ExecuteSwap(ctx, model.SwapRequest{
		Network:         c.Network,
		PrivateKey:      wallet.PrivateKey,
		TokenAddress:    c.TokenAddress,
		Amount:          c.Amount,
		SlippagePercent: c.Slippage,
		Side:            c.Side,
	})
	if err != nil {
		log.Warn().Err(err).Str("wallet", wallet.PublicAddress).Str("tx", txID).Int("round", round).Msg("swap failed")
		op.Status = model.OperationFailed
		op.Error = err.Error()
		// A reverted or unconfirmed swap still has a hash worth linking.
		if txID != "" {
			op.TxID = txID
			op.URL = registry.ExplorerTxURL(c.Network, txID)
		}
		return op
	}
	log.Info().Str("wallet", wallet.PublicAddress).Str("tx", txID).Int("round", round).Msg("swap sent")
	op.Status = model.OperationSucceeded
	op.TxID = txID
	op.URL = registry.ExplorerTxURL(c.Network, txID)
	return op
}

func (s *Scheduler) finish(log zerolog.Logger, report *model.CycleReport) {
	report.FinishedAt = s.now().UTC()
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	s.metrics.ObserveCycle(report.Network.String(), string(report.Side), report.Interrupted, elapsed)
	log.Info().
		Int("sent", report.Sent).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped_wallets", len(report.Skipped)).
		Bool("interrupted", report.Interrupted).
		Dur("elapsed", elapsed).
		Msg("cycle finished")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

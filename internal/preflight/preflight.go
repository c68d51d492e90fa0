package preflight

import (
	"context"

	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/session"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultFundingThreshold is the native balance every wallet needs before a
// cycle may start.
var DefaultFundingThreshold = decimal.RequireFromString("0.01")

type Status string

const (
	StatusReady      Status = "ready"
	StatusBlocked    Status = "blocked"
	StatusNeedsInput Status = "needs_input"
)

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTokenNotSelected Reason = "token_not_selected"
	ReasonNoWallets        Reason = "no_wallets"
	ReasonPrimaryUnfunded  Reason = "primary_unfunded"
	ReasonAllUnfunded      Reason = "all_unfunded"
	ReasonPartiallyFunded  Reason = "partially_funded"
)

type Prompt string

const (
	PromptNone      Prompt = ""
	PromptSpeed     Prompt = "speed"
	PromptSlippage  Prompt = "slippage"
	PromptBuyAmount Prompt = "buy_amount"
)

// Result is the outcome of a start attempt. AnyFunded and AllFunded are only
// meaningful when Swept is true.
type Result struct {
	Status    Status
	Reason    Reason
	Prompt    Prompt
	Swept     bool
	AnyFunded bool
	AllFunded bool
	Balances  []model.WalletBalance
}

func (r Result) Ready() bool { return r.Status == StatusReady }

// BalanceSource reads a wallet's native balance.
type BalanceSource interface {
	Balance(ctx context.Context, network id.Network, address string) (decimal.Decimal, error)
}

type Validator struct {
	balances  BalanceSource
	threshold decimal.Decimal
	log       zerolog.Logger
	metrics   *observability.Metrics
}

type Option func(*Validator)

func WithThreshold(threshold decimal.Decimal) Option {
	return func(v *Validator) {
		if threshold.IsPositive() {
			v.threshold = threshold
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(v *Validator) { v.log = log }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

func NewValidator(balances BalanceSource, opts ...Option) *Validator {
	v := &Validator{
		balances:  balances,
		threshold: DefaultFundingThreshold,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Threshold() decimal.Decimal { return v.threshold }

// CanStartExecution runs the start checks in order and stops at the first
// failure. Missing configuration is reported as a prompt, not a failure.
func (v *Validator) CanStartExecution(ctx context.Context, s *session.Session) Result {
	res := v.check(ctx, s)
	v.metrics.ObservePreflight(string(res.Status), string(res.Reason))
	return res
}

func (v *Validator) check(ctx context.Context, s *session.Session) Result {
	if !s.HasToken() {
		return blocked(ReasonTokenNotSelected)
	}
	network := s.TradeNetwork
	wallets := s.TradeWallets()
	if len(wallets) == 0 {
		return blocked(ReasonNoWallets)
	}

	// A readable but low primary balance is the quick rejection. An unreadable
	// one falls through to the sweep, which still counts it as unfunded.
	primary := v.read(ctx, network, wallets[0].PublicAddress)
	if primary.Err == nil && !primary.AtLeast(v.threshold) {
		res := blocked(ReasonPrimaryUnfunded)
		res.Balances = []model.WalletBalance{primary}
		return res
	}

	res := Result{Swept: true, AllFunded: true}
	for _, w := range wallets {
		reading := v.read(ctx, network, w.PublicAddress)
		res.Balances = append(res.Balances, reading)
		if reading.AtLeast(v.threshold) {
			res.AnyFunded = true
		} else {
			res.AllFunded = false
		}
	}
	switch {
	case !res.AnyFunded:
		res.Status, res.Reason = StatusBlocked, ReasonAllUnfunded
		return res
	case !res.AllFunded:
		res.Status, res.Reason = StatusBlocked, ReasonPartiallyFunded
		return res
	}

	if prompt := NextPrompt(s); prompt != PromptNone {
		res.Status, res.Prompt = StatusNeedsInput, prompt
		return res
	}
	res.Status = StatusReady
	return res
}

func (v *Validator) read(ctx context.Context, network id.Network, address string) model.WalletBalance {
	bal, err := v.balances.Balance(ctx, network, address)
	if err != nil {
		v.log.Warn().Err(err).Str("network", network.String()).Str("wallet", address).Msg("balance lookup failed")
		return model.WalletBalance{Wallet: address, Err: err}
	}
	return model.WalletBalance{Wallet: address, Balance: bal}
}

// NextPrompt names the first configuration input still missing.
func NextPrompt(s *session.Session) Prompt {
	switch {
	case !s.Speed.Valid():
		return PromptSpeed
	case !s.SlippageSet:
		return PromptSlippage
	case !s.BuyAmountSet:
		return PromptBuyAmount
	}
	return PromptNone
}

func blocked(reason Reason) Result {
	return Result{Status: StatusBlocked, Reason: reason}
}

package scheduler

import (
	"fmt"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/shopspring/decimal"
)

// Tier is the throttle for one speed: Rate operations per wallet per cycle,
// issued TxPerWalletPerRound at a time.
type Tier struct {
	Rate                int
	TxPerWalletPerRound int
}

// Policy is the whole throttling configuration.
type Policy struct {
	Tiers           map[model.Speed]Tier
	InterRoundDelay time.Duration
	// GasFloor is the native balance a wallet needs before it may sell.
	GasFloor decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		Tiers: map[model.Speed]Tier{
			model.SpeedSlow:     {Rate: 4, TxPerWalletPerRound: 1},
			model.SpeedModerate: {Rate: 9, TxPerWalletPerRound: 2},
			model.SpeedFast:     {Rate: 12, TxPerWalletPerRound: 4},
		},
		InterRoundDelay: 20 * time.Second,
		GasFloor:        decimal.RequireFromString("0.002"),
	}
}

func (p Policy) Tier(speed model.Speed) (Tier, error) {
	tier, ok := p.Tiers[speed]
	if !ok || tier.Rate <= 0 || tier.TxPerWalletPerRound <= 0 {
		return Tier{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported speed %q", speed))
	}
	return tier, nil
}

// SpeedLabel is the menu label for a speed, e.g. "🐢 Slow (4 trx/20s)".
func (p Policy) SpeedLabel(speed model.Speed) string {
	tier, err := p.Tier(speed)
	if err != nil {
		return string(speed)
	}
	icon, name := "", string(speed)
	switch speed {
	case model.SpeedSlow:
		icon, name = "🐢", "Slow"
	case model.SpeedModerate:
		icon, name = "🚗", "Moderate"
	case model.SpeedFast:
		icon, name = "🚀", "Fast"
	}
	return fmt.Sprintf("%s %s (%d trx/%s)", icon, name, tier.Rate, formatWindow(p.InterRoundDelay))
}

func formatWindow(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}

// Plan is the computed schedule for one cycle.
type Plan struct {
	Speed               model.Speed `json:"speed"`
	Wallets             int         `json:"wallets"`
	Rate                int         `json:"rate"`
	TxPerWalletPerRound int         `json:"tx_per_wallet_per_round"`
	TotalOperations     int         `json:"total_operations"`
	Rounds              int         `json:"rounds"`
}

func (p Policy) Plan(speed model.Speed, wallets int) (Plan, error) {
	if wallets < 1 {
		return Plan{}, clierr.New(clierr.CodeUsage, "at least one wallet is required")
	}
	tier, err := p.Tier(speed)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Speed:               speed,
		Wallets:             wallets,
		Rate:                tier.Rate,
		TxPerWalletPerRound: tier.TxPerWalletPerRound,
		TotalOperations:     wallets * tier.Rate,
		Rounds:              (tier.Rate + tier.TxPerWalletPerRound - 1) / tier.TxPerWalletPerRound,
	}, nil
}

// RoundSizes is the number of operations each round issues once the total
// budget is applied.
func (p Plan) RoundSizes() []int {
	sizes := make([]int, 0, p.Rounds)
	sent := 0
	for round := 0; round < p.Rounds; round++ {
		n := 0
		for w := 0; w < p.Wallets; w++ {
			for t := 0; t < p.TxPerWalletPerRound && sent < p.TotalOperations; t++ {
				sent++
				n++
			}
		}
		sizes = append(sizes, n)
	}
	return sizes
}

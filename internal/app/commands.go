package app

import (
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/providers"
	"github.com/ggonzalez94/volume-bot/internal/providers/jupiter"
	"github.com/spf13/cobra"
)

type classification struct {
	Address  string     `json:"address"`
	Hint     string     `json:"hint,omitempty"`
	Network  id.Network `json:"network"`
	Resolved bool       `json:"resolved"`
}

func (s *runtimeState) newClassifyCommand() *cobra.Command {
	var hint string
	cmd := &cobra.Command{
		Use:   "classify <address>",
		Short: "Infer the network of a token address from its shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hinted id.Network
			if strings.TrimSpace(hint) != "" {
				n, err := id.ParseNetwork(hint)
				if err != nil {
					return err
				}
				hinted = n
			}
			network, ok := id.Classify(args[0], hinted)
			if !ok {
				return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("cannot infer a network for %q", args[0]))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), classification{
				Address:  strings.TrimSpace(args[0]),
				Hint:     string(hinted),
				Network:  network,
				Resolved: true,
			}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&hint, "hint", "", "Network hint for 0x addresses (bsc|ethereum)")
	return cmd
}

func (s *runtimeState) newIdentifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "identify <address>",
		Short: "Look up token metadata, falling back to the address classifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := strings.TrimSpace(args[0])
			res, err := s.tokenLookup(nil).Lookup(cmd.Context(), address)
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			if res.Token != nil {
				return s.emitSuccess(path, res.Token, nil, res.Cache)
			}
			network, ok := id.Classify(address, "")
			if !ok {
				return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("token %s is not listed and its network cannot be inferred", address))
			}
			info := model.TokenInfo{Address: address, Network: network, FetchedAt: s.runner.now().UTC().Format(time.RFC3339)}
			warnings := []string{"token is not listed; network inferred from the address format"}
			return s.emitSuccess(path, info, warnings, res.Cache)
		},
	}
}

type planOutput struct {
	Label           string `json:"label"`
	Speed           string `json:"speed"`
	Wallets         int    `json:"wallets"`
	Rate            int    `json:"rate"`
	TxPerRound      int    `json:"tx_per_wallet_per_round"`
	TotalOperations int    `json:"total_operations"`
	Rounds          int    `json:"rounds"`
	RoundSizes      []int  `json:"round_sizes"`
	InterRoundDelay string `json:"inter_round_delay"`
	GasFloor        string `json:"gas_floor"`
}

func (s *runtimeState) newPlanCommand() *cobra.Command {
	var (
		speed   string
		wallets int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how a cycle would be split into rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			sp := model.Speed(strings.ToLower(strings.TrimSpace(speed)))
			if !sp.Valid() {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown speed %q (slow|moderate|fast)", speed))
			}
			policy := s.tradePolicy()
			plan, err := policy.Plan(sp, wallets)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), planOutput{
				Label:           policy.SpeedLabel(sp),
				Speed:           string(plan.Speed),
				Wallets:         plan.Wallets,
				Rate:            plan.Rate,
				TxPerRound:      plan.TxPerWalletPerRound,
				TotalOperations: plan.TotalOperations,
				Rounds:          plan.Rounds,
				RoundSizes:      plan.RoundSizes(),
				InterRoundDelay: policy.InterRoundDelay.String(),
				GasFloor:        policy.GasFloor.String(),
			}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&speed, "speed", "", "Speed tier (slow|moderate|fast)")
	cmd.Flags().IntVar(&wallets, "wallets", 1, "Number of trading wallets")
	_ = cmd.MarkFlagRequired("speed")
	return cmd
}

type generatedWallet struct {
	Network    id.Network `json:"network"`
	Address    string     `json:"address"`
	PrivateKey string     `json:"private_key"`
}

func (s *runtimeState) newWalletsCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallets", Short: "Wallet commands"}

	var (
		network string
		count   int
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate trading wallets offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id.ParseNetwork(network)
			if err != nil {
				return err
			}
			if count < 1 || count > s.settings.MaxWallets {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("count must be between 1 and %d", s.settings.MaxWallets))
			}
			chains, err := s.chainRegistry(cmd.Context())
			if err != nil {
				return err
			}
			wallets, err := chains.GenerateWallets(cmd.Context(), n, count)
			if err != nil {
				return err
			}
			out := make([]generatedWallet, 0, len(wallets))
			for _, w := range wallets {
				out = append(out, generatedWallet{Network: n, Address: w.PublicAddress, PrivateKey: w.PrivateKey})
			}
			warnings := []string{"output contains private keys; store it securely"}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, warnings, cacheMetaBypass())
		},
	}
	generate.Flags().StringVar(&network, "network", "", "Network (solana|bsc|ethereum)")
	generate.Flags().IntVar(&count, "count", 1, "Number of wallets")
	_ = generate.MarkFlagRequired("network")

	root.AddCommand(generate)
	return root
}

type balanceOutput struct {
	Network id.Network `json:"network"`
	Address string     `json:"address"`
	Balance string     `json:"balance"`
	Symbol  string     `json:"symbol"`
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var network, address string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Read a wallet's native balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id.ParseNetwork(network)
			if err != nil {
				return err
			}
			chains, err := s.chainRegistry(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := chains.Balance(cmd.Context(), n, strings.TrimSpace(address))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), balanceOutput{
				Network: n,
				Address: strings.TrimSpace(address),
				Balance: balance.String(),
				Symbol:  n.NativeSymbol(),
			}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "Network (solana|bsc|ethereum)")
	cmd.Flags().StringVar(&address, "address", "", "Wallet address")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (s *runtimeState) newCyclesCommand() *cobra.Command {
	root := &cobra.Command{Use: "cycles", Short: "Inspect recorded buy and sell cycles"}

	var (
		userID int64
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent cycles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.journal == nil {
				return clierr.New(clierr.CodeUnavailable, "cycle journal is not open")
			}
			reports, err := s.journal.List(cmd.Context(), userID, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list cycles", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), reports, nil, cacheMetaBypass())
		},
	}
	list.Flags().Int64Var(&userID, "user", 0, "Only cycles of this Telegram user ID")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of cycles")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one cycle with its operation log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.journal == nil {
				return clierr.New(clierr.CodeUnavailable, "cycle journal is not open")
			}
			report, err := s.journal.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeInternal, "read cycle", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report, nil, cacheMetaBypass())
		},
	}

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Upstream provider commands"}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List upstream providers and API key metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tokens providers.TokenIdentifier = s.tokenLookup(nil)
			var swaps providers.Provider = jupiter.New(s.http, s.settings.JupiterAPIKey)
			infos := []providers.Info{tokens.Info(), swaps.Info()}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, nil, cacheMetaBypass())
		},
	})
	return root
}

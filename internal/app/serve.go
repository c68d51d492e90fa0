package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/bot"
	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/httpx"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/preflight"
	"github.com/ggonzalez94/volume-bot/internal/scheduler"
	"github.com/ggonzalez94/volume-bot/internal/session"
	"github.com/ggonzalez94/volume-bot/internal/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot with its health and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(s.settings.TelegramToken) == "" {
				return clierr.New(clierr.CodeAuth, "telegram token is required (VOLUMEBOT_TELEGRAM_TOKEN or TELEGRAM_TOKEN)")
			}
			if strings.TrimSpace(listen) != "" {
				s.settings.ListenAddr = strings.TrimSpace(listen)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Health and metrics listen address (default :3000)")
	return cmd
}

func (s *runtimeState) serve(ctx context.Context) error {
	settings := s.settings
	log := s.log

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	chains, err := s.chainRegistry(ctx)
	if err != nil {
		return err
	}
	policy := s.tradePolicy()
	cycles := scheduler.New(chains, policy,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(metrics),
	)
	validatorOpts := []preflight.Option{preflight.WithLogger(log), preflight.WithMetrics(metrics)}
	if settings.FundingThreshold.IsPositive() {
		validatorOpts = append(validatorOpts, preflight.WithThreshold(settings.FundingThreshold))
	}
	validator := preflight.NewValidator(chains, validatorOpts...)

	// The long poll holds the request open for PollTimeout.
	tgHTTP := httpx.New(settings.PollTimeout+settings.Timeout, settings.Retries)
	tg := telegram.New(tgHTTP, settings.TelegramToken).WithBaseURL(settings.TelegramAPIBase)

	sessions := session.NewStore()
	cfg := bot.Config{
		Sessions:   sessions,
		Chain:      chains,
		Tokens:     s.tokenLookup(metrics),
		Validator:  validator,
		Cycles:     cycles,
		Transport:  telegram.NewTransport(tg),
		MaxWallets: settings.MaxWallets,
		Log:        log,
		Metrics:    metrics,
	}
	if s.journal != nil {
		cfg.Journal = s.journal
	}
	machine, err := bot.New(cfg)
	if err != nil {
		return err
	}

	server := observability.NewServer(settings.ListenAddr, reg, log)
	_ = server.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("health server shutdown")
		}
	}()

	if settings.SessionIdleTTL > 0 {
		go evictIdle(ctx, sessions, settings.SessionIdleTTL, metrics, log)
	}

	log.Info().
		Strs("networks", networkNames(chains.Networks())).
		Str("listen", settings.ListenAddr).
		Dur("inter_round_delay", policy.InterRoundDelay).
		Msg("volume bot starting")

	poller := telegram.NewPoller(tg, machine, telegram.PollerOptions{
		Timeout:      settings.PollTimeout,
		AllowedUsers: settings.AllowedUsers,
		Log:          log,
		Metrics:      metrics,
	})
	if err := poller.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("volume bot stopped")
	return nil
}

func evictIdle(ctx context.Context, sessions *session.Store, ttl time.Duration, metrics *observability.Metrics, log zerolog.Logger) {
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.EvictIdle(ttl); n > 0 {
				log.Debug().Int("evicted", n).Msg("idle sessions evicted")
			}
			metrics.SetActiveSessions(sessions.Len())
		}
	}
}

func networkNames(networks []id.Network) []string {
	out := make([]string, 0, len(networks))
	for _, n := range networks {
		out = append(out, n.String())
	}
	return out
}

package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/cache"
	"github.com/ggonzalez94/volume-bot/internal/config"
	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/execution"
	"github.com/ggonzalez94/volume-bot/internal/httpx"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/out"
	"github.com/ggonzalez94/volume-bot/internal/policy"
	"github.com/ggonzalez94/volume-bot/internal/version"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	log         zerolog.Logger

	http    *httpx.Client
	cache   *cache.Store
	journal *execution.Journal
	chains  *execution.Registry
	closers []func()
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: zerolog.Nop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}

	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Multi-chain Telegram volume bot",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			log, err := observability.NewLogger(s.runner.stderr, settings.LogLevel, settings.LogFormat)
			if err != nil {
				return err
			}
			s.log = log
			if s.http == nil {
				s.http = httpx.New(settings.Timeout, settings.Retries)
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			if shouldOpenJournal(path, settings.JournalEnabled) && s.journal == nil {
				journal, err := execution.OpenJournal(settings.JournalPath, settings.JournalLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cycle journal", err)
				}
				s.journal = journal
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	s.flags.Bind(cmd.PersistentFlags())

	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newClassifyCommand())
	cmd.AddCommand(s.newIdentifyCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newWalletsCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newCyclesCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
	}
	if s.cache != nil {
		_ = s.cache.Close()
		s.cache = nil
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, out.OptionsFrom(s.settings))
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = clierr.TypeName(cErr.Code)
	}

	opts := out.OptionsFrom(s.settings)
	opts.ResultsOnly = false
	opts.Select = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, opts)
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "serve", "identify":
		return true
	default:
		return false
	}
}

func shouldOpenJournal(commandPath string, enabled bool) bool {
	path := normalizeCommandPath(commandPath)
	if strings.HasPrefix(path, "cycles") {
		return true
	}
	return enabled && path == "serve"
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

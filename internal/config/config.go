package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides. Legacy unprefixed names are
// read as a fallback.
const EnvPrefix = "VOLUMEBOT"

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	LogLevel       string
	LogFormat      string
	NoCache        bool
}

// Bind registers the global flags on fs. Retries defaults to -1 so an unset
// flag does not override the configured value.
func (f *GlobalFlags) Bind(fs *pflag.FlagSet) {
	fs.BoolVar(&f.JSON, "json", false, "Output JSON (default)")
	fs.BoolVar(&f.Plain, "plain", false, "Output plain text")
	fs.StringVar(&f.Select, "select", "", "Select fields from data (comma-separated)")
	fs.BoolVar(&f.ResultsOnly, "results-only", false, "Output only data payload")
	fs.StringVar(&f.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	fs.StringVar(&f.Timeout, "timeout", "", "Outbound request timeout")
	fs.IntVar(&f.Retries, "retries", -1, "Retries per outbound request")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace|debug|info|warn|error)")
	fs.StringVar(&f.LogFormat, "log-format", "", "Log format (json|console)")
	fs.BoolVar(&f.NoCache, "no-cache", false, "Disable the token metadata cache")
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&f.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int

	LogLevel  string
	LogFormat string

	TelegramToken   string
	TelegramAPIBase string
	PollTimeout     time.Duration
	AllowedUsers    []int64
	ListenAddr      string

	SolanaRPCURL   string
	BSCRPCURL      string
	EthereumRPCURL string

	JupiterAPIKey       string
	PriorityFeeLamports uint64
	GasMultiplier       float64
	ReceiptTimeout      time.Duration

	InterRoundDelay  time.Duration
	MaxWallets       int
	FundingThreshold decimal.Decimal
	GasFloor         decimal.Decimal

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	TokenTTL      time.Duration
	MaxStale      time.Duration

	JournalEnabled  bool
	JournalPath     string
	JournalLockPath string

	SessionIdleTTL time.Duration
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telegram struct {
		Token        string  `yaml:"token"`
		TokenEnv     string  `yaml:"token_env"`
		APIBase      string  `yaml:"api_base"`
		PollTimeout  string  `yaml:"poll_timeout"`
		AllowedUsers []int64 `yaml:"allowed_users"`
	} `yaml:"telegram"`
	HTTP struct {
		Listen string `yaml:"listen"`
	} `yaml:"http"`
	RPC struct {
		Solana   string `yaml:"solana"`
		BSC      string `yaml:"bsc"`
		Ethereum string `yaml:"ethereum"`
	} `yaml:"rpc"`
	Jupiter struct {
		APIKey              string  `yaml:"api_key"`
		APIKeyEnv           string  `yaml:"api_key_env"`
		PriorityFeeLamports *uint64 `yaml:"priority_fee_lamports"`
	} `yaml:"jupiter"`
	EVM struct {
		GasMultiplier  *float64 `yaml:"gas_multiplier"`
		ReceiptTimeout string   `yaml:"receipt_timeout"`
	} `yaml:"evm"`
	Trading struct {
		InterRoundDelay  string `yaml:"inter_round_delay"`
		MaxWallets       *int   `yaml:"max_wallets"`
		FundingThreshold string `yaml:"funding_threshold"`
		GasFloor         string `yaml:"gas_floor"`
	} `yaml:"trading"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TokenTTL string `yaml:"token_ttl"`
		MaxStale string `yaml:"max_stale"`
	} `yaml:"cache"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Session struct {
		IdleTTL string `yaml:"idle_ttl"`
	} `yaml:"session"`
}

// envSettings is decoded by envconfig on top of the values already resolved,
// so unset variables leave them alone. Fields tagged with an explicit name
// also accept the bare legacy variable after the VOLUMEBOT_ one.
type envSettings struct {
	Output              string          `split_words:"true"`
	Timeout             time.Duration   `split_words:"true"`
	Retries             int             `split_words:"true"`
	LogLevel            string          `split_words:"true"`
	LogFormat           string          `split_words:"true"`
	TelegramToken       string          `envconfig:"TELEGRAM_TOKEN"`
	TelegramAPIBase     string          `split_words:"true"`
	PollTimeout         time.Duration   `split_words:"true"`
	AllowedUsers        []int64         `split_words:"true"`
	OwnerChatID         int64           `envconfig:"OWNER_CHAT_ID"`
	ListenAddr          string          `split_words:"true"`
	Port                string          `envconfig:"PORT"`
	SolanaRPCURL        string          `envconfig:"SOL_RPC_URL"`
	BSCRPCURL           string          `envconfig:"BSC_RPC_URL"`
	EthereumRPCURL      string          `envconfig:"ETH_RPC_URL"`
	JupiterAPIKey       string          `split_words:"true"`
	PriorityFeeLamports uint64          `split_words:"true"`
	GasMultiplier       float64         `split_words:"true"`
	ReceiptTimeout      time.Duration   `split_words:"true"`
	InterRoundDelay     time.Duration   `split_words:"true"`
	MaxWallets          int             `split_words:"true"`
	FundingThreshold    decimal.Decimal `split_words:"true"`
	GasFloor            decimal.Decimal `split_words:"true"`
	NoCache             bool            `split_words:"true"`
	CachePath           string          `split_words:"true"`
	CacheLockPath       string          `split_words:"true"`
	TokenTTL            time.Duration   `split_words:"true"`
	MaxStale            time.Duration   `split_words:"true"`
	NoJournal           bool            `split_words:"true"`
	JournalPath         string          `split_words:"true"`
	JournalLockPath     string          `split_words:"true"`
	SessionIdleTTL      time.Duration   `split_words:"true"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if err := settings.normalize(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dir, err := defaultStateDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       "json",
		Timeout:          15 * time.Second,
		Retries:          2,
		LogLevel:         "info",
		LogFormat:        "json",
		PollTimeout:      30 * time.Second,
		ListenAddr:       ":3000",
		GasMultiplier:    1.2,
		ReceiptTimeout:   2 * time.Minute,
		InterRoundDelay:  20 * time.Second,
		MaxWallets:       20,
		FundingThreshold: decimal.RequireFromString("0.01"),
		GasFloor:         decimal.RequireFromString("0.002"),
		CacheEnabled:     true,
		CachePath:        filepath.Join(dir, "cache.db"),
		CacheLockPath:    filepath.Join(dir, "cache.lock"),
		TokenTTL:         2 * time.Minute,
		MaxStale:         10 * time.Minute,
		JournalEnabled:   true,
		JournalPath:      filepath.Join(dir, "cycles.db"),
		JournalLockPath:  filepath.Join(dir, "cycles.lock"),
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "volumebot", "config.yaml"), nil
}

func defaultStateDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "volumebot"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)

	setString(&settings.TelegramToken, cfg.Telegram.Token)
	if cfg.Telegram.TokenEnv != "" {
		settings.TelegramToken = os.Getenv(cfg.Telegram.TokenEnv)
	}
	setString(&settings.TelegramAPIBase, cfg.Telegram.APIBase)
	if err := setDuration(&settings.PollTimeout, cfg.Telegram.PollTimeout, "telegram.poll_timeout"); err != nil {
		return err
	}
	if len(cfg.Telegram.AllowedUsers) > 0 {
		settings.AllowedUsers = append([]int64(nil), cfg.Telegram.AllowedUsers...)
	}
	setString(&settings.ListenAddr, cfg.HTTP.Listen)

	setString(&settings.SolanaRPCURL, cfg.RPC.Solana)
	setString(&settings.BSCRPCURL, cfg.RPC.BSC)
	setString(&settings.EthereumRPCURL, cfg.RPC.Ethereum)

	setString(&settings.JupiterAPIKey, cfg.Jupiter.APIKey)
	if cfg.Jupiter.APIKeyEnv != "" {
		settings.JupiterAPIKey = os.Getenv(cfg.Jupiter.APIKeyEnv)
	}
	if cfg.Jupiter.PriorityFeeLamports != nil {
		settings.PriorityFeeLamports = *cfg.Jupiter.PriorityFeeLamports
	}
	if cfg.EVM.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.EVM.GasMultiplier
	}
	if err := setDuration(&settings.ReceiptTimeout, cfg.EVM.ReceiptTimeout, "evm.receipt_timeout"); err != nil {
		return err
	}

	if err := setDuration(&settings.InterRoundDelay, cfg.Trading.InterRoundDelay, "trading.inter_round_delay"); err != nil {
		return err
	}
	if cfg.Trading.MaxWallets != nil {
		settings.MaxWallets = *cfg.Trading.MaxWallets
	}
	if err := setDecimal(&settings.FundingThreshold, cfg.Trading.FundingThreshold, "trading.funding_threshold"); err != nil {
		return err
	}
	if err := setDecimal(&settings.GasFloor, cfg.Trading.GasFloor, "trading.gas_floor"); err != nil {
		return err
	}

	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	if err := setDuration(&settings.TokenTTL, cfg.Cache.TokenTTL, "cache.token_ttl"); err != nil {
		return err
	}
	if err := setDuration(&settings.MaxStale, cfg.Cache.MaxStale, "cache.max_stale"); err != nil {
		return err
	}

	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	setString(&settings.JournalPath, cfg.Journal.Path)
	setString(&settings.JournalLockPath, cfg.Journal.LockPath)

	return setDuration(&settings.SessionIdleTTL, cfg.Session.IdleTTL, "session.idle_ttl")
}

// loadDotEnv exports a .env file without overriding variables already set.
// The default file is optional; an explicitly named one must exist.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyEnv(settings *Settings) error {
	env := envSettings{
		Output:              settings.OutputMode,
		Timeout:             settings.Timeout,
		Retries:             settings.Retries,
		LogLevel:            settings.LogLevel,
		LogFormat:           settings.LogFormat,
		TelegramToken:       settings.TelegramToken,
		TelegramAPIBase:     settings.TelegramAPIBase,
		PollTimeout:         settings.PollTimeout,
		AllowedUsers:        settings.AllowedUsers,
		ListenAddr:          settings.ListenAddr,
		SolanaRPCURL:        settings.SolanaRPCURL,
		BSCRPCURL:           settings.BSCRPCURL,
		EthereumRPCURL:      settings.EthereumRPCURL,
		JupiterAPIKey:       settings.JupiterAPIKey,
		PriorityFeeLamports: settings.PriorityFeeLamports,
		GasMultiplier:       settings.GasMultiplier,
		ReceiptTimeout:      settings.ReceiptTimeout,
		InterRoundDelay:     settings.InterRoundDelay,
		MaxWallets:          settings.MaxWallets,
		FundingThreshold:    settings.FundingThreshold,
		GasFloor:            settings.GasFloor,
		NoCache:             !settings.CacheEnabled,
		CachePath:           settings.CachePath,
		CacheLockPath:       settings.CacheLockPath,
		TokenTTL:            settings.TokenTTL,
		MaxStale:            settings.MaxStale,
		NoJournal:           !settings.JournalEnabled,
		JournalPath:         settings.JournalPath,
		JournalLockPath:     settings.JournalLockPath,
		SessionIdleTTL:      settings.SessionIdleTTL,
	}
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	settings.OutputMode = strings.ToLower(env.Output)
	settings.Timeout = env.Timeout
	settings.Retries = env.Retries
	settings.LogLevel = env.LogLevel
	settings.LogFormat = env.LogFormat
	settings.TelegramToken = env.TelegramToken
	settings.TelegramAPIBase = env.TelegramAPIBase
	settings.PollTimeout = env.PollTimeout
	settings.AllowedUsers = env.AllowedUsers
	if env.OwnerChatID != 0 && len(settings.AllowedUsers) == 0 {
		settings.AllowedUsers = []int64{env.OwnerChatID}
	}
	settings.ListenAddr = env.ListenAddr
	if port := strings.TrimSpace(env.Port); port != "" {
		settings.ListenAddr = ":" + port
	}
	settings.SolanaRPCURL = env.SolanaRPCURL
	settings.BSCRPCURL = env.BSCRPCURL
	settings.EthereumRPCURL = env.EthereumRPCURL
	settings.JupiterAPIKey = env.JupiterAPIKey
	settings.PriorityFeeLamports = env.PriorityFeeLamports
	settings.GasMultiplier = env.GasMultiplier
	settings.ReceiptTimeout = env.ReceiptTimeout
	settings.InterRoundDelay = env.InterRoundDelay
	settings.MaxWallets = env.MaxWallets
	settings.FundingThreshold = env.FundingThreshold
	settings.GasFloor = env.GasFloor
	settings.CacheEnabled = !env.NoCache
	settings.CachePath = env.CachePath
	settings.CacheLockPath = env.CacheLockPath
	settings.TokenTTL = env.TokenTTL
	settings.MaxStale = env.MaxStale
	settings.JournalEnabled = !env.NoJournal
	settings.JournalPath = env.JournalPath
	settings.JournalLockPath = env.JournalLockPath
	settings.SessionIdleTTL = env.SessionIdleTTL
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	settings.SelectFields = splitList(flags.Select)
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	return nil
}

func (s *Settings) normalize() error {
	if s.OutputMode == "" {
		s.OutputMode = "json"
	}
	if s.OutputMode != "json" && s.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	if s.LogFormat != "json" && s.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console")
	}
	if s.Timeout <= 0 {
		s.Timeout = 15 * time.Second
	}
	if s.Retries < 0 {
		s.Retries = 0
	}
	if s.PollTimeout < time.Second {
		s.PollTimeout = 30 * time.Second
	}
	if s.InterRoundDelay < 0 {
		return fmt.Errorf("inter-round delay cannot be negative")
	}
	if s.MaxWallets < 1 {
		return fmt.Errorf("max wallets must be at least 1")
	}
	if s.GasMultiplier < 1 {
		return fmt.Errorf("gas multiplier must be at least 1")
	}
	if !s.FundingThreshold.IsPositive() || !s.GasFloor.IsPositive() {
		return fmt.Errorf("funding threshold and gas floor must be positive")
	}
	if s.MaxStale < 0 {
		s.MaxStale = 0
	}
	if s.SessionIdleTTL < 0 {
		s.SessionIdleTTL = 0
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	*dst = d
	return nil
}

func setDecimal(dst *decimal.Decimal, v, name string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

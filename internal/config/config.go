package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	IntegrationOnchain = "onchain"
	IntegrationRemote  = "remote"
)

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
	ChainID        int64
}

type NetworkSettings struct {
	RPCURL      string
	LendingPool string
	StakingPool string
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

	ListenAddr  string
	CORSOrigins []string
	DevMode     bool

	IntentStorePath string
	IntentLockPath  string
	CachePath       string
	CacheLockPath   string
	ActionStorePath string
	ActionLockPath  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	LLMTimeout    time.Duration

	BreakerThreshold int
	BreakerReset     time.Duration

	IntegrationMode  string
	IntegrationURL   string
	IntegrationToken string
	KeySource        string
	ENSRPCURL        string

	DefaultChainID         int64
	BalanceRefreshInterval time.Duration
	AllowedOperations      []string
	Networks               map[int64]NetworkSettings
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Listen      string   `yaml:"listen"`
		CORSOrigins []string `yaml:"cors_origins"`
		DevMode     *bool    `yaml:"dev_mode"`
	} `yaml:"server"`
	Storage struct {
		IntentsPath     string `yaml:"intents_path"`
		IntentsLockPath string `yaml:"intents_lock_path"`
		CachePath       string `yaml:"cache_path"`
		CacheLockPath   string `yaml:"cache_lock_path"`
		ActionsPath     string `yaml:"actions_path"`
		ActionsLockPath string `yaml:"actions_lock_path"`
	} `yaml:"storage"`
	LLM struct {
		Timeout string `yaml:"timeout"`
		OpenAI  struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
			Model     string `yaml:"model"`
		} `yaml:"openai"`
		Gemini struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			Model     string `yaml:"model"`
		} `yaml:"gemini"`
		Breaker struct {
			Threshold *int   `yaml:"threshold"`
			Reset     string `yaml:"reset"`
		} `yaml:"breaker"`
	} `yaml:"llm"`
	Integration struct {
		Mode       string   `yaml:"mode"`
		URL        string   `yaml:"url"`
		KeySource  string   `yaml:"key_source"`
		ENSRPC     string   `yaml:"ens_rpc"`
		Operations []string `yaml:"operations"`
	} `yaml:"integration"`
	DefaultChainID  int64  `yaml:"default_chain_id"`
	BalanceInterval string `yaml:"balance_refresh_interval"`
	Networks        map[int64]struct {
		RPC         string `yaml:"rpc"`
		LendingPool string `yaml:"lending_pool"`
		StakingPool string `yaml:"staking_pool"`
	} `yaml:"networks"`
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
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.BalanceRefreshInterval <= 0 {
		settings.BalanceRefreshInterval = time.Minute
	}
	if settings.IntegrationMode != IntegrationOnchain && settings.IntegrationMode != IntegrationRemote {
		return Settings{}, fmt.Errorf("integration mode must be %s or %s", IntegrationOnchain, IntegrationRemote)
	}
	if settings.IntegrationMode == IntegrationRemote && strings.TrimSpace(settings.IntegrationURL) == "" {
		return Settings{}, fmt.Errorf("integration mode remote requires integration.url")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:             "json",
		Timeout:                15 * time.Second,
		Retries:                2,
		LogLevel:               "info",
		LogFormat:              "json",
		ListenAddr:             ":8080",
		CORSOrigins:            []string{"*"},
		IntentStorePath:        filepath.Join(dataDir, "intents.db"),
		IntentLockPath:         filepath.Join(dataDir, "intents.lock"),
		CachePath:              filepath.Join(dataDir, "cache.db"),
		CacheLockPath:          filepath.Join(dataDir, "cache.lock"),
		ActionStorePath:        filepath.Join(dataDir, "actions.db"),
		ActionLockPath:         filepath.Join(dataDir, "actions.lock"),
		OpenAIModel:            "gpt-4o-mini",
		GeminiModel:            "gemini-2.0-flash",
		LLMTimeout:             30 * time.Second,
		BreakerThreshold:       3,
		BreakerReset:           time.Minute,
		IntegrationMode:        IntegrationOnchain,
		KeySource:              "auto",
		DefaultChainID:         44787,
		BalanceRefreshInterval: time.Minute,
		Networks:               map[int64]NetworkSettings{},
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
	return filepath.Join(base, "intentfi", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "intentfi"), nil
}

// loadDotEnv populates the process environment from a .env file. Variables
// already set in the environment win. A missing default file is not an error.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file: %w", err)
	}
	return nil
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
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	if cfg.Server.Listen != "" {
		settings.ListenAddr = cfg.Server.Listen
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		settings.CORSOrigins = cfg.Server.CORSOrigins
	}
	if cfg.Server.DevMode != nil {
		settings.DevMode = *cfg.Server.DevMode
	}
	if cfg.Storage.IntentsPath != "" {
		settings.IntentStorePath = cfg.Storage.IntentsPath
	}
	if cfg.Storage.IntentsLockPath != "" {
		settings.IntentLockPath = cfg.Storage.IntentsLockPath
	}
	if cfg.Storage.CachePath != "" {
		settings.CachePath = cfg.Storage.CachePath
	}
	if cfg.Storage.CacheLockPath != "" {
		settings.CacheLockPath = cfg.Storage.CacheLockPath
	}
	if cfg.Storage.ActionsPath != "" {
		settings.ActionStorePath = cfg.Storage.ActionsPath
	}
	if cfg.Storage.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Storage.ActionsLockPath
	}
	if cfg.LLM.Timeout != "" {
		d, err := time.ParseDuration(cfg.LLM.Timeout)
		if err != nil {
			return fmt.Errorf("config llm.timeout: %w", err)
		}
		settings.LLMTimeout = d
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		settings.OpenAIAPIKey = cfg.LLM.OpenAI.APIKey
	}
	if cfg.LLM.OpenAI.APIKeyEnv != "" {
		settings.OpenAIAPIKey = os.Getenv(cfg.LLM.OpenAI.APIKeyEnv)
	}
	if cfg.LLM.OpenAI.BaseURL != "" {
		settings.OpenAIBaseURL = cfg.LLM.OpenAI.BaseURL
	}
	if cfg.LLM.OpenAI.Model != "" {
		settings.OpenAIModel = cfg.LLM.OpenAI.Model
	}
	if cfg.LLM.Gemini.APIKey != "" {
		settings.GeminiAPIKey = cfg.LLM.Gemini.APIKey
	}
	if cfg.LLM.Gemini.APIKeyEnv != "" {
		settings.GeminiAPIKey = os.Getenv(cfg.LLM.Gemini.APIKeyEnv)
	}
	if cfg.LLM.Gemini.Model != "" {
		settings.GeminiModel = cfg.LLM.Gemini.Model
	}
	if cfg.LLM.Breaker.Threshold != nil {
		settings.BreakerThreshold = *cfg.LLM.Breaker.Threshold
	}
	if cfg.LLM.Breaker.Reset != "" {
		d, err := time.ParseDuration(cfg.LLM.Breaker.Reset)
		if err != nil {
			return fmt.Errorf("config llm.breaker.reset: %w", err)
		}
		settings.BreakerReset = d
	}
	if cfg.Integration.Mode != "" {
		settings.IntegrationMode = strings.ToLower(cfg.Integration.Mode)
	}
	if cfg.Integration.URL != "" {
		settings.IntegrationURL = cfg.Integration.URL
	}
	if cfg.Integration.KeySource != "" {
		settings.KeySource = cfg.Integration.KeySource
	}
	if cfg.Integration.ENSRPC != "" {
		settings.ENSRPCURL = cfg.Integration.ENSRPC
	}
	if len(cfg.Integration.Operations) > 0 {
		settings.AllowedOperations = cfg.Integration.Operations
	}
	if cfg.DefaultChainID != 0 {
		settings.DefaultChainID = cfg.DefaultChainID
	}
	if cfg.BalanceInterval != "" {
		d, err := time.ParseDuration(cfg.BalanceInterval)
		if err != nil {
			return fmt.Errorf("config balance_refresh_interval: %w", err)
		}
		settings.BalanceRefreshInterval = d
	}
	for chainID, n := range cfg.Networks {
		settings.Networks[chainID] = NetworkSettings{
			RPCURL:      n.RPC,
			LendingPool: n.LendingPool,
			StakingPool: n.StakingPool,
		}
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("INTENTFI_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("INTENTFI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("INTENTFI_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("INTENTFI_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("INTENTFI_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv("INTENTFI_LISTEN"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("INTENTFI_CORS_ORIGINS"); v != "" {
		settings.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("INTENTFI_DEV_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.DevMode = b
		}
	}
	if v := os.Getenv("INTENTFI_INTENTS_PATH"); v != "" {
		settings.IntentStorePath = v
	}
	if v := os.Getenv("INTENTFI_INTENTS_LOCK_PATH"); v != "" {
		settings.IntentLockPath = v
	}
	if v := os.Getenv("INTENTFI_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("INTENTFI_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("INTENTFI_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := firstEnv("INTENTFI_OPENAI_API_KEY", "OPENAI_API_KEY"); v != "" {
		settings.OpenAIAPIKey = v
	}
	if v := firstEnv("INTENTFI_OPENAI_BASE_URL", "OPENAI_BASE_URL"); v != "" {
		settings.OpenAIBaseURL = v
	}
	if v := os.Getenv("INTENTFI_OPENAI_MODEL"); v != "" {
		settings.OpenAIModel = v
	}
	if v := firstEnv("INTENTFI_GEMINI_API_KEY", "GEMINI_API_KEY"); v != "" {
		settings.GeminiAPIKey = v
	}
	if v := os.Getenv("INTENTFI_GEMINI_MODEL"); v != "" {
		settings.GeminiModel = v
	}
	if v := os.Getenv("INTENTFI_INTEGRATION_MODE"); v != "" {
		settings.IntegrationMode = strings.ToLower(v)
	}
	if v := os.Getenv("INTENTFI_INTEGRATION_URL"); v != "" {
		settings.IntegrationURL = v
	}
	if v := os.Getenv("INTENTFI_INTEGRATION_TOKEN"); v != "" {
		settings.IntegrationToken = v
	}
	if v := os.Getenv("INTENTFI_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("INTENTFI_ENS_RPC"); v != "" {
		settings.ENSRPCURL = v
	}
	if v := os.Getenv("INTENTFI_OPERATIONS"); v != "" {
		settings.AllowedOperations = splitList(v)
	}
	if v := os.Getenv("INTENTFI_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.DefaultChainID = n
		}
	}
	if v := os.Getenv("INTENTFI_BALANCE_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.BalanceRefreshInterval = d
		}
	}
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
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
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
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.ChainID > 0 {
		settings.DefaultChainID = flags.ChainID
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

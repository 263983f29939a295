package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all callscribe environment variables.
const EnvPrefix = "CALLSCRIBE_"

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	ProviderStub = "stub"
)

// Config holds all application configuration. Secrets (API keys, the Redis
// password) are loaded exclusively from environment variables and never
// appear in the config file.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	Store         string        `yaml:"store"`
	Redis         Redis         `yaml:"redis"`
	Archive       Archive       `yaml:"archive"`
	Workers       Workers       `yaml:"workers"`
	Finalizer     Finalizer     `yaml:"finalizer"`
	Ingest        Ingest        `yaml:"ingest"`
	ASR           ASR           `yaml:"asr"`
	Summarization Summarization `yaml:"summarization"`
	GDrive        GDrive        `yaml:"gdrive"`

	// Secrets come from env vars only and are never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	RedisPassword   string `yaml:"-"`
}

type Redis struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type Archive struct {
	DBPath       string `yaml:"db_path"`
	SeedFile     string `yaml:"seed_file"`
	JournalDir   string `yaml:"journal_dir"`
	ResetOnStart bool   `yaml:"reset_on_start"`
}

type Workers struct {
	Count            int    `yaml:"count"`
	ThrottleInterval string `yaml:"throttle_interval"`
	LockTTL          string `yaml:"lock_ttl"`
	PopTimeout       string `yaml:"pop_timeout"`
	RequeueBackoff   string `yaml:"requeue_backoff"`
}

type Finalizer struct {
	Deadline     string `yaml:"deadline"`
	PollInterval string `yaml:"poll_interval"`
}

type Ingest struct {
	SampleRate    int     `yaml:"sample_rate"`
	WindowSeconds float64 `yaml:"window_seconds"`
	Language      string  `yaml:"language"`
	// IdleFlush flushes a partial window after this much silence. Empty disables it.
	IdleFlush string `yaml:"idle_flush"`
}

// ASR selects the speech-to-text backend. Settings is passed to the backend
// untouched and decoded with DecodeSettings.
type ASR struct {
	Provider string         `yaml:"provider"`
	Settings map[string]any `yaml:"settings"`
}

type Summarization struct {
	// Model is "provider/model_name", or "stub" for the offline summarizer.
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type GDrive struct {
	FolderID        string `yaml:"folder_id"`
	CredentialsFile string `yaml:"credentials_file"`
	Interval        string `yaml:"interval"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":8000",
		LogLevel:   "info",
		LogFormat:  "json",
		Store:      StoreRedis,
		Redis:      Redis{Addr: "localhost:6379"},
		Archive: Archive{
			DBPath:     "data/callscribe.db",
			JournalDir: "data/journal",
		},
		Workers: Workers{
			Count:            2,
			ThrottleInterval: "3s",
			LockTTL:          "30s",
			PopTimeout:       "5s",
			RequeueBackoff:   "250ms",
		},
		Finalizer: Finalizer{
			Deadline:     "90s",
			PollInterval: "200ms",
		},
		Ingest: Ingest{
			SampleRate:    16000,
			WindowSeconds: 3,
			Language:      "en",
		},
		ASR: ASR{Provider: "deepgram"},
		Summarization: Summarization{
			Model:       "openai/gpt-4o-mini",
			MaxTokens:   512,
			Temperature: 0.2,
		},
		GDrive: GDrive{
			CredentialsFile: "./service-account.json",
			Interval:        "15m",
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func (w Workers) ParsedThrottleInterval() time.Duration {
	return parseDuration(w.ThrottleInterval, 3*time.Second)
}

func (w Workers) ParsedLockTTL() time.Duration {
	d := parseDuration(w.LockTTL, 30*time.Second)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

func (w Workers) ParsedPopTimeout() time.Duration {
	d := parseDuration(w.PopTimeout, 5*time.Second)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

func (w Workers) ParsedRequeueBackoff() time.Duration {
	return parseDuration(w.RequeueBackoff, 250*time.Millisecond)
}

func (f Finalizer) ParsedDeadline() time.Duration {
	d := parseDuration(f.Deadline, 90*time.Second)
	if d == 0 {
		return 90 * time.Second
	}
	return d
}

func (f Finalizer) ParsedPollInterval() time.Duration {
	d := parseDuration(f.PollInterval, 200*time.Millisecond)
	if d == 0 {
		return 200 * time.Millisecond
	}
	return d
}

// ParsedIdleFlush returns zero when idle flushing is disabled.
func (i Ingest) ParsedIdleFlush() time.Duration {
	if strings.TrimSpace(i.IdleFlush) == "" {
		return 0
	}
	return parseDuration(i.IdleFlush, 0)
}

// WindowSamples is the number of samples in one transcription window.
func (i Ingest) WindowSamples() int {
	rate := i.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	secs := i.WindowSeconds
	if secs <= 0 {
		secs = 3
	}
	return int(float64(rate) * secs)
}

func (g GDrive) ParsedInterval() time.Duration {
	d := parseDuration(g.Interval, 15*time.Minute)
	if d == 0 {
		return 15 * time.Minute
	}
	return d
}

// SummarizationProvider returns the provider part of the model string, or
// ProviderStub.
func (c *Config) SummarizationProvider() string {
	if c.Summarization.Model == ProviderStub {
		return ProviderStub
	}
	provider, _, _ := strings.Cut(c.Summarization.Model, "/")
	return provider
}

// LLMAPIKey returns the secret for an LLM provider.
func (c *Config) LLMAPIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv(EnvPrefix + "STORE"); v != "" {
		cfg.Store = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && db >= 0 {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.Archive.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "SEED_FILE"); v != "" {
		cfg.Archive.SeedFile = v
	}
	if v := os.Getenv(EnvPrefix + "JOURNAL_DIR"); v != "" {
		cfg.Archive.JournalDir = v
	}
	if v := os.Getenv(EnvPrefix + "RESET_ON_START"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Archive.ResetOnStart = b
		}
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.Workers.Count = n
		}
	}
	if v := os.Getenv(EnvPrefix + "THROTTLE_INTERVAL"); v != "" {
		cfg.Workers.ThrottleInterval = v
	}
	if v := os.Getenv(EnvPrefix + "LOCK_TTL"); v != "" {
		cfg.Workers.LockTTL = v
	}
	if v := os.Getenv(EnvPrefix + "FINALIZE_DEADLINE"); v != "" {
		cfg.Finalizer.Deadline = v
	}
	if v := os.Getenv(EnvPrefix + "IDLE_FLUSH"); v != "" {
		cfg.Ingest.IdleFlush = v
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Ingest.Language = v
	}
	if v := os.Getenv(EnvPrefix + "ASR_PROVIDER"); v != "" {
		cfg.ASR.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.Summarization.Model = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_BASE_URL"); v != "" {
		cfg.Summarization.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDrive.FolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GDrive.CredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.RedisPassword = os.Getenv(EnvPrefix + "REDIS_PASSWORD")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Store {
	case StoreRedis, StoreMemory:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown store %q, using %s.", cfg.Store, StoreMemory))
		cfg.Store = StoreMemory
	}

	switch cfg.ASR.Provider {
	case ProviderStub:
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured, falling back to the stub transcriber. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OpenAI API key not configured, falling back to the stub transcriber. Set "+EnvPrefix+"OPENAI_API_KEY.")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown ASR provider %q, using the stub transcriber.", cfg.ASR.Provider))
		cfg.ASR.Provider = ProviderStub
	}

	if provider := cfg.SummarizationProvider(); provider != ProviderStub && cfg.LLMAPIKey(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for summarization provider %q, falling back to the stub summarizer.", provider))
	}

	for name, raw := range map[string]string{
		"workers.throttle_interval": cfg.Workers.ThrottleInterval,
		"workers.lock_ttl":          cfg.Workers.LockTTL,
		"workers.pop_timeout":       cfg.Workers.PopTimeout,
		"workers.requeue_backoff":   cfg.Workers.RequeueBackoff,
		"finalizer.deadline":        cfg.Finalizer.Deadline,
		"finalizer.poll_interval":   cfg.Finalizer.PollInterval,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using the default.", name, raw))
		}
	}
	if cfg.Ingest.IdleFlush != "" {
		if _, err := time.ParseDuration(cfg.Ingest.IdleFlush); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid ingest.idle_flush %q, idle flushing is disabled.", cfg.Ingest.IdleFlush))
		}
	}

	if cfg.Workers.Count == 0 {
		warnings = append(warnings, "workers.count is 0, calls are only processed on demand.")
	}

	return warnings
}

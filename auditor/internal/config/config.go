package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultWorkers         = 4
	DefaultFeedbackTimeout = 30 * time.Second
	DefaultNotifyTimeout   = 15 * time.Second
	DefaultQueueSize       = 256
	DefaultStoreTTL        = 24 * time.Hour
	DefaultHTTPPort        = 8080
	DefaultWSInterval      = 5 * time.Second
	DefaultTable           = "waste_logs"
	DefaultDSNEnv          = "DATABASE_URL"
	DefaultLLMEndpoint     = "https://api.groq.com/openai/v1/chat/completions"
	DefaultLLMModel        = "llama-3.1-8b-instant"
	DefaultLLMKeyEnv       = "GROQ_API_KEY"
	DefaultLLMTemperature  = 0.3
	DefaultLLMTimeout      = 30 * time.Second
)

// Config is the full auditor configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Rules     RulesConfig     `yaml:"rules"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Source    SourceConfig    `yaml:"source"`
	Store     StoreConfig     `yaml:"store"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// RulesConfig holds every threshold used by the baseline aggregator, the rule
// evaluator and the status classifier. All comparisons against these values
// are strict unless the field comment says otherwise.
type RulesConfig struct {
	// ExpectedThreshold multiplies the expected waste quantity for the deviation rule.
	ExpectedThreshold float64 `yaml:"expected_threshold"`
	// RateThreshold multiplies the branch average rate for the high-rate rule.
	RateThreshold float64 `yaml:"rate_threshold"`

	StationMult float64 `yaml:"station_mult"`
	ShiftMult   float64 `yaml:"shift_mult"`
	PeakMult    float64 `yaml:"peak_mult"`

	// HotTemp is the boundary (°C) between moderate and hot days; moderate is ≤ HotTemp.
	HotTemp float64 `yaml:"hot_temp"`
	HotMult float64 `yaml:"hot_mult"`
	// ColdTemp is the inclusive upper bound (°C) of a cold day.
	ColdTemp float64 `yaml:"cold_temp"`
	ColdMult float64 `yaml:"cold_mult"`

	// SupplierMult multiplies the branch average for the supplier quality-risk set.
	SupplierMult float64 `yaml:"supplier_mult"`
	// RepeatedExpiryCount is the inclusive violation count that marks rotation risk.
	RepeatedExpiryCount int `yaml:"repeated_expiry_count"`
	// RotationShare is the violation share above which a supplier is rotation risk.
	RotationShare float64 `yaml:"rotation_share"`

	// CostCritical is the inclusive wastage cost that escalates an event.
	CostCritical float64 `yaml:"cost_critical"`
	// CostIgnore is the wastage cost below which an event is ignored.
	CostIgnore float64 `yaml:"cost_ignore"`
}

// PipelineConfig tunes batch execution.
type PipelineConfig struct {
	// Workers bounds parallel per-event evaluation and routing.
	Workers int `yaml:"workers"`

	// FeedbackTimeout bounds one narrative generation call.
	FeedbackTimeout time.Duration `yaml:"feedback_timeout"`

	// NotifyTimeout bounds one notification send.
	NotifyTimeout time.Duration `yaml:"notify_timeout"`

	// AsyncNotify dispatches notifications fire-and-forget through a queue
	// instead of sending them inline before the batch returns.
	AsyncNotify bool `yaml:"async_notify"`

	// QueueSize is the async notification queue depth.
	QueueSize int `yaml:"queue_size"`
}

// SourceConfig selects where raw event batches are read from.
type SourceConfig struct {
	// Backend is one of: postgres | xlsx | json.
	Backend string `yaml:"backend"`

	// Path is the file read by the xlsx and json backends.
	Path string `yaml:"path"`

	// Sheet optionally names the xlsx sheet; the first sheet is used when empty.
	Sheet string `yaml:"sheet"`

	// Table is the postgres table holding waste logs.
	Table string `yaml:"table"`

	// DSNEnv is the name of the environment variable holding the postgres DSN.
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s SourceConfig) DSN() string { return envOrEmpty(s.DSNEnv) }

// StoreConfig selects where classification results are persisted.
type StoreConfig struct {
	// Backend is one of: postgres | memory.
	Backend string `yaml:"backend"`

	// Table is the postgres table updated with status and feedback.
	Table string `yaml:"table"`

	// DSNEnv is the name of the environment variable holding the postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	// TTL is how long the in-memory backend keeps a result.
	TTL time.Duration `yaml:"ttl"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s StoreConfig) DSN() string { return envOrEmpty(s.DSNEnv) }

// NarrativeConfig configures the feedback generation service.
type NarrativeConfig struct {
	// Backend is one of: llm | static.
	Backend string `yaml:"backend"`

	// Endpoint is an OpenAI-compatible chat completions URL.
	Endpoint string `yaml:"endpoint"`

	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`

	// APIKeyEnv is the name of the environment variable holding the API key.
	// When it resolves empty the static backend is used instead.
	APIKeyEnv string `yaml:"api_key_env"`

	Timeout time.Duration `yaml:"timeout"`
}

// APIKey returns the narrative API key resolved from the environment.
func (n NarrativeConfig) APIKey() string { return envOrEmpty(n.APIKeyEnv) }

// NotifyConfig lists notification channels for escalated events.
type NotifyConfig struct {
	// DefaultRecipient is used when an event carries no chef email.
	DefaultRecipient string `yaml:"default_recipient"`

	// Signature is the last line of every chef email.
	Signature string `yaml:"signature"`

	Senders []SenderConfig `yaml:"senders"`
}

// SenderConfig describes one notification channel.
type SenderConfig struct {
	// Type is one of: smtp | webhook | amqp | telegram.
	Type string `yaml:"type"`

	// SMTP fields.
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	From        string `yaml:"from"`

	// Webhook fields. Format is one of: slack | teams | http.
	Format string `yaml:"format"`

	// URLEnv names the environment variable holding the webhook or AMQP URL.
	URLEnv string `yaml:"url_env"`

	// AMQP fields.
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`

	// Telegram fields.
	TokenEnv string `yaml:"token_env"`
	ChatID   int64  `yaml:"chat_id"`
}

// Password returns the SMTP password resolved from the environment.
func (s SenderConfig) Password() string { return envOrEmpty(s.PasswordEnv) }

// URL returns the webhook or AMQP URL resolved from the environment.
func (s SenderConfig) URL() string { return envOrEmpty(s.URLEnv) }

// Token returns the telegram bot token resolved from the environment.
func (s SenderConfig) Token() string { return envOrEmpty(s.TokenEnv) }

// ServerConfig holds the HTTP surface settings used by `auditor serve`.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`

	Auth AuthConfig `yaml:"auth"`

	// WSInterval is how often the WebSocket hub pushes recent results.
	WSInterval time.Duration `yaml:"ws_interval"`
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header carrying the key. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string { return envOrEmpty(a.KeyEnv) }

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// LoadEnv loads KEY=VALUE pairs from the given .env files (".env" when none
// are given) into the process environment. Missing files are not an error;
// variables already set are left untouched.
func LoadEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load env: %w", err)
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// DefaultRules returns the production thresholds.
func DefaultRules() RulesConfig {
	return RulesConfig{
		ExpectedThreshold:   1.0,
		RateThreshold:       1.5,
		StationMult:         1.3,
		ShiftMult:           1.3,
		PeakMult:            1.25,
		HotTemp:             27.0,
		HotMult:             1.3,
		ColdTemp:            10.0,
		ColdMult:            1.3,
		SupplierMult:        1.3,
		RepeatedExpiryCount: 2,
		RotationShare:       0.2,
		CostCritical:        100.0,
		CostIgnore:          5.0,
	}
}

// Default returns a Config pre-populated with default values. It is valid
// on its own: json source, memory store, static narrative, no senders.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info"},
		Rules: DefaultRules(),
		Pipeline: PipelineConfig{
			Workers:         DefaultWorkers,
			FeedbackTimeout: DefaultFeedbackTimeout,
			NotifyTimeout:   DefaultNotifyTimeout,
			QueueSize:       DefaultQueueSize,
		},
		Source: SourceConfig{
			Backend: "json",
			Table:   DefaultTable,
			DSNEnv:  DefaultDSNEnv,
		},
		Store: StoreConfig{
			Backend: "memory",
			Table:   DefaultTable,
			DSNEnv:  DefaultDSNEnv,
			TTL:     DefaultStoreTTL,
		},
		Narrative: NarrativeConfig{
			Backend:     "static",
			Endpoint:    DefaultLLMEndpoint,
			Model:       DefaultLLMModel,
			Temperature: DefaultLLMTemperature,
			APIKeyEnv:   DefaultLLMKeyEnv,
			Timeout:     DefaultLLMTimeout,
		},
		Notify: NotifyConfig{
			Signature: "Waste Intelligence System",
		},
		Server: ServerConfig{
			HTTPPort:   DefaultHTTPPort,
			WSInterval: DefaultWSInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	if err := validateRules(cfg.Rules); err != nil {
		return err
	}
	if cfg.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if cfg.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queue_size must be positive")
	}
	if cfg.Pipeline.FeedbackTimeout <= 0 || cfg.Pipeline.NotifyTimeout <= 0 {
		return fmt.Errorf("pipeline timeouts must be positive")
	}
	switch cfg.Source.Backend {
	case "postgres":
		if cfg.Source.Table == "" {
			return fmt.Errorf("source.table is required for postgres")
		}
	case "xlsx", "json":
		// Path may also be supplied per run on the command line.
	default:
		return fmt.Errorf("source.backend %q unknown: want postgres|xlsx|json", cfg.Source.Backend)
	}
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Store.Table == "" {
			return fmt.Errorf("store.table is required for postgres")
		}
	case "memory":
		if cfg.Store.TTL <= 0 {
			return fmt.Errorf("store.ttl must be positive")
		}
	default:
		return fmt.Errorf("store.backend %q unknown: want postgres|memory", cfg.Store.Backend)
	}
	switch cfg.Narrative.Backend {
	case "llm":
		if cfg.Narrative.Endpoint == "" || cfg.Narrative.Model == "" {
			return fmt.Errorf("narrative.endpoint and narrative.model are required for llm")
		}
	case "static":
	default:
		return fmt.Errorf("narrative.backend %q unknown: want llm|static", cfg.Narrative.Backend)
	}
	for i, s := range cfg.Notify.Senders {
		if err := validateSender(s); err != nil {
			return fmt.Errorf("notify.senders[%d]: %w", i, err)
		}
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.WSInterval <= 0 {
		return fmt.Errorf("server.ws_interval must be positive")
	}
	return nil
}

func validateRules(r RulesConfig) error {
	mults := map[string]float64{
		"expected_threshold": r.ExpectedThreshold,
		"rate_threshold":     r.RateThreshold,
		"station_mult":       r.StationMult,
		"shift_mult":         r.ShiftMult,
		"peak_mult":          r.PeakMult,
		"hot_mult":           r.HotMult,
		"cold_mult":          r.ColdMult,
		"supplier_mult":      r.SupplierMult,
	}
	for name, v := range mults {
		if v <= 0 {
			return fmt.Errorf("rules.%s must be positive", name)
		}
	}
	if r.ColdTemp >= r.HotTemp {
		return fmt.Errorf("rules.cold_temp (%.1f) must be below rules.hot_temp (%.1f)", r.ColdTemp, r.HotTemp)
	}
	if r.RepeatedExpiryCount <= 0 {
		return fmt.Errorf("rules.repeated_expiry_count must be positive")
	}
	if r.RotationShare < 0 || r.RotationShare > 1 {
		return fmt.Errorf("rules.rotation_share must be within [0, 1]")
	}
	if r.CostIgnore < 0 || r.CostCritical <= r.CostIgnore {
		return fmt.Errorf("rules.cost_critical must exceed rules.cost_ignore ≥ 0")
	}
	return nil
}

func validateSender(s SenderConfig) error {
	switch s.Type {
	case "smtp":
		if s.Host == "" || s.From == "" {
			return fmt.Errorf("smtp: host and from are required")
		}
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("smtp: port %d is out of range", s.Port)
		}
	case "webhook":
		switch s.Format {
		case "slack", "teams", "http", "":
		default:
			return fmt.Errorf("webhook: unknown format %q", s.Format)
		}
		if s.URLEnv == "" {
			return fmt.Errorf("webhook: url_env is required")
		}
	case "amqp":
		if s.URLEnv == "" || s.Exchange == "" {
			return fmt.Errorf("amqp: url_env and exchange are required")
		}
	case "telegram":
		if s.TokenEnv == "" || s.ChatID == 0 {
			return fmt.Errorf("telegram: token_env and chat_id are required")
		}
	default:
		return fmt.Errorf("unknown sender type %q", s.Type)
	}
	return nil
}

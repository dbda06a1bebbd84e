package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	defaultProfile  = "default"
	manualProfile   = "manual"

	configPathEnv        = "MERIDIANO_CONFIG"
	databaseDriverEnv    = "DATABASE_DRIVER"
	databaseDSNEnv       = "DATABASE_DSN"
	llmProviderEnv       = "LLM_PROVIDER"
	llmAPIKeyEnv         = "LLM_API_KEY"
	deepseekAPIKeyEnv    = "DEEPSEEK_API_KEY"
	llmBaseURLEnv        = "LLM_BASE_URL"
	llmChatModelEnv      = "LLM_CHAT_MODEL"
	embeddingAPIKeyEnv   = "EMBEDDING_API_KEY"
	embeddingBaseURLEnv  = "EMBEDDING_BASE_URL"
	embeddingModelEnv    = "EMBEDDING_MODEL"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	kafkaBrokersEnv      = "KAFKA_BROKERS"
	logLevelEnv          = "LOG_LEVEL"
	logFormatEnv         = "LOG_FORMAT"
	metricsAddrEnv       = "METRICS_ADDR"
	defaultChatModel     = "deepseek-chat"
	defaultEmbedModel    = "intfloat/multilingual-e5-large-instruct"
	defaultChatBaseURL   = "https://api.deepseek.com/v1"
	defaultEmbedBaseURL  = "https://api.together.xyz/v1"
	defaultUnrelatedWord = "unrelated"
)

// Chat providers accepted in LLMConfig.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	LLM           LLMConfig          `yaml:"llm"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Notifications NotificationConfig `yaml:"notifications"`
	Events        EventsConfig       `yaml:"events"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Logging       LoggingConfig      `yaml:"logging"`
	// Profiles from the file override built-in profiles of the same name.
	Profiles map[string]Profile `yaml:"profiles"`
}

// DatabaseConfig selects the SQL dialect and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LLMConfig defines how to contact the chat model.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	ChatModel   string        `yaml:"chatModel"`
	MaxTokens   int64         `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// CallDelay spaces consecutive model calls.
	CallDelay time.Duration `yaml:"callDelay"`
}

// EmbeddingConfig defines the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// FetcherConfig tunes page downloads.
type FetcherConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Delay     time.Duration `yaml:"delay"`
	UserAgent string        `yaml:"userAgent"`
}

// PipelineConfig carries stage limits shared by every profile.
type PipelineConfig struct {
	DefaultProfile     string `yaml:"defaultProfile"`
	ManualProfile      string `yaml:"manualProfile"`
	ProcessBatch       int    `yaml:"processBatch"`
	RatingBatch        int    `yaml:"ratingBatch"`
	ContentBudget      int    `yaml:"contentBudget"`
	LookbackHours      int    `yaml:"lookbackHours"`
	MinArticlesToBrief int    `yaml:"minArticlesToBrief"`
}

// Lookback converts LookbackHours to a duration.
func (p PipelineConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackHours) * time.Hour
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// Enabled reports whether both token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// EventsConfig configures brief-created events.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig lists brokers and the destination topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether at least one broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// MetricsConfig controls the Prometheus endpoint of the schedule command.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path; an empty path means built-in defaults only.
func LoadFile(path string) (Config, error) {
	cfg, err := defaultConfig()
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	cfg.fillProfiles()

	return cfg, nil
}

// Profile returns the named profile with unset knobs filled from defaults.
func (c Config) Profile(name string) (Profile, bool) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, false
	}
	return p.withDefaults(), true
}

// FeedProfiles lists profiles that have at least one feed, sorted by name.
func (c Config) FeedProfiles() []string {
	names := make([]string, 0, len(c.Profiles))
	for name, p := range c.Profiles {
		if len(p.Feeds) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(deepseekAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmBaseURLEnv); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(llmChatModelEnv); v != "" {
		c.LLM.ChatModel = v
	}

	if v := os.Getenv(embeddingAPIKeyEnv); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(embeddingBaseURLEnv); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv(embeddingModelEnv); v != "" {
		c.Embedding.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Events.Kafka.Brokers = splitList(v)
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(metricsAddrEnv); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("load timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// fillProfiles guarantees the default and manual profiles exist.
func (c *Config) fillProfiles() {
	if c.Profiles == nil {
		c.Profiles = map[string]Profile{}
	}
	for _, name := range []string{c.Pipeline.DefaultProfile, c.Pipeline.ManualProfile} {
		if _, ok := c.Profiles[name]; !ok {
			c.Profiles[name] = Profile{}
		}
	}
}

func defaultConfig() (Config, error) {
	profiles, err := builtinProfiles()
	if err != nil {
		return Config{}, err
	}
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "meridian.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     defaultChatBaseURL,
			ChatModel:   defaultChatModel,
			MaxTokens:   2048,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			CallDelay:   time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL: defaultEmbedBaseURL,
			Model:   defaultEmbedModel,
			Timeout: 30 * time.Second,
		},
		Fetcher: FetcherConfig{
			Timeout:   20 * time.Second,
			Delay:     time.Second,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:137.0) Gecko/20100101 Firefox/137.0",
		},
		Pipeline: PipelineConfig{
			DefaultProfile:     defaultProfile,
			ManualProfile:      manualProfile,
			ProcessBatch:       1000,
			RatingBatch:        1000,
			ContentBudget:      4000,
			LookbackHours:      24,
			MinArticlesToBrief: 5,
		},
		Events:   EventsConfig{Kafka: KafkaConfig{Topic: "meridiano.briefs"}},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Profiles: profiles,
	}, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseChatID converts the configured Telegram chat id.
func ParseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse telegram chat id %q: %w", raw, err)
	}
	return id, nil
}

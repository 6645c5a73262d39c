// Package config loads websum settings from defaults, an optional YAML file,
// a .env file and WEBSUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WEBSUM_SERVER_PORT.
const EnvPrefix = "WEBSUM"

// SearchPaths are checked in order for websum.{yaml,json,toml} when Load is
// called without an explicit path.
var SearchPaths = []string{".", "/etc/websum", "$HOME/.websum"}

// Publisher kinds.
const (
	PublisherLocal  = "local"
	PublisherGitHub = "github"
	PublisherGCS    = "gcs"
	PublisherMemory = "memory"
)

// Summarizer providers.
const (
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config is the root configuration document.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	Chunker     ChunkerConfig     `mapstructure:"chunker"`
	Summarizer  SummarizerConfig  `mapstructure:"summarizer"`
	Publisher   PublisherConfig   `mapstructure:"publisher"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	DB          DBConfig          `mapstructure:"db"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Progress    ProgressConfig    `mapstructure:"progress"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig gates the API behind an X-API-Key header.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig sets the worker pool and queue ceilings.
type SchedulerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	MaxQueued       int           `mapstructure:"max_queued"`
	MaxQueuedPerKey int           `mapstructure:"max_queued_per_key"`
	Retention       time.Duration `mapstructure:"retention"`
}

// AcquisitionConfig covers the headless engine and fallback escalation.
type AcquisitionConfig struct {
	Headless HeadlessConfig `mapstructure:"headless"`
	// MinContentLength is the markdown length below which the remote renderer is tried.
	MinContentLength int        `mapstructure:"min_content_length"`
	EscalateOnError  bool       `mapstructure:"escalate_on_error"`
	Screenshot       bool       `mapstructure:"screenshot"`
	ArtifactDir      string     `mapstructure:"artifact_dir"`
	Rate             RateConfig `mapstructure:"rate"`
}

// HeadlessConfig configures Chrome.
type HeadlessConfig struct {
	MaxParallel    int           `mapstructure:"max_parallel"`
	UserAgent      string        `mapstructure:"user_agent"`
	ExecPath       string        `mapstructure:"exec_path"`
	NoSandbox      bool          `mapstructure:"no_sandbox"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// RateConfig is the per-host navigation budget.
type RateConfig struct {
	DefaultRPS   float64             `mapstructure:"default_rps"`
	DefaultBurst int                 `mapstructure:"default_burst"`
	Hosts        map[string]HostRate `mapstructure:"hosts"`
}

// HostRate overrides the budget for one host.
type HostRate struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// GitHubConfig controls the API-backed GitHub fetcher.
type GitHubConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	BaseURL     string `mapstructure:"base_url"`
	MaxComments int    `mapstructure:"max_comments"`
}

// RemoteConfig lists the remote renderers tried in order: mirror, then firecrawl.
type RemoteConfig struct {
	Timeout   time.Duration  `mapstructure:"timeout"`
	UserAgent string         `mapstructure:"user_agent"`
	Mirror    RendererConfig `mapstructure:"mirror"`
	Firecrawl RendererConfig `mapstructure:"firecrawl"`
}

// RendererConfig configures one remote renderer.
type RendererConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// ChunkerConfig sets the per-call token budget.
type ChunkerConfig struct {
	MaxTokens int    `mapstructure:"max_tokens"`
	Encoding  string `mapstructure:"encoding"`
	// UseTiktoken falls back to the rune estimator when false or when the encoding fails to load.
	UseTiktoken bool `mapstructure:"use_tiktoken"`
}

// SummarizerConfig selects the model endpoint.
type SummarizerConfig struct {
	Provider     string        `mapstructure:"provider"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	// SkipBelowChars skips the model for pages shorter than this. Independent of
	// acquisition.min_content_length.
	SkipBelowChars  int  `mapstructure:"skip_below_chars"`
	IncludeOriginal bool `mapstructure:"include_original"`
}

// PublisherConfig selects where notes go.
type PublisherConfig struct {
	Kind   string                `mapstructure:"kind"`
	GitHub GitHubPublisherConfig `mapstructure:"github"`
	GCS    GCSPublisherConfig    `mapstructure:"gcs"`
	Local  LocalPublisherConfig  `mapstructure:"local"`
}

// GitHubPublisherConfig targets a notes repository.
type GitHubPublisherConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
	Repo    string `mapstructure:"repo"`
	Branch  string `mapstructure:"branch"`
	Dir     string `mapstructure:"dir"`
}

// GCSPublisherConfig targets a bucket.
type GCSPublisherConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// LocalPublisherConfig targets a directory.
type LocalPublisherConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig enables job-completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// DBConfig enables the Postgres job history.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// LoggingConfig toggles the development logger.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// Load reads configuration. A .env file in the working directory is applied
// first when present. With an empty path the SearchPaths are tried and a
// missing file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("websum")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("scheduler.max_queued", 50)
	v.SetDefault("scheduler.max_queued_per_key", 5)
	v.SetDefault("scheduler.retention", time.Hour)

	v.SetDefault("acquisition.headless.max_parallel", 2)
	v.SetDefault("acquisition.headless.user_agent", "")
	v.SetDefault("acquisition.headless.exec_path", "")
	v.SetDefault("acquisition.headless.no_sandbox", false)
	v.SetDefault("acquisition.headless.default_timeout", 45*time.Second)
	v.SetDefault("acquisition.min_content_length", 200)
	v.SetDefault("acquisition.escalate_on_error", false)
	v.SetDefault("acquisition.screenshot", false)
	v.SetDefault("acquisition.artifact_dir", "")
	v.SetDefault("acquisition.rate.default_rps", 1.0)
	v.SetDefault("acquisition.rate.default_burst", 2)

	v.SetDefault("github.enabled", true)
	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "")
	v.SetDefault("github.max_comments", 10)

	v.SetDefault("remote.timeout", 60*time.Second)
	v.SetDefault("remote.user_agent", "websum/1.0")
	v.SetDefault("remote.mirror.enabled", false)
	v.SetDefault("remote.mirror.endpoint", "https://r.jina.ai/")
	v.SetDefault("remote.mirror.api_key", "")
	v.SetDefault("remote.firecrawl.enabled", false)
	v.SetDefault("remote.firecrawl.endpoint", "https://api.firecrawl.dev")
	v.SetDefault("remote.firecrawl.api_key", "")

	v.SetDefault("chunker.max_tokens", 4000)
	v.SetDefault("chunker.encoding", "cl100k_base")
	v.SetDefault("chunker.use_tiktoken", true)

	v.SetDefault("summarizer.provider", ProviderOpenAI)
	v.SetDefault("summarizer.base_url", "https://api.openai.com/v1")
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.model", "gpt-4o-mini")
	v.SetDefault("summarizer.timeout", 2*time.Minute)
	v.SetDefault("summarizer.system_prompt", "")
	v.SetDefault("summarizer.skip_below_chars", 1)
	v.SetDefault("summarizer.include_original", true)

	v.SetDefault("publisher.kind", PublisherLocal)
	v.SetDefault("publisher.local.base_dir", "notes")
	v.SetDefault("publisher.github.token", "")
	v.SetDefault("publisher.github.base_url", "")
	v.SetDefault("publisher.github.repo", "")
	v.SetDefault("publisher.github.branch", "main")
	v.SetDefault("publisher.github.dir", "")
	v.SetDefault("publisher.gcs.bucket", "")
	v.SetDefault("publisher.gcs.prefix", "notes")

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "websum-jobs")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "websum_jobs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db.migrate", true)

	v.SetDefault("logging.development", true)

	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 10*time.Second)
	v.SetDefault("progress.log_events", true)
}

// Validate performs basic sanity checks.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	check(c.Server.Port > 0, "server.port must be > 0")
	check(!c.Auth.Enabled || c.Auth.APIKey != "", "auth.api_key must be set when auth is enabled")
	check(c.Scheduler.Concurrency > 0, "scheduler.concurrency must be > 0")
	check(c.Scheduler.MaxQueued > 0, "scheduler.max_queued must be > 0")
	check(c.Scheduler.MaxQueuedPerKey > 0, "scheduler.max_queued_per_key must be > 0")
	check(c.Acquisition.Headless.MaxParallel > 0, "acquisition.headless.max_parallel must be > 0")
	check(c.Acquisition.Headless.DefaultTimeout > 0, "acquisition.headless.default_timeout must be > 0")
	check(c.Chunker.MaxTokens > 0, "chunker.max_tokens must be > 0")
	check(c.Summarizer.SkipBelowChars >= 0, "summarizer.skip_below_chars must be >= 0")
	check(c.Remote.Firecrawl.APIKey != "" || !c.Remote.Firecrawl.Enabled, "remote.firecrawl.api_key must be set when firecrawl is enabled")
	check(!c.PubSub.Enabled || (c.PubSub.ProjectID != "" && c.PubSub.Topic != ""), "pubsub.project_id and pubsub.topic must be set when pubsub is enabled")

	switch c.Summarizer.Provider {
	case ProviderOpenAI:
		check(c.Summarizer.Model != "", "summarizer.model must be set for the openai provider")
	case ProviderStatic:
	default:
		errs = append(errs, fmt.Errorf("summarizer.provider %q is not supported", c.Summarizer.Provider))
	}

	switch c.Publisher.Kind {
	case PublisherLocal:
		check(c.Publisher.Local.BaseDir != "", "publisher.local.base_dir must be set")
	case PublisherGitHub:
		check(c.Publisher.GitHub.Repo != "", "publisher.github.repo must be set")
		check(c.Publisher.GitHub.Token != "", "publisher.github.token must be set")
	case PublisherGCS:
		check(c.Publisher.GCS.Bucket != "", "publisher.gcs.bucket must be set")
	case PublisherMemory:
	default:
		errs = append(errs, fmt.Errorf("publisher.kind %q is not supported", c.Publisher.Kind))
	}
	return errors.Join(errs...)
}

// RemoteEnabled reports whether any remote renderer is configured.
func (c Config) RemoteEnabled() bool {
	return c.Remote.Mirror.Enabled || c.Remote.Firecrawl.Enabled
}

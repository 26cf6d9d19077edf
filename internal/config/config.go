// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

// Archive store backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the single admin secret.
type AuthConfig struct {
	AdminPassword string `mapstructure:"admin_password"`
}

// FirecrawlConfig configures the external crawl API client and polling.
type FirecrawlConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CrawlTimeout    time.Duration `mapstructure:"crawl_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	OnlyMainContent bool          `mapstructure:"only_main_content"`
}

// CrawlConfig holds form defaults.
type CrawlConfig struct {
	DefaultDepth    int `mapstructure:"default_depth"`
	DefaultMaxPages int `mapstructure:"default_max_pages"`
}

// ArchiveConfig selects where archives live and how long they are kept.
type ArchiveConfig struct {
	Backend             string        `mapstructure:"backend"`
	Dir                 string        `mapstructure:"dir"`
	GCSBucket           string        `mapstructure:"gcs_bucket"`
	Prefix              string        `mapstructure:"prefix"`
	TempDir             string        `mapstructure:"temp_dir"`
	Retention           time.Duration `mapstructure:"retention"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	DeleteAfterDownload bool          `mapstructure:"delete_after_download"`
	WriteIndex          bool          `mapstructure:"write_index"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. It checks value ranges but not
// the secrets; callers pick ValidateServer or ValidateCLI for those.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by container platforms and the Firecrawl docs.
	bindings := map[string][]string{
		"firecrawl.api_key":   {"ARCHIVER_FIRECRAWL_API_KEY", "FIRECRAWL_API_KEY"},
		"auth.admin_password": {"ARCHIVER_AUTH_ADMIN_PASSWORD", "ADMIN_PASSWORD"},
		"server.port":         {"ARCHIVER_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("firecrawl.api_key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev")
	v.SetDefault("firecrawl.user_agent", "crawl-archiver/1.0")
	v.SetDefault("firecrawl.poll_interval", "2s")
	v.SetDefault("firecrawl.crawl_timeout", "10m")
	v.SetDefault("firecrawl.request_timeout", "30s")
	v.SetDefault("firecrawl.only_main_content", true)
	v.SetDefault("crawl.default_depth", crawler.DefaultDepth)
	v.SetDefault("crawl.default_max_pages", crawler.DefaultMaxPages)
	v.SetDefault("archive.backend", BackendLocal)
	v.SetDefault("archive.dir", "archives")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "archives")
	v.SetDefault("archive.temp_dir", "")
	v.SetDefault("archive.retention", "1h")
	v.SetDefault("archive.sweep_interval", "5m")
	v.SetDefault("archive.delete_after_download", true)
	v.SetDefault("archive.write_index", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces reasonable limits on non-secret values.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Firecrawl.PollInterval <= 0 {
		return fmt.Errorf("firecrawl.poll_interval must be > 0")
	}
	if c.Firecrawl.CrawlTimeout <= 0 {
		return fmt.Errorf("firecrawl.crawl_timeout must be > 0")
	}
	if c.Firecrawl.RequestTimeout <= 0 {
		return fmt.Errorf("firecrawl.request_timeout must be > 0")
	}
	if c.Crawl.DefaultDepth < crawler.MinDepth || c.Crawl.DefaultDepth > crawler.MaxDepth {
		return fmt.Errorf("crawl.default_depth must be between %d and %d", crawler.MinDepth, crawler.MaxDepth)
	}
	if c.Crawl.DefaultMaxPages < crawler.MinMaxPages || c.Crawl.DefaultMaxPages > crawler.MaxMaxPages {
		return fmt.Errorf("crawl.default_max_pages must be between %d and %d", crawler.MinMaxPages, crawler.MaxMaxPages)
	}
	switch c.Archive.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Archive.Dir) == "" {
			return fmt.Errorf("archive.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("archive.backend must be one of %s, %s, %s", BackendLocal, BackendGCS, BackendMemory)
	}
	if c.Archive.Retention <= 0 {
		return fmt.Errorf("archive.retention must be > 0")
	}
	if c.Archive.SweepInterval <= 0 {
		return fmt.Errorf("archive.sweep_interval must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// ValidateCLI requires what the one-shot crawl command needs.
func (c Config) ValidateCLI() error {
	if strings.TrimSpace(c.Firecrawl.APIKey) == "" {
		return fmt.Errorf("firecrawl.api_key is required (set FIRECRAWL_API_KEY)")
	}
	return nil
}

// ValidateServer requires what the web server needs.
func (c Config) ValidateServer() error {
	if err := c.ValidateCLI(); err != nil {
		return err
	}
	if c.Auth.AdminPassword == "" {
		return fmt.Errorf("auth.admin_password is required (set ADMIN_PASSWORD)")
	}
	return nil
}

// WriteTimeout returns a server write timeout long enough for the slowest
// crawl plus packaging.
func (c Config) WriteTimeout() time.Duration {
	return c.Firecrawl.CrawlTimeout + 2*time.Minute
}

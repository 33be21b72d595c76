package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for CivicScrape.
type Config struct {
	Spider   SpiderConfig   `mapstructure:"spider"   yaml:"spider"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	AI       AIConfig       `mapstructure:"ai"       yaml:"ai"`
	Images   ImagesConfig   `mapstructure:"images"   yaml:"images"`
	Enrich   EnrichConfig   `mapstructure:"enrich"   yaml:"enrich"`
	Video    VideoConfig    `mapstructure:"video"    yaml:"video"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
}

// SpiderConfig controls the two-phase crawl of each source site.
type SpiderConfig struct {
	Delay       time.Duration `mapstructure:"delay"        yaml:"delay"`
	ItemTimeout time.Duration `mapstructure:"item_timeout" yaml:"item_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"  yaml:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"  yaml:"retry_delay"`
	Concurrency int           `mapstructure:"concurrency"  yaml:"concurrency"`
	// MaxItems caps item pages per spider; 0 keeps each spider's default.
	MaxItems        int      `mapstructure:"max_items"         yaml:"max_items"`
	MaxListingPages int      `mapstructure:"max_listing_pages" yaml:"max_listing_pages"`
	Congress        int      `mapstructure:"congress"          yaml:"congress"`
	Chamber         string   `mapstructure:"chamber"           yaml:"chamber"`
	Sections        []string `mapstructure:"sections"          yaml:"sections"`
	RespectRobots   bool     `mapstructure:"respect_robots"    yaml:"respect_robots"`
}

// FetcherConfig controls how pages are retrieved.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	Headless        bool          `mapstructure:"headless"          yaml:"headless"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	Proxy           ProxyConfig   `mapstructure:"proxy"             yaml:"proxy"`
}

// ProxyConfig lists outbound proxies. An empty list means direct connections.
type ProxyConfig struct {
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"` // round_robin or random
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver         string        `mapstructure:"driver"          yaml:"driver"`
	PostgresURL    string        `mapstructure:"postgres_url"    yaml:"postgres_url"`
	MongoURI       string        `mapstructure:"mongo_uri"       yaml:"mongo_uri"`
	MongoDatabase  string        `mapstructure:"mongo_database"  yaml:"mongo_database"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"    yaml:"auto_migrate"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// AIConfig controls the text generation backend.
type AIConfig struct {
	Provider        string        `mapstructure:"provider"          yaml:"provider"`
	Model           string        `mapstructure:"model"             yaml:"model"`
	Endpoint        string        `mapstructure:"endpoint"          yaml:"endpoint"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"    yaml:"openai_api_key"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	MaxTokens       int           `mapstructure:"max_tokens"        yaml:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"       yaml:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
}

// ImagesConfig controls thumbnail search and image generation.
type ImagesConfig struct {
	GoogleAPIKey         string        `mapstructure:"google_api_key"          yaml:"google_api_key"`
	GoogleSearchEngineID string        `mapstructure:"google_search_engine_id" yaml:"google_search_engine_id"`
	SearchEndpoint       string        `mapstructure:"search_endpoint"         yaml:"search_endpoint"`
	OpenAIEndpoint       string        `mapstructure:"openai_endpoint"         yaml:"openai_endpoint"`
	Model                string        `mapstructure:"model"                   yaml:"model"`
	Size                 string        `mapstructure:"size"                    yaml:"size"`
	MaxRetries           int           `mapstructure:"max_retries"             yaml:"max_retries"`
	BaseDelay            time.Duration `mapstructure:"base_delay"              yaml:"base_delay"`
	JPEGQuality          int           `mapstructure:"jpeg_quality"            yaml:"jpeg_quality"`
}

// EnrichConfig tunes the conditional enrichment policy.
type EnrichConfig struct {
	ArticleDepth         int           `mapstructure:"article_depth"          yaml:"article_depth"`
	ThumbnailMaxAttempts int           `mapstructure:"thumbnail_max_attempts" yaml:"thumbnail_max_attempts"`
	ThumbnailRetryAfter  time.Duration `mapstructure:"thumbnail_retry_after"  yaml:"thumbnail_retry_after"`
}

// VideoConfig controls the retroactive video job.
type VideoConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// ScheduleConfig controls the cron-driven scrape loop.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Spider: SpiderConfig{
			Delay:           1 * time.Second,
			ItemTimeout:     3 * time.Minute,
			MaxRetries:      3,
			RetryDelay:      1 * time.Second,
			Concurrency:     1,
			MaxListingPages: 5,
			Congress:        119,
			Chamber:         "House",
			Sections:        []string{"news"},
		},
		Fetcher: FetcherConfig{
			Type:            "browser",
			Headless:        true,
			Timeout:         30 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			Proxy:           ProxyConfig{Rotation: "round_robin"},
			UserAgents: []string{
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Storage: StorageConfig{
			Driver:         "postgres",
			MongoDatabase:  "civicscrape",
			AutoMigrate:    true,
			ConnectTimeout: 10 * time.Second,
		},
		AI: AIConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     120 * time.Second,
		},
		Images: ImagesConfig{
			SearchEndpoint: "https://www.googleapis.com/customsearch/v1",
			OpenAIEndpoint: "https://api.openai.com/v1",
			Model:          "dall-e-3",
			Size:           "1024x1024",
			MaxRetries:     3,
			BaseDelay:      1 * time.Second,
			JPEGQuality:    85,
		},
		Enrich: EnrichConfig{
			ArticleDepth:         3,
			ThumbnailMaxAttempts: 3,
			ThumbnailRetryAfter:  7 * 24 * time.Hour,
		},
		Video: VideoConfig{
			Limit: 1000,
		},
		Schedule: ScheduleConfig{
			Cron: "0 */6 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

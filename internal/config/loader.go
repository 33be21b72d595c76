package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envAliases binds settings to the conventional variable names used by the
// deployment, in addition to the CIVICSCRAPE_ prefixed form.
var envAliases = map[string]string{
	"storage.postgres_url":           "POSTGRES_URL",
	"storage.mongo_uri":              "MONGODB_URI",
	"ai.openai_api_key":              "OPENAI_API_KEY",
	"ai.anthropic_api_key":           "ANTHROPIC_API_KEY",
	"images.google_api_key":          "GOOGLE_API_KEY",
	"images.google_search_engine_id": "GOOGLE_SEARCH_ENGINE_ID",
}

// Load reads configuration from file, environment, and .env files.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("CIVICSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := "CIVICSCRAPE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", alias, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("civicscrape")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".civicscrape"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Config file not found is okay if not explicitly specified
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env files from the working directory and its parent.
// Existing environment variables win over file values.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("spider.delay", cfg.Spider.Delay)
	v.SetDefault("spider.item_timeout", cfg.Spider.ItemTimeout)
	v.SetDefault("spider.max_retries", cfg.Spider.MaxRetries)
	v.SetDefault("spider.retry_delay", cfg.Spider.RetryDelay)
	v.SetDefault("spider.concurrency", cfg.Spider.Concurrency)
	v.SetDefault("spider.max_items", cfg.Spider.MaxItems)
	v.SetDefault("spider.max_listing_pages", cfg.Spider.MaxListingPages)
	v.SetDefault("spider.congress", cfg.Spider.Congress)
	v.SetDefault("spider.chamber", cfg.Spider.Chamber)
	v.SetDefault("spider.sections", cfg.Spider.Sections)
	v.SetDefault("spider.respect_robots", cfg.Spider.RespectRobots)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)
	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.proxy.urls", cfg.Fetcher.Proxy.URLs)
	v.SetDefault("fetcher.proxy.rotation", cfg.Fetcher.Proxy.Rotation)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.postgres_url", cfg.Storage.PostgresURL)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.auto_migrate", cfg.Storage.AutoMigrate)
	v.SetDefault("storage.connect_timeout", cfg.Storage.ConnectTimeout)

	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.endpoint", cfg.AI.Endpoint)
	v.SetDefault("ai.openai_api_key", cfg.AI.OpenAIAPIKey)
	v.SetDefault("ai.anthropic_api_key", cfg.AI.AnthropicAPIKey)
	v.SetDefault("ai.max_tokens", cfg.AI.MaxTokens)
	v.SetDefault("ai.temperature", cfg.AI.Temperature)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)

	v.SetDefault("images.google_api_key", cfg.Images.GoogleAPIKey)
	v.SetDefault("images.google_search_engine_id", cfg.Images.GoogleSearchEngineID)
	v.SetDefault("images.search_endpoint", cfg.Images.SearchEndpoint)
	v.SetDefault("images.openai_endpoint", cfg.Images.OpenAIEndpoint)
	v.SetDefault("images.model", cfg.Images.Model)
	v.SetDefault("images.size", cfg.Images.Size)
	v.SetDefault("images.max_retries", cfg.Images.MaxRetries)
	v.SetDefault("images.base_delay", cfg.Images.BaseDelay)
	v.SetDefault("images.jpeg_quality", cfg.Images.JPEGQuality)

	v.SetDefault("enrich.article_depth", cfg.Enrich.ArticleDepth)
	v.SetDefault("enrich.thumbnail_max_attempts", cfg.Enrich.ThumbnailMaxAttempts)
	v.SetDefault("enrich.thumbnail_retry_after", cfg.Enrich.ThumbnailRetryAfter)

	v.SetDefault("video.limit", cfg.Video.Limit)
	v.SetDefault("schedule.cron", cfg.Schedule.Cron)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

package config

import (
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks the configuration for invalid values. Missing API keys are
// not errors here; the capability that needs them reports a
// ConfigurationError when it is first used.
func Validate(cfg *Config) error {
	return validation.Errors{
		"spider":  validateSpider(&cfg.Spider),
		"fetcher": validateFetcher(&cfg.Fetcher),
		"storage": validateStorage(&cfg.Storage),
		"ai": validation.ValidateStruct(&cfg.AI,
			validation.Field(&cfg.AI.Provider, validation.Required, validation.In("openai", "anthropic", "ollama", "custom")),
			validation.Field(&cfg.AI.Model, validation.Required),
			validation.Field(&cfg.AI.MaxTokens, validation.Min(1)),
			validation.Field(&cfg.AI.Temperature, validation.Min(0.0), validation.Max(2.0)),
		),
		"images": validation.ValidateStruct(&cfg.Images,
			validation.Field(&cfg.Images.MaxRetries, validation.Min(0)),
			validation.Field(&cfg.Images.BaseDelay, validation.Min(time.Duration(0))),
			validation.Field(&cfg.Images.JPEGQuality, validation.Min(1), validation.Max(100)),
			validation.Field(&cfg.Images.SearchEndpoint, validation.By(httpURL)),
			validation.Field(&cfg.Images.OpenAIEndpoint, validation.By(httpURL)),
		),
		"enrich": validation.ValidateStruct(&cfg.Enrich,
			validation.Field(&cfg.Enrich.ArticleDepth, validation.Min(1), validation.Max(5)),
			validation.Field(&cfg.Enrich.ThumbnailMaxAttempts, validation.Min(1)),
			validation.Field(&cfg.Enrich.ThumbnailRetryAfter, validation.Min(time.Duration(0))),
		),
		"video": validation.ValidateStruct(&cfg.Video,
			validation.Field(&cfg.Video.Limit, validation.Min(1)),
		),
		"logging": validation.ValidateStruct(&cfg.Logging,
			validation.Field(&cfg.Logging.Level, validation.In("debug", "info", "warn", "error")),
			validation.Field(&cfg.Logging.Format, validation.In("text", "json")),
		),
		"metrics": validation.ValidateStruct(&cfg.Metrics,
			validation.Field(&cfg.Metrics.Port, validation.When(cfg.Metrics.Enabled, validation.Min(1), validation.Max(65535))),
		),
	}.Filter()
}

func validateSpider(s *SpiderConfig) error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Delay, validation.Min(time.Duration(0))),
		validation.Field(&s.ItemTimeout, validation.Required),
		validation.Field(&s.MaxRetries, validation.Min(0)),
		validation.Field(&s.Concurrency, validation.Min(1), validation.Max(64)),
		validation.Field(&s.MaxItems, validation.Min(0)),
		validation.Field(&s.MaxListingPages, validation.Min(1)),
		validation.Field(&s.Congress, validation.Min(1)),
		validation.Field(&s.Chamber, validation.In("House", "Senate")),
	)
}

func validateFetcher(f *FetcherConfig) error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Type, validation.Required, validation.In("http", "browser")),
		validation.Field(&f.Timeout, validation.Required),
		validation.Field(&f.MaxBodySize, validation.Min(int64(1))),
		validation.Field(&f.MaxRedirects, validation.Min(0)),
		validation.Field(&f.Proxy),
	)
}

// Validate checks the rotation mode and that every proxy is an absolute URL.
func (p ProxyConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Rotation, validation.In("", "round_robin", "random")),
		validation.Field(&p.URLs, validation.Each(validation.By(parsesAsURL))),
	)
}

func parsesAsURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", s)
	}
	return nil
}

// validateStorage checks the driver and, for networked drivers, that the
// connection string parses.
func validateStorage(s *StorageConfig) error {
	if err := validation.ValidateStruct(s,
		validation.Field(&s.Driver, validation.Required, validation.In("postgres", "mongodb", "memory")),
	); err != nil {
		return err
	}
	switch s.Driver {
	case "postgres":
		if s.PostgresURL != "" {
			if err := ValidateDSN(s.PostgresURL, "postgres", "postgresql"); err != nil {
				return fmt.Errorf("postgres_url: %w", err)
			}
		}
	case "mongodb":
		if s.MongoURI != "" {
			if err := ValidateDSN(s.MongoURI, "mongodb", "mongodb+srv"); err != nil {
				return fmt.Errorf("mongo_uri: %w", err)
			}
		}
	}
	return nil
}

// ValidateDSN checks that a connection string parses and uses one of schemes.
func ValidateDSN(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("URL scheme must be one of %v, got %q", schemes, u.Scheme)
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	return ValidateURL(s)
}

// ValidateURL checks that a URL is absolute http or https.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

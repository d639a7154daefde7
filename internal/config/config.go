package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Harvest HarvestConfig `yaml:"harvest" mapstructure:"harvest"`
	Scorer  ScorerConfig  `yaml:"scorer" mapstructure:"scorer"`
	Fetcher FetcherConfig `yaml:"fetcher" mapstructure:"fetcher"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the knowledge-base backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"` // postgres pool size, 0 for default
}

// SearchConfig holds web search provider credentials and paging.
type SearchConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Country     string  `yaml:"country" mapstructure:"country"`
	SearchLang  string  `yaml:"search_lang" mapstructure:"search_lang"`
	Count       int     `yaml:"count" mapstructure:"count"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// HarvestConfig configures the harvest loop.
type HarvestConfig struct {
	Target              int    `yaml:"target" mapstructure:"target"`
	MaxWeb              int    `yaml:"max_web" mapstructure:"max_web"`
	MinConfidence       int    `yaml:"min_confidence" mapstructure:"min_confidence"`
	TimeBudgetSecs      int    `yaml:"time_budget_secs" mapstructure:"time_budget_secs"`
	AllTimeBudgetSecs   int    `yaml:"all_time_budget_secs" mapstructure:"all_time_budget_secs"`
	MaxPagesPerQuery    int    `yaml:"max_pages_per_query" mapstructure:"max_pages_per_query"`
	LowYieldMinAccepted int    `yaml:"low_yield_min_accepted" mapstructure:"low_yield_min_accepted"`
	LowYieldLimit       int    `yaml:"low_yield_limit" mapstructure:"low_yield_limit"`
	LoadPageSize        int    `yaml:"load_page_size" mapstructure:"load_page_size"`
	LoadMaxPages        int    `yaml:"load_max_pages" mapstructure:"load_max_pages"`
	MaxErrorDetails     int    `yaml:"max_error_details" mapstructure:"max_error_details"`
	RulesPath           string `yaml:"rules_path" mapstructure:"rules_path"`
}

// ScorerConfig holds the confidence score weights. Weights sum to 100.
type ScorerConfig struct {
	SectorStrongWeight  int      `yaml:"sector_strong_weight" mapstructure:"sector_strong_weight"`
	SectorMediumWeight  int      `yaml:"sector_medium_weight" mapstructure:"sector_medium_weight"`
	SectorWeakWeight    int      `yaml:"sector_weak_weight" mapstructure:"sector_weak_weight"`
	GeoCityWeight       int      `yaml:"geo_city_weight" mapstructure:"geo_city_weight"`
	GeoRegionWeight     int      `yaml:"geo_region_weight" mapstructure:"geo_region_weight"`
	CleanDomainWeight   int      `yaml:"clean_domain_weight" mapstructure:"clean_domain_weight"`
	SnippetWeight       int      `yaml:"snippet_weight" mapstructure:"snippet_weight"`
	SnippetMinLength    int      `yaml:"snippet_min_length" mapstructure:"snippet_min_length"`
	OfferingKeywords    []string `yaml:"offering_keywords" mapstructure:"offering_keywords"`
	DefaultMinimumScore int      `yaml:"default_minimum_score" mapstructure:"default_minimum_score"`
}

// FetcherConfig configures reference dataset downloads.
type FetcherConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AuditConfig configures the integrity audit.
type AuditConfig struct {
	ReferenceURL string `yaml:"reference_url" mapstructure:"reference_url"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "kb.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("search.provider", "brave")
	v.SetDefault("search.key", "")
	v.SetDefault("search.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("search.country", "CA")
	v.SetDefault("search.search_lang", "fr")
	v.SetDefault("search.count", 20)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.rate_limit", 1.0)
	v.SetDefault("harvest.target", 50)
	v.SetDefault("harvest.max_web", 200)
	v.SetDefault("harvest.min_confidence", 75)
	v.SetDefault("harvest.time_budget_secs", 90)
	v.SetDefault("harvest.all_time_budget_secs", 170)
	v.SetDefault("harvest.max_pages_per_query", 10)
	v.SetDefault("harvest.low_yield_min_accepted", 5)
	v.SetDefault("harvest.low_yield_limit", 5)
	v.SetDefault("harvest.load_page_size", 500)
	v.SetDefault("harvest.load_max_pages", 40)
	v.SetDefault("harvest.max_error_details", 10)
	v.SetDefault("harvest.rules_path", "")
	v.SetDefault("audit.reference_url", "")
	v.SetDefault("scorer.sector_strong_weight", 45)
	v.SetDefault("scorer.sector_medium_weight", 30)
	v.SetDefault("scorer.sector_weak_weight", 15)
	v.SetDefault("scorer.geo_city_weight", 25)
	v.SetDefault("scorer.geo_region_weight", 15)
	v.SetDefault("scorer.clean_domain_weight", 20)
	v.SetDefault("scorer.snippet_weight", 10)
	v.SetDefault("scorer.snippet_min_length", 80)
	v.SetDefault("scorer.default_minimum_score", 75)
	v.SetDefault("fetcher.user_agent", "kb-harvester/1.0")
	v.SetDefault("fetcher.temp_dir", "/tmp/kb-harvester")
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.timeout_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres", "badger":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, badger, memory")
	}

	switch mode {
	case "harvest":
		if c.Search.Key == "" {
			errs = append(errs, "search.key is required")
		}
		if c.Search.Count < 1 || c.Search.Count > 20 {
			errs = append(errs, "search.count must be between 1 and 20")
		}
		if c.Harvest.MinConfidence < 0 || c.Harvest.MinConfidence > 100 {
			errs = append(errs, "harvest.min_confidence must be between 0 and 100")
		}
		if c.Harvest.MaxPagesPerQuery < 1 {
			errs = append(errs, "harvest.max_pages_per_query must be > 0")
		}
		if c.Harvest.TimeBudgetSecs <= 0 {
			errs = append(errs, "harvest.time_budget_secs must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store", "audit", "import", "backfill":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

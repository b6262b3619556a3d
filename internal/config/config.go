// Package config loads and validates dataset builder configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/municipal-distances/internal/pipeline"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Region     RegionConfig     `mapstructure:"region"`
	Reference  ReferenceConfig  `mapstructure:"reference"`
	Cache      CacheConfig      `mapstructure:"cache"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Geocoder   GeocoderConfig   `mapstructure:"geocoder"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Output     OutputConfig     `mapstructure:"output"`
	Export     ExportConfig     `mapstructure:"export"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RegionConfig identifies the state whose municipalities are listed.
type RegionConfig struct {
	StateCode string `mapstructure:"state_code"`
	Name      string `mapstructure:"name"`
	Country   string `mapstructure:"country"`
}

// ReferenceConfig names the origin of every distance.
type ReferenceConfig struct {
	City string `mapstructure:"city"`
}

// CacheConfig locates the cache documents.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// SourcesConfig overrides the external service endpoints. Empty values use
// each client's default.
type SourcesConfig struct {
	RegistryURL string `mapstructure:"registry_url"`
	ScoreURL    string `mapstructure:"score_url"`
	GeocoderURL string `mapstructure:"geocoder_url"`
	RouterURL   string `mapstructure:"router_url"`
}

// GeocoderConfig lists the query strategies tried per municipality.
type GeocoderConfig struct {
	Strategies []pipeline.Strategy `mapstructure:"strategies"`
}

// PolitenessConfig spaces out calls to the shared public services.
type PolitenessConfig struct {
	GeocoderInterval time.Duration `mapstructure:"geocoder_interval"`
	RouterInterval   time.Duration `mapstructure:"router_interval"`
}

// RoutingConfig toggles road distances.
type RoutingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// OutputConfig sets the default export paths.
type OutputConfig struct {
	Path        string `mapstructure:"path"`
	PartialPath string `mapstructure:"partial_path"`
}

// ExportConfig holds the optional secondary sinks.
type ExportConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PostgresConfig enables the dataset table upsert when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// GCSConfig enables the export upload when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig enables the export notification when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig points at the node_exporter textfile, if any.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MUNIDIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	if len(cfg.Geocoder.Strategies) == 0 {
		cfg.Geocoder.Strategies = pipeline.DefaultStrategies()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region.state_code", "29")
	v.SetDefault("region.name", "Bahia")
	v.SetDefault("region.country", "Brasil")
	v.SetDefault("reference.city", "Salvador")
	v.SetDefault("cache.dir", ".cache_ba")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "municipal-distances/1.0 (+https://github.com/JakeFAU/municipal-distances)")
	v.SetDefault("politeness.geocoder_interval", 1500*time.Millisecond)
	v.SetDefault("politeness.router_interval", 800*time.Millisecond)
	v.SetDefault("routing.enabled", true)
	v.SetDefault("output.path", "distancias_bahia.csv")
	v.SetDefault("output.partial_path", "distancias_parcial_do_cache.csv")
	v.SetDefault("export.postgres.dsn", "")
	v.SetDefault("export.postgres.table", "municipal_distances")
	v.SetDefault("export.gcs.bucket", "")
	v.SetDefault("export.gcs.prefix", "")
	v.SetDefault("export.pubsub.project_id", "")
	v.SetDefault("export.pubsub.topic", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Region.StateCode) == "" {
		return fmt.Errorf("region.state_code is required")
	}
	if strings.TrimSpace(c.Reference.City) == "" {
		return fmt.Errorf("reference.city is required")
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent is required by the public services")
	}
	if c.Politeness.GeocoderInterval < 0 || c.Politeness.RouterInterval < 0 {
		return fmt.Errorf("politeness intervals must be >= 0")
	}
	if c.Export.PubSub.Topic != "" && strings.TrimSpace(c.Export.PubSub.ProjectID) == "" {
		return fmt.Errorf("export.pubsub.project_id is required when a topic is set")
	}
	for i, s := range c.Geocoder.Strategies {
		if !strings.Contains(s.Template, pipeline.PlaceholderName) {
			return fmt.Errorf("geocoder.strategies[%d] template must contain %s", i, pipeline.PlaceholderName)
		}
	}
	return nil
}

// Timeout converts the HTTP timeout to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Intervals maps service names to their courtesy interval.
func (c Config) Intervals() map[string]time.Duration {
	return map[string]time.Duration{
		pipeline.ServiceGeocoder: c.Politeness.GeocoderInterval,
		pipeline.ServiceRouter:   c.Politeness.RouterInterval,
	}
}

// Resolver projects the region settings onto the pipeline configuration.
func (c Config) Resolver() pipeline.Config {
	return pipeline.Config{
		Region:        c.Region.Name,
		Country:       c.Region.Country,
		ReferenceCity: c.Reference.City,
		Strategies:    c.Geocoder.Strategies,
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/zaorak/affiliate-hub/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Display   DisplayConfig   `mapstructure:"display"`
	FX        FXConfig        `mapstructure:"fx"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Networks  NetworksConfig  `mapstructure:"networks"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs snapshot/sync cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// DisplayConfig captures the default query surface the dashboard and the
// scheduled job share: countries, window length, sub-ID filters, currency.
type DisplayConfig struct {
	Currency      string   `mapstructure:"currency"`
	DaysBack      int      `mapstructure:"days_back"`
	Countries     []string `mapstructure:"countries"`
	Networks      []string `mapstructure:"networks"`
	SubIDs        []string `mapstructure:"sub_ids"`
	SubIDContains bool     `mapstructure:"sub_id_contains"`
}

// FXConfig covers the exchange-rate service.
type FXConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertsConfig defines alert routing and per-kind toggles.
type AlertsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	OnNew         bool          `mapstructure:"on_new"`
	OnRemoved     bool          `mapstructure:"on_removed"`
	OnClosed      bool          `mapstructure:"on_closed"`
	OnFeedFailure bool          `mapstructure:"on_feed_failure"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SMTP          SMTPConfig    `mapstructure:"smtp"`
}

// SMTPConfig 描述邮件告警的投递参数。
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// NetworksConfig groups the per-network credential blocks.
type NetworksConfig struct {
	RequestTimeout time.Duration       `mapstructure:"request_timeout"`
	RateLimit      float64             `mapstructure:"rate_limit"`
	CatalogTTL     time.Duration       `mapstructure:"catalog_ttl"`
	AWIN           AWINConfig          `mapstructure:"awin"`
	Addrevenue     AddrevenueConfig    `mapstructure:"addrevenue"`
	Impact         ImpactConfig        `mapstructure:"impact"`
	Partnerize     PartnerizeConfig    `mapstructure:"partnerize"`
	TwoPerformant  TwoPerformantConfig `mapstructure:"twoperformant"`
	Dognet         DognetConfig        `mapstructure:"dognet"`
}

// AWINConfig covers the AWIN publisher API and product feed list.
type AWINConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Token           string `mapstructure:"token"`
	PublisherID     string `mapstructure:"publisher_id"`
	FeedAPIKey      string `mapstructure:"feed_api_key"`
	FeedListURL     string `mapstructure:"feed_list_url"`
	FeedLanguage    string `mapstructure:"feed_language"`
	FeedFormat      string `mapstructure:"feed_format"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// AddrevenueConfig covers the Addrevenue v2 API.
type AddrevenueConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Token           string `mapstructure:"token"`
	ChannelID       string `mapstructure:"channel_id"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// ImpactConfig covers the Impact.com media partner API.
type ImpactConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	AccountSID      string `mapstructure:"account_sid"`
	AuthToken       string `mapstructure:"auth_token"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// PartnerizeConfig covers the Partnerize partner API.
type PartnerizeConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	AppKey          string `mapstructure:"app_key"`
	APIKey          string `mapstructure:"api_key"`
	PublisherID     string `mapstructure:"publisher_id"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// TwoPerformantConfig covers the 2Performant affiliate API.
type TwoPerformantConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Email           string `mapstructure:"email"`
	Password        string `mapstructure:"password"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// DognetConfig covers the Dognet affiliate API.
type DognetConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Token           string `mapstructure:"token"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// ExportConfig sets snapshot/export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	SnapshotCSV   string `mapstructure:"snapshot_csv"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AFFILIATEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "affiliate-hub")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x61666668))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("display.currency", "EUR")
	v.SetDefault("display.days_back", 5)
	v.SetDefault("display.networks", []string{"awin", "addrevenue", "impact", "partnerize", "2performant", "dognet"})
	v.SetDefault("display.sub_id_contains", false)

	v.SetDefault("fx.base_url", "https://api.exchangerate.host")
	v.SetDefault("fx.request_timeout", "10s")

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.on_new", true)
	v.SetDefault("alerts.on_removed", true)
	v.SetDefault("alerts.on_closed", true)
	v.SetDefault("alerts.on_feed_failure", true)
	v.SetDefault("alerts.cooldown", "60m")
	v.SetDefault("alerts.smtp.port", 587)

	v.SetDefault("networks.request_timeout", "30s")
	v.SetDefault("networks.rate_limit", 4.0)
	v.SetDefault("networks.catalog_ttl", "12h")

	v.SetDefault("networks.awin.base_url", "https://api.awin.com")
	v.SetDefault("networks.awin.feed_list_url", "https://productdata.awin.com/datafeed/list/apikey")
	v.SetDefault("networks.awin.feed_language", "en")
	v.SetDefault("networks.awin.feed_format", "xml")
	v.SetDefault("networks.awin.default_currency", "EUR")

	v.SetDefault("networks.addrevenue.base_url", "https://addrevenue.io/api/v2")
	v.SetDefault("networks.addrevenue.default_currency", "EUR")

	v.SetDefault("networks.impact.base_url", "https://api.impact.com/Mediapartners")
	v.SetDefault("networks.impact.default_currency", "EUR")

	v.SetDefault("networks.partnerize.base_url", "https://api.partnerize.com")
	v.SetDefault("networks.partnerize.default_currency", "EUR")

	v.SetDefault("networks.twoperformant.base_url", "https://api.2performant.com")
	v.SetDefault("networks.twoperformant.default_currency", "RON")

	v.SetDefault("networks.dognet.base_url", "https://api.dognet.com")
	v.SetDefault("networks.dognet.default_currency", "EUR")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Display.DaysBack <= 0 {
		return fmt.Errorf("display.days_back must be greater than zero")
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown 不能为负")
	}
	if c.Networks.RateLimit <= 0 {
		return fmt.Errorf("networks.rate_limit must be greater than zero")
	}
	return nil
}

// Countries returns the configured country list, upper-cased and trimmed.
func (c *Config) Countries() []string {
	out := make([]string, 0, len(c.Display.Countries))
	for _, cc := range c.Display.Countries {
		cc = strings.ToUpper(strings.TrimSpace(cc))
		if cc != "" {
			out = append(out, cc)
		}
	}
	return out
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

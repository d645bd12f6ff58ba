package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every option the replenishment agent recognizes once the
// loader has applied env > file > default precedence.
type Config struct {
	Listen    ListenConfig      `koanf:"listen"`
	Logging   LoggingConfig     `koanf:"logging"`
	Scheduler SchedulerConfig   `koanf:"scheduler"`
	Market    MarketConfig      `koanf:"market"`
	Cache     CacheConfig       `koanf:"cache"`
	Health    HealthConfig      `koanf:"health"`
	Forecast  ForecastConfig    `koanf:"forecast"`
	Catalog   CatalogConfig     `koanf:"catalog"`
	Notify    NotifyConfig      `koanf:"notify"`
	Publish   PublishConfig     `koanf:"publish"`
	Alerts    []AlertRuleConfig `koanf:"alerts"`
}

// ListenConfig instructs the ops HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SchedulerConfig controls the cadence of pipeline runs.
type SchedulerConfig struct {
	IntervalSeconds int `koanf:"intervalSeconds"`
}

// MarketConfig identifies the upstream seller API.
type MarketConfig struct {
	BaseURL        string `koanf:"baseUrl"`
	ClientID       string `koanf:"clientId"`
	APIKey         string `koanf:"apiKey"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// CacheConfig selects the snapshot store backend and its freshness policy.
// StaleGraceSeconds bounds how long an expired entry stays servable under
// the stale-while-degraded policy before the backend drops it for good.
type CacheConfig struct {
	Backend           string           `koanf:"backend"`
	TTLSeconds        int              `koanf:"ttlSeconds"`
	StaleGraceSeconds int              `koanf:"staleGraceSeconds"`
	KeySalt           string           `koanf:"keySalt"`
	Redis             RedisCacheConfig `koanf:"redis"`
}

type RedisCacheConfig struct {
	Address  string              `koanf:"address"`
	Username string              `koanf:"username"`
	Password string              `koanf:"password"`
	DB       int                 `koanf:"db"`
	TLS      RedisTLSCacheConfig `koanf:"tls"`
}

type RedisTLSCacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// HealthConfig parameterizes upstream health classification. The degraded
// thresholds must not exceed their unhealthy counterparts; Validate treats a
// violation as a configuration error.
type HealthConfig struct {
	WindowSeconds               int     `koanf:"windowSeconds"`
	MinSamples                  int     `koanf:"minSamples"`
	MaxSamples                  int     `koanf:"maxSamples"`
	ErrorDegradedThreshold      float64 `koanf:"errorDegradedThreshold"`
	ErrorUnhealthyThreshold     float64 `koanf:"errorUnhealthyThreshold"`
	LatencyDegradedThresholdMS  float64 `koanf:"latencyDegradedThresholdMs"`
	LatencyUnhealthyThresholdMS float64 `koanf:"latencyUnhealthyThresholdMs"`
}

// ForecastConfig parameterizes the reorder recommendation math.
type ForecastConfig struct {
	LookbackDays       int `koanf:"lookbackDays"`
	TargetCoverDays    int `koanf:"targetCoverDays"`
	MinHistoryDays     int `koanf:"minHistoryDays"`
	MaxStockAgeSeconds int `koanf:"maxStockAgeSeconds"`
	Concurrency        int `koanf:"concurrency"`
}

// CatalogConfig points at the SKU catalog document (SKU list plus minimum
// order quantities). The file is watched and hot-reloaded when present.
type CatalogConfig struct {
	File string `koanf:"file"`
}

// NotifyConfig wires the chat notifier and its message template sandbox.
type NotifyConfig struct {
	TelegramToken       string   `koanf:"telegramToken"`
	TelegramChatID      string   `koanf:"telegramChatId"`
	MessageTemplate     string   `koanf:"messageTemplate"`
	TemplatesFolder     string   `koanf:"templatesFolder"`
	TemplatesAllowEnv   bool     `koanf:"templatesAllowEnv"`
	TemplatesAllowedEnv []string `koanf:"templatesAllowedEnv"`
}

// PublishConfig controls the bundled spreadsheet-shaped publisher.
type PublishConfig struct {
	CSVPath string `koanf:"csvPath"`
}

// AlertRuleConfig declares a CEL condition evaluated against each endpoint's
// health status after a pipeline cycle. Matching rules notify the chat channel.
type AlertRuleConfig struct {
	Name     string `koanf:"name"`
	When     string `koanf:"when"`
	Severity string `koanf:"severity"`
	Message  string `koanf:"message"`
}

// Validate enforces invariants that keep the agent predictable before the
// first pipeline cycle runs. Any violation is fatal at startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Listen.Port)
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("config: scheduler.intervalSeconds invalid: %d", c.Scheduler.IntervalSeconds)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("config: cache.ttlSeconds must be positive: %d", c.Cache.TTLSeconds)
	}
	if c.Cache.StaleGraceSeconds < 0 {
		return fmt.Errorf("config: cache.staleGraceSeconds invalid: %d", c.Cache.StaleGraceSeconds)
	}
	backend := strings.TrimSpace(strings.ToLower(c.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.backend unsupported: %s", c.Cache.Backend)
	}
	if err := c.Health.validate(); err != nil {
		return err
	}
	if err := c.Forecast.validate(); err != nil {
		return err
	}
	for i, rule := range c.Alerts {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("config: alerts[%d].name required", i)
		}
		if strings.TrimSpace(rule.When) == "" {
			return fmt.Errorf("config: alert %q requires a when condition", rule.Name)
		}
	}
	return nil
}

func (h HealthConfig) validate() error {
	if h.WindowSeconds <= 0 {
		return fmt.Errorf("config: health.windowSeconds invalid: %d", h.WindowSeconds)
	}
	if h.MinSamples < 0 {
		return fmt.Errorf("config: health.minSamples invalid: %d", h.MinSamples)
	}
	if h.MaxSamples <= 0 {
		return fmt.Errorf("config: health.maxSamples invalid: %d", h.MaxSamples)
	}
	if h.ErrorDegradedThreshold < 0 || h.ErrorDegradedThreshold > 1 {
		return fmt.Errorf("config: health.errorDegradedThreshold out of range: %v", h.ErrorDegradedThreshold)
	}
	if h.ErrorUnhealthyThreshold < 0 || h.ErrorUnhealthyThreshold > 1 {
		return fmt.Errorf("config: health.errorUnhealthyThreshold out of range: %v", h.ErrorUnhealthyThreshold)
	}
	if h.ErrorDegradedThreshold > h.ErrorUnhealthyThreshold {
		return fmt.Errorf("config: health error thresholds unordered: degraded %v > unhealthy %v",
			h.ErrorDegradedThreshold, h.ErrorUnhealthyThreshold)
	}
	if h.LatencyDegradedThresholdMS < 0 || h.LatencyUnhealthyThresholdMS < 0 {
		return errors.New("config: health latency thresholds must be non-negative")
	}
	if h.LatencyDegradedThresholdMS > h.LatencyUnhealthyThresholdMS {
		return fmt.Errorf("config: health latency thresholds unordered: degraded %v > unhealthy %v",
			h.LatencyDegradedThresholdMS, h.LatencyUnhealthyThresholdMS)
	}
	return nil
}

func (f ForecastConfig) validate() error {
	if f.LookbackDays <= 0 {
		return fmt.Errorf("config: forecast.lookbackDays invalid: %d", f.LookbackDays)
	}
	if f.TargetCoverDays <= 0 {
		return fmt.Errorf("config: forecast.targetCoverDays invalid: %d", f.TargetCoverDays)
	}
	if f.MinHistoryDays < 0 {
		return fmt.Errorf("config: forecast.minHistoryDays invalid: %d", f.MinHistoryDays)
	}
	if f.MaxStockAgeSeconds <= 0 {
		return fmt.Errorf("config: forecast.maxStockAgeSeconds invalid: %d", f.MaxStockAgeSeconds)
	}
	if f.Concurrency <= 0 {
		return fmt.Errorf("config: forecast.concurrency invalid: %d", f.Concurrency)
	}
	return nil
}

// DefaultConfig returns the baseline values the agent runs with when neither
// file nor environment overrides are present.
func DefaultConfig() Config {
	return Config{
		Listen: ListenConfig{
			Address: "0.0.0.0",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds: 3600,
		},
		Market: MarketConfig{
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			Backend:           "memory",
			TTLSeconds:        3600,
			StaleGraceSeconds: 21600,
		},
		Health: HealthConfig{
			WindowSeconds:               900,
			MinSamples:                  5,
			MaxSamples:                  1024,
			ErrorDegradedThreshold:      0.05,
			ErrorUnhealthyThreshold:     0.25,
			LatencyDegradedThresholdMS:  1500,
			LatencyUnhealthyThresholdMS: 5000,
		},
		Forecast: ForecastConfig{
			LookbackDays:       90,
			TargetCoverDays:    40,
			MinHistoryDays:     14,
			MaxStockAgeSeconds: 86400,
			Concurrency:        4,
		},
	}
}

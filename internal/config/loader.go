package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot and validates it eagerly so threshold
// ordering or TTL mistakes abort startup instead of surfacing mid-cycle.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserForFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		// Canonical key map restores camelCase paths after the lossy
		// lowercase/underscore-strip transform below.
		canonical := map[string]string{
			"scheduler.intervalseconds":           "scheduler.intervalSeconds",
			"market.baseurl":                      "market.baseUrl",
			"market.clientid":                     "market.clientId",
			"market.apikey":                       "market.apiKey",
			"market.timeoutseconds":               "market.timeoutSeconds",
			"cache.ttlseconds":                    "cache.ttlSeconds",
			"cache.stalegraceseconds":             "cache.staleGraceSeconds",
			"cache.keysalt":                       "cache.keySalt",
			"cache.redis.tls.cafile":              "cache.redis.tls.caFile",
			"health.windowseconds":                "health.windowSeconds",
			"health.minsamples":                   "health.minSamples",
			"health.maxsamples":                   "health.maxSamples",
			"health.errordegradedthreshold":       "health.errorDegradedThreshold",
			"health.errorunhealthythreshold":      "health.errorUnhealthyThreshold",
			"health.latencydegradedthresholdms":   "health.latencyDegradedThresholdMs",
			"health.latencyunhealthythresholdms":  "health.latencyUnhealthyThresholdMs",
			"forecast.lookbackdays":               "forecast.lookbackDays",
			"forecast.targetcoverdays":            "forecast.targetCoverDays",
			"forecast.minhistorydays":             "forecast.minHistoryDays",
			"forecast.maxstockageseconds":         "forecast.maxStockAgeSeconds",
			"notify.telegramtoken":                "notify.telegramToken",
			"notify.telegramchatid":               "notify.telegramChatId",
			"notify.messagetemplate":              "notify.messageTemplate",
			"notify.templatesfolder":              "notify.templatesFolder",
			"notify.templatesallowenv":            "notify.templatesAllowEnv",
			"notify.templatesallowedenv":          "notify.templatesAllowedEnv",
			"publish.csvpath":                     "publish.csvPath",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (CACHE__TTL_SECONDS -> cache.ttlseconds -> cache.ttlSeconds).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			// Single underscores are removed so TTL_SECONDS collapses into
			// ttlseconds before the canonical lookup.
			key = strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if mapped, ok := canonical[key]; ok {
				return mapped
			}
			return key
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserForFile(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return ktoml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file format: %s", path)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"listen": map[string]any{
			"address": cfg.Listen.Address,
			"port":    cfg.Listen.Port,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"scheduler": map[string]any{
			"intervalSeconds": cfg.Scheduler.IntervalSeconds,
		},
		"market": map[string]any{
			"baseUrl":        cfg.Market.BaseURL,
			"clientId":       cfg.Market.ClientID,
			"apiKey":         cfg.Market.APIKey,
			"timeoutSeconds": cfg.Market.TimeoutSeconds,
		},
		"cache": map[string]any{
			"backend":           cfg.Cache.Backend,
			"ttlSeconds":        cfg.Cache.TTLSeconds,
			"staleGraceSeconds": cfg.Cache.StaleGraceSeconds,
			"keySalt":           cfg.Cache.KeySalt,
			"redis": map[string]any{
				"address":  cfg.Cache.Redis.Address,
				"username": cfg.Cache.Redis.Username,
				"password": cfg.Cache.Redis.Password,
				"db":       cfg.Cache.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Redis.TLS.Enabled,
					"caFile":  cfg.Cache.Redis.TLS.CAFile,
				},
			},
		},
		"health": map[string]any{
			"windowSeconds":               cfg.Health.WindowSeconds,
			"minSamples":                  cfg.Health.MinSamples,
			"maxSamples":                  cfg.Health.MaxSamples,
			"errorDegradedThreshold":      cfg.Health.ErrorDegradedThreshold,
			"errorUnhealthyThreshold":     cfg.Health.ErrorUnhealthyThreshold,
			"latencyDegradedThresholdMs":  cfg.Health.LatencyDegradedThresholdMS,
			"latencyUnhealthyThresholdMs": cfg.Health.LatencyUnhealthyThresholdMS,
		},
		"forecast": map[string]any{
			"lookbackDays":       cfg.Forecast.LookbackDays,
			"targetCoverDays":    cfg.Forecast.TargetCoverDays,
			"minHistoryDays":     cfg.Forecast.MinHistoryDays,
			"maxStockAgeSeconds": cfg.Forecast.MaxStockAgeSeconds,
			"concurrency":        cfg.Forecast.Concurrency,
		},
		"catalog": map[string]any{
			"file": cfg.Catalog.File,
		},
	}
}

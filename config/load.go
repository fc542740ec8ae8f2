package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"avellaneda-mm/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string         `yaml:"env"`
	Logger      logger.Config  `yaml:"logger"`
	MetricsAddr string         `yaml:"metricsAddr"` // 为空则不启动 metrics HTTP
	Exchange    ExchangeConfig `yaml:"exchange"`
	Strategies  []Params       `yaml:"strategies"`
}

type ExchangeConfig struct {
	Name      string `yaml:"name"` // registry 中注册的名字，如 paper
	StreamURL string `yaml:"streamURL"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deploy-specific fields
// from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MM_STREAM_URL"); v != "" {
		cfg.Exchange.StreamURL = v
	}
	if v := os.Getenv("MM_EXCHANGE"); v != "" {
		cfg.Exchange.Name = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present. 策略字段的细则由 Resolve 负责，
// 这里只保证每条都能 Resolve 成功且 symbol 不重复。
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return fmt.Errorf("%w: env is required", ErrValidation)
	}
	if cfg.Exchange.Name == "" {
		return fmt.Errorf("%w: exchange.name is required", ErrValidation)
	}
	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("%w: at least one strategy is required", ErrValidation)
	}
	seen := make(map[string]bool, len(cfg.Strategies))
	for i, p := range cfg.Strategies {
		if _, err := Resolve(p); err != nil {
			return fmt.Errorf("strategies[%d]: %w", i, err)
		}
		if seen[p.Symbol] {
			return fmt.Errorf("%w: duplicate strategy for symbol %s", ErrValidation, p.Symbol)
		}
		seen[p.Symbol] = true
	}
	return nil
}

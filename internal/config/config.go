// Package config holds the strategy and service configuration.
//
// Product parameters are immutable once an engine is built from them.
// They come from a preset, a YAML file, or both; service settings are then
// overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atmx/quote-engine/internal/fairvalue"
	"github.com/atmx/quote-engine/internal/quote"
)

var (
	// ErrNoProducts is returned when no product is configured.
	ErrNoProducts = errors.New("config: at least one product is required")

	// ErrDuplicateProduct is returned when a symbol is configured twice.
	ErrDuplicateProduct = errors.New("config: duplicate product")

	// ErrUnknownPreset is returned for an unrecognised preset name.
	ErrUnknownPreset = errors.New("config: unknown preset")
)

// Product is the full parameter record for one tradable instrument.
type Product struct {
	Symbol           string  `yaml:"symbol"`
	InitialFairValue float64 `yaml:"initial_fair_value"`
	PositionLimit    int     `yaml:"position_limit"`
	BaseThreshold    float64 `yaml:"base_threshold"`
	BaseOrderSize    int     `yaml:"base_order_size"`
	Alpha            float64 `yaml:"alpha"`
	InventoryFactor  float64 `yaml:"inventory_factor"`
	Offset           float64 `yaml:"offset"`
	MinSpread        float64 `yaml:"min_spread"`

	Estimation    fairvalue.Method `yaml:"estimation"`
	HistoryWindow int              `yaml:"history_window"`
	MinPoints     int              `yaml:"min_points"`

	Sizing         quote.SizeMethod   `yaml:"sizing"`
	SizeBreakpoint int                `yaml:"size_breakpoint"`
	OffsetMode     quote.OffsetMethod `yaml:"offset_mode"`
}

// EstimatorParams maps the record onto fair-value estimator parameters.
func (p Product) EstimatorParams() fairvalue.Params {
	return fairvalue.Params{
		Method:        p.Estimation,
		Alpha:         p.Alpha,
		BaseThreshold: p.BaseThreshold,
		HistoryWindow: p.HistoryWindow,
		MinPoints:     p.MinPoints,
	}
}

// QuoteParams maps the record onto sizing and offset parameters.
func (p Product) QuoteParams() quote.Params {
	return quote.Params{
		Size:       p.Sizing,
		BaseSize:   p.BaseOrderSize,
		Breakpoint: p.SizeBreakpoint,
		Offset:     p.OffsetMode,
		BaseOffset: p.Offset,
		MinSpread:  p.MinSpread,
	}
}

// Validate checks one product record.
func (p Product) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Symbol) == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if p.PositionLimit <= 0 {
		errs = append(errs, fmt.Errorf("position_limit must be positive, got %d", p.PositionLimit))
	}
	if p.InventoryFactor < 0 {
		errs = append(errs, fmt.Errorf("inventory_factor must be non-negative, got %g", p.InventoryFactor))
	}
	if err := p.EstimatorParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.QuoteParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("product %q: %w", p.Symbol, errors.Join(errs...))
}

// Server holds the host service settings.
type Server struct {
	Port        string        `yaml:"port"`
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	LogLevel    string        `yaml:"log_level"`
}

// Config is the root configuration. Products are traded in the order
// listed.
type Config struct {
	Preset   string    `yaml:"preset"`
	Products []Product `yaml:"products"`
	Server   Server    `yaml:"server"`
}

// Validate checks every product and rejects duplicates.
func (c Config) Validate() error {
	if len(c.Products) == 0 {
		return ErrNoProducts
	}
	var errs []error
	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if seen[p.Symbol] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateProduct, p.Symbol))
		}
		seen[p.Symbol] = true
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads a YAML file. When the file names a preset and lists no
// products, the preset's products are used.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(cfg.Products) == 0 && cfg.Preset != "" {
		preset, err := Preset(cfg.Preset)
		if err != nil {
			return nil, err
		}
		cfg.Products = preset.Products
	}
	cfg.Server = cfg.Server.withDefaults()
	return &cfg, nil
}

// FromEnv builds the configuration the service runs with: CONFIG_PATH if
// set, otherwise STRATEGY_PRESET (default "mean_revert"); then PORT,
// DATABASE_URL, REDIS_URL and LOG_LEVEL override the server section.
func FromEnv() (*Config, error) {
	var cfg *Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		name := os.Getenv("STRATEGY_PRESET")
		if name == "" {
			name = PresetMeanRevert
		}
		preset, err := Preset(name)
		if err != nil {
			return nil, err
		}
		cfg = &preset
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Server.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Server.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	cfg.Server = cfg.Server.withDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s Server) withDefaults() Server {
	if s.Port == "" {
		s.Port = "8080"
	}
	if s.CacheTTL <= 0 {
		s.CacheTTL = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	return s
}

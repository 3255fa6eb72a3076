// Package config loads the YAML run profile of the simulator.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradesim/internal/indicator"
	"tradesim/internal/model"
	"tradesim/internal/strategy"
)

var validate = validator.New()

// Config holds one simulation profile.
type Config struct {
	Markets []MarketConfig `yaml:"markets" validate:"required,min=1,dive"`

	// From/To bound the simulated period (RFC3339 or YYYY-MM-DD, UTC).
	// Empty means unbounded.
	From string `yaml:"from"`
	To   string `yaml:"to"`

	// Timeframes lists the stored series loaded per market. When empty it is
	// derived from the clock-based timeframes of Indicators.
	Timeframes []model.Timeframe `yaml:"timeframes"`

	Tiger struct {
		Step float64 `yaml:"step" validate:"gte=0"` // 0 disables the Tiger timeframe
	} `yaml:"tiger"`

	Indicators []indicator.TFIndicatorConfig `yaml:"indicators" validate:"required,min=1"`

	Strategy struct {
		Enabled                     bool `yaml:"enabled" default:"true"`
		strategy.EMACrossoverParams `yaml:",inline"`
	} `yaml:"strategy"`

	Workers    int     `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	Speed      float64 `yaml:"speed" validate:"gte=0"` // replay pacing multiplier, 0 = unpaced
	CloseAtEnd bool    `yaml:"close_at_end"`           // close open trades at the last base close

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json text"`
	} `yaml:"log"`

	SQLite struct {
		Path      string `yaml:"path" default:"data/tradesim.db" validate:"required"`
		BatchSize int    `yaml:"batch_size" default:"500" validate:"gte=1"`
	} `yaml:"sqlite"`

	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db" validate:"gte=0"`
		MaxLen       int64         `yaml:"max_len" default:"10000" validate:"gte=0"`
		BufferSize   int           `yaml:"buffer_size" default:"10000" validate:"gte=0"`
		MaxFailures  int           `yaml:"max_failures" default:"5" validate:"gte=1"`
		ResetTimeout time.Duration `yaml:"reset_timeout" default:"10s"`
		ConnectWait  time.Duration `yaml:"connect_wait" default:"5s"`
	} `yaml:"redis"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr" default:":9090"`
	} `yaml:"metrics"`

	Feed struct {
		Enabled    bool   `yaml:"enabled"`
		Addr       string `yaml:"addr" default:":8090"`
		ReplaySize int    `yaml:"replay_size" default:"500" validate:"gte=1"` // envelopes kept per channel
	} `yaml:"feed"`
}

// MarketConfig describes one simulated market.
type MarketConfig struct {
	Name    string          `yaml:"name" validate:"required"`
	PipSize decimal.Decimal `yaml:"pip_size"`
}

// Load reads, defaults, overrides from the environment and validates the
// profile at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	// Defaults go in first so explicit zero values in the YAML (M1, EMA8,
	// false) are not mistaken for unset fields.
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	c.SQLite.Path = getEnv("TRADESIM_DB", c.SQLite.Path)
	if v := os.Getenv("TRADESIM_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("TRADESIM_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
	if v := os.Getenv("TRADESIM_FEED_ADDR"); v != "" {
		c.Feed.Addr = v
		c.Feed.Enabled = true
	}
	c.Log.Level = strings.ToLower(getEnv("TRADESIM_LOG_LEVEL", c.Log.Level))
	if v := os.Getenv("TRADESIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}
	if err := indicator.ValidateConfigs(c.Indicators); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if seen[m.Name] {
			return fmt.Errorf("duplicate market %q", m.Name)
		}
		seen[m.Name] = true
		if m.PipSize.IsNegative() {
			return fmt.Errorf("market %s: pip_size must not be negative", m.Name)
		}
	}

	for _, ic := range c.Indicators {
		if ic.TF == model.Tiger && c.Tiger.Step <= 0 {
			return errors.New("indicators on TIGER need tiger.step > 0")
		}
	}
	for _, tf := range c.Timeframes {
		if !tf.IsClockBased() {
			return errors.New("timeframes: TIGER is derived, not loaded; set tiger.step instead")
		}
	}
	if len(c.SeriesTimeframes()) == 0 {
		return errors.New("no clock-based timeframe to load")
	}

	from, to, err := c.Range()
	if err != nil {
		return err
	}
	if to != 0 && from >= to {
		return fmt.Errorf("from %s is not before to %s", c.From, c.To)
	}
	return nil
}

// validationError flattens validator errors into one readable error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// MarketList returns the configured markets.
func (c *Config) MarketList() []model.Market {
	out := make([]model.Market, len(c.Markets))
	for i, m := range c.Markets {
		out[i] = model.Market{Name: m.Name, PipSize: m.PipSize}
	}
	return out
}

// SeriesTimeframes returns the clock-based timeframes to load, sorted.
func (c *Config) SeriesTimeframes() []model.Timeframe {
	var tfs []model.Timeframe
	if len(c.Timeframes) > 0 {
		tfs = append(tfs, c.Timeframes...)
	} else {
		for _, ic := range c.Indicators {
			if ic.TF.IsClockBased() {
				tfs = append(tfs, ic.TF)
			}
		}
	}
	return model.SortTimeframes(tfs)
}

// Range returns From/To as ticks, 0 when unset.
func (c *Config) Range() (from, to int64, err error) {
	if from, err = parseTime(c.From); err != nil {
		return 0, 0, fmt.Errorf("from: %w", err)
	}
	if to, err = parseTime(c.To); err != nil {
		return 0, 0, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}

func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return model.TicksOf(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognised time %q", s)
}

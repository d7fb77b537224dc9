package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when settings fail validation
var ErrInvalid = errors.New("invalid settings")

// Reserved component names that modules may not use
var reservedNames = map[string]bool{
	"manager":    true,
	"executor":   true,
	"publisher":  true,
	"subscriber": true,
}

// Settings holds the static configuration of a worker
type Settings struct {
	Debug bool `yaml:"debug"`

	// Logging is a zap Config document; unset keys keep production defaults
	Logging yaml.Node `yaml:"logging"`

	Manager  ComponentConfig            `yaml:"manager"`
	Executor ComponentConfig            `yaml:"executor"`
	Modules  map[string]ComponentConfig `yaml:"modules"`

	// Publisher is optional, Subscriber is required
	Publisher  *ComponentConfig `yaml:"publisher"`
	Subscriber *ComponentConfig `yaml:"subscriber"`

	overrides Overrides
}

// ComponentConfig names a component kind and carries its own config payload
type ComponentConfig struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// Overrides holds values taken from the environment
type Overrides struct {
	Debug       *bool  `env:"PATCHWORK_DEBUG"`
	LogLevel    string `env:"PATCHWORK_LOG_LEVEL"`
	LogEncoding string `env:"PATCHWORK_LOG_ENCODING"`
}

// Bootstrap holds the values needed before settings can be read
type Bootstrap struct {
	ConfigFile string `env:"PATCHWORK_CONFIG" envDefault:"patchwork.yaml"`
}

// LoadBootstrap reads bootstrap values from environment variables
func LoadBootstrap() (*Bootstrap, error) {
	b := &Bootstrap{}
	if err := env.Parse(b); err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap config: %w", err)
	}
	return b, nil
}

// Load reads settings from a YAML file and applies environment overrides
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	return Parse(data)
}

// Parse decodes settings from YAML and applies environment overrides
func Parse(data []byte) (*Settings, error) {
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := env.Parse(&s.overrides); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	if s.overrides.Debug != nil {
		s.Debug = *s.overrides.Debug
	}

	for name, mod := range s.Modules {
		if mod.Name == "" {
			mod.Name = name
			s.Modules[name] = mod
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks if the settings are valid
func (s *Settings) Validate() error {
	if s.Manager.Name == "" {
		return fmt.Errorf("%w: manager kind is required", ErrInvalid)
	}
	if s.Executor.Name == "" {
		return fmt.Errorf("%w: executor kind is required", ErrInvalid)
	}
	if s.Subscriber == nil || s.Subscriber.Name == "" {
		return fmt.Errorf("%w: subscriber is required", ErrInvalid)
	}
	if s.Publisher != nil && s.Publisher.Name == "" {
		return fmt.Errorf("%w: publisher kind is required when publisher is set", ErrInvalid)
	}

	for name, mod := range s.Modules {
		if reservedNames[name] {
			return fmt.Errorf("%w: module name %q is reserved", ErrInvalid, name)
		}
		if mod.Name == "" {
			return fmt.Errorf("%w: module %q has no kind", ErrInvalid, name)
		}
	}

	if _, err := s.LoggerConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return nil
}

// LoggerConfig merges the logging document over zap's production config
func (s *Settings) LoggerConfig() (zap.Config, error) {
	cfg := zap.NewProductionConfig()
	if s.Debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if !s.Logging.IsZero() {
		if err := s.Logging.Decode(&cfg); err != nil {
			return zap.Config{}, fmt.Errorf("failed to decode logging config: %w", err)
		}
	}

	if s.overrides.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(s.overrides.LogLevel)
		if err != nil {
			return zap.Config{}, fmt.Errorf("invalid log level: %s", s.overrides.LogLevel)
		}
		cfg.Level = level
	}
	if s.overrides.LogEncoding != "" {
		cfg.Encoding = s.overrides.LogEncoding
	}

	return cfg, nil
}

// Decode decodes the component's config payload into v.
// An absent payload leaves v untouched.
func (c *ComponentConfig) Decode(v interface{}) error {
	if c.Config.IsZero() {
		return nil
	}
	if err := c.Config.Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s config: %w", c.Name, err)
	}
	return nil
}

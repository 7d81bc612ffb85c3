package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Shared validator with the custom tags registered.
var validate *validator.Validate

func init() {
	validate = validator.New()

	registerCustomValidators()
}

// Config tunes an Engine. Zero values are replaced by the defaults below.
type Config struct {
	// DefaultMaxLoopCount caps while loops that do not declare maxCount.
	DefaultMaxLoopCount int `yaml:"default_max_loop_count" default:"1000" validate:"gte=1"`
	// MaxNodeVisits aborts a run that visits more nodes than this. Zero
	// leaves runs bounded only by their loops.
	MaxNodeVisits int `yaml:"max_node_visits" validate:"gte=0"`

	InputVariable        string `yaml:"input_variable" default:"input" validate:"required"`
	PageVariable         string `yaml:"page_variable" default:"page" validate:"required"`
	ParamsVariable       string `yaml:"params_variable" default:"params" validate:"required"`
	FormatErrorsVariable string `yaml:"format_errors_variable" default:"formatErrors" validate:"required"`

	AliasCacheTTL time.Duration `yaml:"alias_cache_ttl" default:"5m" validate:"gte=0"`
}

// NewConfig returns a Config with every default applied.
func NewConfig() Config {
	var c Config
	if err := ApplyDefaults(&c); err != nil {
		panic(fmt.Sprintf("engine config defaults: %v", err))
	}
	return c
}

// InitializeConfig applies defaults, merges raw values and validates, in that order.
func InitializeConfig(config any, rawValues map[string]any) error {
	typ := fmt.Sprintf("%T", config)
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults", "config_type", typ, "error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Raw values come from YAML files, so decode by yaml tag
	if len(rawValues) > 0 {
		if err := decodeInto(rawValues, config, "yaml"); err != nil {
			slog.Error("Config: failed to apply config values", "config_type", typ, "raw_values", rawValues, "error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	if err := validateConfig(reflect.Indirect(reflect.ValueOf(config)).Interface()); err != nil {
		slog.Error("Config validation failed", "config_type", typ, "error", err)
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// PrepareConfig applies defaults to an already populated struct and validates it.
func PrepareConfig(config any) error {
	if err := ApplyDefaults(config); err != nil {
		return fmt.Errorf("failed to prepare config (defaults): %w", err)
	}
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("failed to prepare config (validation): %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields from their default tags.
func ApplyDefaults(config any) error {
	if config == nil {
		return errNilConfig
	}
	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}
	return nil
}

var errNilConfig = errors.New("config cannot be nil")

func validateConfig(config any) error {
	if config == nil {
		return errNilConfig
	}
	err := validate.Struct(config)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	lines := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		lines[i] = fmt.Sprintf("%s: rule %q not satisfied by %v", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(lines, "\n  - "))
}

func registerCustomValidators() {
	// host:port with a resolvable port
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		host, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || host == "" || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// absolute URL with scheme and host
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}

// validVar runs a single validator tag against a value.
func validVar(value any, tag string) bool {
	return validate.Var(value, tag) == nil
}

// Package config loads host configuration from YAML and validates it.
// Command-line flags and CLUSO_* environment variables are layered on
// top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete host configuration
type Config struct {
	HostID           string `yaml:"host_id" mapstructure:"host_id" validate:"required"`
	Mode             string `yaml:"mode" mapstructure:"mode" validate:"required,oneof=leader follower"`
	ClusterID        string `yaml:"cluster_id" mapstructure:"cluster_id"`
	RequireClusterID bool   `yaml:"require_cluster_id" mapstructure:"require_cluster_id"`
	Orchestrator     string `yaml:"orchestrator" mapstructure:"orchestrator" validate:"oneof=kubernetes containership"`
	PreferredNIC     string `yaml:"preferred_nic" mapstructure:"preferred_nic"`
	PublicAddress    string `yaml:"public_address" mapstructure:"public_address"`
	PrivateAddress   string `yaml:"private_address" mapstructure:"private_address"`

	API             EndpointConfig     `yaml:"api" mapstructure:"api"`
	OrchestratorAPI EndpointConfig     `yaml:"orchestrator_api" mapstructure:"orchestrator_api"`
	Store           StoreConfig        `yaml:"store" mapstructure:"store"`
	Coordination    CoordinationConfig `yaml:"coordination" mapstructure:"coordination"`
	Reconcile       ReconcileConfig    `yaml:"reconcile" mapstructure:"reconcile"`
	HTTP            HTTPConfig         `yaml:"http" mapstructure:"http"`
	Logging         LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// EndpointConfig is a host:port pair
type EndpointConfig struct {
	IP   string `yaml:"ip" mapstructure:"ip" validate:"required"`
	Port int    `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
}

// StoreConfig selects and configures the distributed key-value backend
type StoreConfig struct {
	// Backend is one of memory, redis, postgres
	Backend string `yaml:"backend" mapstructure:"backend" validate:"oneof=memory redis postgres"`
	Key     string `yaml:"key" mapstructure:"key" validate:"required"`

	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db" validate:"min=0"`

	PostgresURL string `yaml:"postgres_url" mapstructure:"postgres_url" validate:"required_if=Backend postgres"`
}

// CoordinationConfig tunes cluster id publication
type CoordinationConfig struct {
	RetryInitial   time.Duration `yaml:"retry_initial" mapstructure:"retry_initial" validate:"gt=0"`
	RetryAttempts  int           `yaml:"retry_attempts" mapstructure:"retry_attempts" validate:"min=1,max=32"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" mapstructure:"attempt_timeout" validate:"min=0"`
}

// ReconcileConfig tunes the leader-only reconciliation loops
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gt=0"`
}

// HTTPConfig configures the health and metrics listener
type HTTPConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// Default returns a configuration with every optional field filled
func Default() Config {
	return Config{
		Mode:         "follower",
		Orchestrator: "kubernetes",
		API: EndpointConfig{
			IP:   "localhost",
			Port: 8080,
		},
		OrchestratorAPI: EndpointConfig{
			IP:   "localhost",
			Port: 6443,
		},
		Store: StoreConfig{
			Backend: "memory",
			Key:     "cluster_id",
		},
		Coordination: CoordinationConfig{
			RetryInitial:   250 * time.Millisecond,
			RetryAttempts:  8,
			AttemptTimeout: 10 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval: 60 * time.Second,
		},
		HTTP: HTTPConfig{
			Listen: ":9464",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Validate checks struct constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Load reads path over Default and validates the result. An empty path
// returns the defaults unvalidated, for callers that fill the rest from
// flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required when %s", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Package config loads the catalog backend configuration.
//
// Configuration is layered, from lowest to highest priority:
//  1. Defaults in code
//  2. base.yaml
//  3. <environment>.yaml (development.yaml, staging.yaml, production.yaml)
//  4. local.yaml, in development only
//  5. Environment variables
//
// The result is validated with struct tags before it is returned.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete application configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment" validate:"required,oneof=development staging production"`

	Server  Server  `yaml:"server" json:"server"`
	Storage Storage `yaml:"storage" json:"storage"`
	Cache   Cache   `yaml:"cache" json:"cache"`
	Breaker Breaker `yaml:"breaker" json:"breaker"`
	Logging Logging `yaml:"logging" json:"logging"`
	Metrics Metrics `yaml:"metrics" json:"metrics"`

	// LoadedFrom lists the sources applied, in order.
	LoadedFrom []string `yaml:"-" json:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout" json:"readTimeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" json:"writeTimeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" json:"idleTimeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" validate:"gt=0"`
}

// Address returns host:port.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Storage configures where entity files and their backups live.
type Storage struct {
	DataDir   string `yaml:"dataDir" json:"dataDir" validate:"required"`
	BackupDir string `yaml:"backupDir" json:"backupDir"`

	EnableBackups bool `yaml:"enableBackups" json:"enableBackups"`
	// MaxBackups per entity file; 0 keeps all.
	MaxBackups int `yaml:"maxBackups" json:"maxBackups" validate:"min=0"`

	// SizeWarningBytes is the soft file size limit reported by validation.
	SizeWarningBytes int64 `yaml:"sizeWarningBytes" json:"sizeWarningBytes" validate:"min=0"`
}

// Cache configures the cache stores and managers.
type Cache struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	DefaultTTL time.Duration `yaml:"defaultTTL" json:"defaultTTL" validate:"gt=0"`
	MaxEntries int           `yaml:"maxEntries" json:"maxEntries" validate:"min=1"`

	// SweepInterval of the managers' background sweep; 0 disables it.
	SweepInterval time.Duration `yaml:"sweepInterval" json:"sweepInterval" validate:"gte=0"`

	// WatchFiles drops cached files as soon as they change on disk.
	WatchFiles bool `yaml:"watchFiles" json:"watchFiles"`

	// CategoryTTLs maps file categories ("analytics", "products:featured")
	// to their TTL.
	CategoryTTLs map[string]time.Duration `yaml:"categoryTTLs" json:"categoryTTLs" validate:"dive,keys,required,endkeys,gt=0"`
}

// Breaker configures the circuit breaker guarding the managers' cached path.
type Breaker struct {
	MaxRequests      uint32        `yaml:"maxRequests" json:"maxRequests" validate:"min=1"`
	Interval         time.Duration `yaml:"interval" json:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failureThreshold" json:"failureThreshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"minRequests" json:"minRequests" validate:"min=1"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=json console"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace" validate:"required_if=Enabled true"`
	Path      string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

var validate = validator.New()

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvironmentDefaults fills settings derived from others.
func (c *Config) applyEnvironmentDefaults() {
	if c.Storage.BackupDir == "" {
		c.Storage.BackupDir = filepath.Join(c.Storage.DataDir, "backups")
	}
	if c.Cache.CategoryTTLs == nil {
		c.Cache.CategoryTTLs = map[string]time.Duration{}
	}
}

func getEnvironment() Environment {
	switch Environment(strings.ToLower(os.Getenv("ENVIRONMENT"))) {
	case Production:
		return Production
	case Staging:
		return Staging
	default:
		return Development
	}
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"catalog-backend/internal/infrastructure/cache"

	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from multiple sources.
type Loader struct {
	// basePath is the directory holding the configuration files.
	basePath string

	environment Environment

	// sources tracks where configuration was loaded from
	sources []string

	// fileLoaders are tried in order for every file name.
	fileLoaders []FileLoader

	// warn receives non-fatal problems, such as a broken local.yaml.
	warn func(format string, args ...any)
}

// FileLoader decodes one configuration file format.
type FileLoader interface {
	Load(reader io.Reader, target any) error
	Extension() string
}

// NewLoader creates a configuration loader reading files from basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{
		basePath:    basePath,
		environment: env,
		fileLoaders: []FileLoader{&YAMLLoader{}, &JSONLoader{}},
		warn: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
		},
	}
}

// Load builds the configuration from defaults, files and the environment,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	cfg := l.defaultConfig()
	l.sources = append(l.sources[:0], "defaults")

	if err := l.loadFile("base", cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// Local file errors are warnings in development
			l.warn("failed to load local config: %v", err)
		}
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	l.sources = append(l.sources, "environment")

	// The environment picked by the loader wins over any file.
	cfg.Environment = l.environment
	cfg.LoadedFrom = append([]string(nil), l.sources...)
	cfg.applyEnvironmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the first <name>.<ext> found for a registered format.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, loader := range l.fileLoaders {
		path := filepath.Join(l.basePath, name+"."+loader.Extension())

		err := l.decodeFile(path, loader, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}

		l.sources = append(l.sources, path)
		return nil
	}
	return fs.ErrNotExist
}

func (l *Loader) decodeFile(path string, loader FileLoader, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := loader.Load(file, cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// loadEnvironmentVariables overlays environment variables on the
// configuration. Malformed values are errors rather than silently ignored.
func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	var errs []error

	if val := os.Getenv("DATA_DIR"); val != "" {
		cfg.Storage.DataDir = val
	}
	if val := os.Getenv("BACKUP_DIR"); val != "" {
		cfg.Storage.BackupDir = val
	}
	envBool("ENABLE_BACKUPS", &cfg.Storage.EnableBackups, &errs)
	envInt("MAX_BACKUPS", &cfg.Storage.MaxBackups, &errs)

	envBool("ENABLE_CACHING", &cfg.Cache.Enabled, &errs)
	envDuration("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL, &errs)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries, &errs)
	envDuration("CACHE_SWEEP_INTERVAL", &cfg.Cache.SweepInterval, &errs)
	envBool("CACHE_WATCH_FILES", &cfg.Cache.WatchFiles, &errs)

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = strings.ToLower(val)
	}

	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	envInt("SERVER_PORT", &cfg.Server.Port, &errs)
	envBool("ENABLE_METRICS", &cfg.Metrics.Enabled, &errs)

	return errors.Join(errs...)
}

// defaultConfig returns a configuration the application can run with even
// without configuration files.
func (l *Loader) defaultConfig() *Config {
	return &Config{
		Environment: l.environment,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			DataDir:          "data",
			EnableBackups:    true,
			MaxBackups:       10,
			SizeWarningBytes: 10 * 1024 * 1024,
		},
		Cache: Cache{
			Enabled:       true,
			DefaultTTL:    cache.DefaultTTL,
			MaxEntries:    cache.DefaultMaxEntries,
			SweepInterval: time.Minute,
			WatchFiles:    l.environment == Development,
			CategoryTTLs:  cache.DefaultCategoryTTLs(),
		},
		Breaker: Breaker{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.5,
			MinRequests:      10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "catalog",
			Path:      "/metrics",
		},
	}
}

// YAMLLoader loads configuration from YAML files.
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target any) error {
	return yaml.NewDecoder(reader).Decode(target)
}

func (y *YAMLLoader) Extension() string {
	return "yaml"
}

// JSONLoader loads configuration from JSON files. Durations are given in
// nanoseconds.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target any) error {
	return json.NewDecoder(reader).Decode(target)
}

func (j *JSONLoader) Extension() string {
	return "json"
}

func envBool(key string, target *bool, errs *[]error) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*target = b
}

func envInt(key string, target *int, errs *[]error) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*target = n
}

// envDuration accepts Go duration strings ("90s") or plain milliseconds.
func envDuration(key string, target *time.Duration, errs *[]error) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
		*target = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*target = d
}

// Load loads configuration from the "config" directory for the environment
// named by ENVIRONMENT.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_DIR"))
}

// LoadFrom loads configuration from dir ("config" when empty).
func LoadFrom(dir string) (*Config, error) {
	return NewLoader(dir, getEnvironment()).Load()
}

// MustLoad loads configuration and panics on error.
// Use this only in main() or init() functions.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

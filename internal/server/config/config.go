// FILE: shogi/internal/server/config/config.go

// Package config loads server settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"shogi/internal/server/engine"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host         string `yaml:"host" validate:"required"`
	Port         int    `yaml:"port" validate:"min=1,max=65535"`
	Dev          bool   `yaml:"dev"`
	AllowOrigins string `yaml:"allow_origins"`
}

// EngineConfig describes the USI engine binary and search bounds shared by both sessions
type EngineConfig struct {
	Command        string        `yaml:"command" validate:"required"` // binary followed by arguments
	WorkDir        string        `yaml:"work_dir"`
	EvalDir        string        `yaml:"eval_dir"`
	Threads        int           `yaml:"threads" validate:"min=1,max=512"`
	HashMB         int           `yaml:"hash_mb" validate:"min=1"`
	MultiPV        int           `yaml:"multipv" validate:"min=1,max=10"`
	StreamDepth    int           `yaml:"stream_depth" validate:"min=1,max=40"`
	BatchNodes     int           `yaml:"batch_nodes" validate:"min=1"`
	BootTimeout    time.Duration `yaml:"boot_timeout"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`
	AnalyzeTimeout time.Duration `yaml:"analyze_timeout"`
	QueueWorkers   int           `yaml:"queue_workers" validate:"min=1,max=16"`
	QueueSize      int           `yaml:"queue_size" validate:"min=1"`
}

type StorageConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" validate:"omitempty,min=32"` // empty disables authentication
}

type LogConfig struct {
	Level   string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Console bool   `yaml:"console"` // human-readable output instead of JSON
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Engine: EngineConfig{
			Command:        "/usr/local/bin/yaneuraou",
			WorkDir:        "/usr/local/bin",
			EvalDir:        "/usr/local/bin/eval",
			Threads:        engine.DefaultThreads,
			HashMB:         engine.DefaultHashMB,
			MultiPV:        engine.DefaultMultiPV,
			StreamDepth:    15,
			BatchNodes:     150000,
			BootTimeout:    engine.DefaultBootTimeout,
			SearchTimeout:  10 * time.Second,
			AnalyzeTimeout: 60 * time.Second,
			QueueWorkers:   1,
			QueueSize:      16,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadDotEnv loads environment variables from path; a missing file is not an error
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load builds the configuration from defaults, the YAML file at path (optional)
// and environment overrides, then validates it.
// ${VAR} references in the YAML are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: load: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	// Timeouts accept Go durations ("2s") or plain seconds ("2", "0.5")
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("API_HOST", &c.Server.Host)
	num("API_PORT", &c.Server.Port)
	flag("DEV_MODE", &c.Server.Dev)
	str("FRONTEND_ORIGINS", &c.Server.AllowOrigins)

	str("USI_CMD", &c.Engine.Command)
	str("ENGINE_WORK_DIR", &c.Engine.WorkDir)
	str("EVAL_DIR", &c.Engine.EvalDir)
	num("ENGINE_THREADS", &c.Engine.Threads)
	num("ENGINE_HASH_MB", &c.Engine.HashMB)
	num("ENGINE_MULTIPV", &c.Engine.MultiPV)
	num("STREAM_DEPTH", &c.Engine.StreamDepth)
	num("BATCH_NODES", &c.Engine.BatchNodes)
	dur("USI_BOOT_TIMEOUT", &c.Engine.BootTimeout)
	dur("USI_GO_TIMEOUT", &c.Engine.SearchTimeout)
	dur("USI_ANALYZE_TIMEOUT", &c.Engine.AnalyzeTimeout)
	num("ANALYSIS_QUEUE_WORKERS", &c.Engine.QueueWorkers)
	num("ANALYSIS_QUEUE_SIZE", &c.Engine.QueueSize)

	str("STORAGE_PATH", &c.Storage.Path)
	str("AUTH_JWT_SECRET", &c.Auth.JWTSecret)

	str("LOG_LEVEL", &c.Log.Level)
	flag("LOG_CONSOLE", &c.Log.Console)

	return errors.Join(errs...)
}

func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

var validate = validator.New()

// Validate checks field bounds
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(strings.Fields(c.Engine.Command)) == 0 {
		return fmt.Errorf("config: engine command is blank")
	}
	return nil
}

// ProcessOptions returns the options of one engine subprocess
func (e EngineConfig) ProcessOptions(name string, logger zerolog.Logger) engine.Options {
	argv := strings.Fields(e.Command)
	return engine.Options{
		Name:        name,
		Path:        argv[0],
		Args:        argv[1:],
		Dir:         e.WorkDir,
		EvalDir:     e.EvalDir,
		Threads:     e.Threads,
		HashMB:      e.HashMB,
		MultiPV:     e.MultiPV,
		BootTimeout: e.BootTimeout,
		Logger:      logger,
	}
}

// SessionConfig returns the search bounds of a session
func (e EngineConfig) SessionConfig() engine.SessionConfig {
	cfg := engine.DefaultSessionConfig()
	cfg.BatchNodes = e.BatchNodes
	cfg.SearchTimeout = e.SearchTimeout
	cfg.AnalyzeTimeout = e.AnalyzeTimeout
	return cfg
}

// ZerologLevel returns the parsed log level, info when unparseable
func (l LogConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

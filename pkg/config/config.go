// Package config loads blockflow settings from a TOML file.
//
// A configuration file looks like:
//
//	[log]
//	level = "debug"
//
//	[layout]
//	grid = 16
//	gap = 24
//
//	[measure]
//	delay = "16ms"
//	max_attempts = 30
//
//	[storage]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//
//	[[kinds]]
//	kind = "webhook"
//	title = "Webhook"
//	category = "integrations"
//	accepts_source = "source.kind ~= 'start'"
//	handles = [{id = "in", type = "target"}, {id = "out", type = "source"}]
//	defaults = {url = ""}
//
// Missing sections keep the values of [Default]. Unknown keys are rejected
// so typos do not silently fall back to defaults.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/flow"
	"github.com/matzehuels/blockflow/pkg/layout"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
	"github.com/matzehuels/blockflow/pkg/spawner"
	"github.com/matzehuels/blockflow/pkg/storage"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "blockflow.toml"

// Config is the complete blockflow configuration.
type Config struct {
	Log     LogConfig             `toml:"log" json:"log"`
	Layout  LayoutConfig          `toml:"layout" json:"layout"`
	Measure MeasureConfig         `toml:"measure" json:"measure"`
	Spawner SpawnerConfig         `toml:"spawner" json:"spawner"`
	Storage StorageConfig         `toml:"storage" json:"storage"`
	Server  ServerConfig          `toml:"server" json:"server"`
	Kinds   []registry.Definition `toml:"kinds" json:"kinds" validate:"dive"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level" json:"level" validate:"oneof=debug info warn error"`
}

// LayoutConfig controls collision avoidance.
type LayoutConfig struct {
	Grid     float64 `toml:"grid" json:"grid" validate:"gte=0"`
	Gap      float64 `toml:"gap" json:"gap" validate:"gte=0"`
	CellSize float64 `toml:"cell_size" json:"cellSize" validate:"gt=0"`
	MaxSteps int     `toml:"max_steps" json:"maxSteps" validate:"gt=0"`

	MaxCycleSearch   int  `toml:"max_cycle_search" json:"maxCycleSearch" validate:"gt=0"`
	StrictInvariants bool `toml:"strict_invariants" json:"strictInvariants"`
}

// MeasureConfig controls polling for node sizes.
type MeasureConfig struct {
	Delay       time.Duration `toml:"delay" json:"delay" validate:"gt=0"`
	MaxAttempts int           `toml:"max_attempts" json:"maxAttempts" validate:"gt=0"`
}

// SpawnerConfig controls the edge-drop workflow.
type SpawnerConfig struct {
	OffsetX float64 `toml:"offset_x" json:"offsetX"`
	OffsetY float64 `toml:"offset_y" json:"offsetY"`
}

// StorageConfig selects the flow document backend.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend" validate:"oneof=file null redis mongo"`

	Dir string `toml:"dir" json:"dir" validate:"required_if=Backend file"`

	RedisAddr     string `toml:"redis_addr" json:"redisAddr" validate:"required_if=Backend redis"`
	RedisPassword string `toml:"redis_password" json:"-"`
	RedisDB       int    `toml:"redis_db" json:"redisDB" validate:"gte=0"`

	MongoURI        string `toml:"mongo_uri" json:"-" validate:"required_if=Backend mongo"`
	MongoDatabase   string `toml:"mongo_database" json:"mongoDatabase"`
	MongoCollection string `toml:"mongo_collection" json:"mongoCollection"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string        `toml:"addr" json:"addr" validate:"required"`
	ReadTimeout     time.Duration `toml:"read_timeout" json:"readTimeout" validate:"gte=0"`
	WriteTimeout    time.Duration `toml:"write_timeout" json:"writeTimeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" json:"shutdownTimeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	lc := layout.DefaultConfig()
	mc := layout.DefaultDeferredConfig()
	return Config{
		Log: LogConfig{Level: "info"},
		Layout: LayoutConfig{
			Grid:             lc.Grid,
			Gap:              lc.Gap,
			CellSize:         lc.CellSize,
			MaxSteps:         lc.MaxSteps,
			MaxCycleSearch:   flow.DefaultMaxCycleSearch,
			StrictInvariants: true,
		},
		Measure: MeasureConfig{Delay: mc.Delay, MaxAttempts: mc.MaxAttempts},
		Spawner: SpawnerConfig{OffsetX: spawner.DefaultOffset.X, OffsetY: spawner.DefaultOffset.Y},
		Storage: StorageConfig{
			Backend:         storage.BackendFile,
			Dir:             defaultStorageDir(),
			MongoDatabase:   "blockflow",
			MongoCollection: "flows",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// defaultStorageDir follows XDG: $XDG_DATA_HOME/blockflow or
// ~/.local/share/blockflow.
func defaultStorageDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "blockflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "blockflow")
	}
	return filepath.Join(home, ".local", "share", "blockflow")
}

// Load reads the file at path over the defaults and validates the result.
// An empty path loads DefaultFile if it exists and the defaults otherwise.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return cfg, nil
		}
		path = DefaultFile
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			// Free-form tables inside kind definitions are not struct fields.
			if isFreeForm(k) {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			return Config{}, errors.New(errors.ErrCodeInvalidInput, "config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func isFreeForm(k toml.Key) bool {
	if len(k) < 2 || k[0] != "kinds" {
		return false
	}
	switch k[1] {
	case "defaults", "schema":
		return true
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and compiles the kind definitions.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

func formatValidationErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid config")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", ns, describe(fe)))
	}
	return errors.New(errors.ErrCodeInvalidInput, "invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// Registry returns the built-in kinds followed by the configured ones.
func (c Config) Registry() (*registry.Registry, error) {
	extra, err := registry.Compile(c.Kinds)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "kinds")
	}
	return registry.New(append(registry.Builtin(), extra...)...)
}

// Level returns the configured log level.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Engine returns the engine settings.
func (c Config) Engine() engine.Config {
	return engine.Config{
		Layout: layout.Config{
			Grid:     c.Layout.Grid,
			Gap:      c.Layout.Gap,
			CellSize: c.Layout.CellSize,
			MaxSteps: c.Layout.MaxSteps,
		},
		Measure: layout.DeferredConfig{
			Delay:       c.Measure.Delay,
			MaxAttempts: c.Measure.MaxAttempts,
		},
		Spawner: spawner.Config{
			Offset: model.Position{X: c.Spawner.OffsetX, Y: c.Spawner.OffsetY},
		},
		StrictInvariants: c.Layout.StrictInvariants,
		MaxCycleSearch:   c.Layout.MaxCycleSearch,
	}
}

// OpenBackend connects the configured storage backend.
func (c Config) OpenBackend(ctx context.Context) (storage.Backend, error) {
	s := c.Storage
	switch s.Backend {
	case storage.BackendNull:
		return storage.NewNullBackend(), nil
	case storage.BackendRedis:
		return storage.NewRedisBackend(ctx, storage.RedisOptions{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
	case storage.BackendMongo:
		return storage.NewMongoBackend(ctx, storage.MongoOptions{
			URI:        s.MongoURI,
			Database:   s.MongoDatabase,
			Collection: s.MongoCollection,
		})
	default:
		return storage.NewFileBackend(s.Dir)
	}
}

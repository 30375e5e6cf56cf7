package bridge

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// Memory backends.
const (
	BackendSlice  = "slice"
	BackendWazero = "wazero"
)

// Config configures a Runtime. It is usually loaded from a TOML file:
//
//	[memory]
//	backend = "wazero"
//	initial-pages = 8
//	poison = true
//
//	[handles]
//	sweep-interval = "10s"
//
//	[dispatcher]
//	check-thread = true
//
//	[log]
//	mode = "development"
//	level = "debug"
type Config struct {
	Memory     MemoryConfig     `toml:"memory"`
	Handles    HandleConfig     `toml:"handles"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Log        LogConfig        `toml:"log"`
}

// MemoryConfig selects and sizes the native heap.
type MemoryConfig struct {
	Backend      string `toml:"backend"`
	InitialPages uint32 `toml:"initial-pages"`
	MaxPages     uint32 `toml:"max-pages"`
	Poison       bool   `toml:"poison"`
}

// HandleConfig configures the association table sweeper.
type HandleConfig struct {
	SweepInterval time.Duration `toml:"sweep-interval"`
	// DisableSweeper leaves collected weak entries until native destruction
	// or an explicit Runtime.Sweep.
	DisableSweeper bool `toml:"disable-sweeper"`
}

// DispatcherConfig names the game thread.
type DispatcherConfig struct {
	Name string `toml:"name"`
	// CheckThread makes native access from any other thread fail with an
	// invalid operation error. Only enforced where thread ids are available.
	CheckThread bool `toml:"check-thread"`
}

// LogConfig selects the zap preset. Mode is "production", "development" or
// "nop"; Level is any zap level name.
type LogConfig struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Memory.Backend == "" {
		c.Memory.Backend = BackendSlice
	}
	if c.Memory.InitialPages == 0 {
		c.Memory.InitialPages = native.DefaultInitialPages
	}
	if c.Memory.MaxPages == 0 {
		c.Memory.MaxPages = native.DefaultMaxPages
	}
	if c.Dispatcher.Name == "" {
		c.Dispatcher.Name = "game"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "nop"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports configuration values the runtime cannot honour.
func (c *Config) Validate() error {
	switch c.Memory.Backend {
	case BackendSlice, BackendWazero:
	default:
		return errors.InvalidInput(errors.PhaseConfig, "unknown memory backend "+c.Memory.Backend)
	}
	if c.Memory.MaxPages < c.Memory.InitialPages {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("memory", "max-pages").
			Detail("max-pages %d is below initial-pages %d", c.Memory.MaxPages, c.Memory.InitialPages).
			Build()
	}
	if c.Memory.MaxPages > 65536 {
		return errors.Overflow(errors.PhaseConfig, []string{"memory", "max-pages"}, c.Memory.MaxPages, "32-bit heap")
	}
	if c.Handles.SweepInterval < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "negative sweep-interval")
	}
	switch c.Log.Mode {
	case "production", "development", "nop":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "unknown log mode "+c.Log.Mode)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	return nil
}

// LoadConfig reads a TOML configuration file, applies defaults and validates it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML configuration text.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.InvalidInput(errors.PhaseConfig, "unknown config key "+undecoded[0].String())
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// BuildLogger constructs the zap logger described by Log.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	var zc zap.Config
	switch c.Log.Mode {
	case "nop":
		return zap.NewNop(), nil
	case "development":
		zc = zap.NewDevelopmentConfig()
	default:
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return l, nil
}

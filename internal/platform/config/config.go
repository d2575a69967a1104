package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	FileName  = "dashext.toml"
	EnvPrefix = "DASHEXT"

	DeliveryDirect = "direct"
	DeliveryServed = "served"

	ExistingReject  = "reject"
	ExistingReplace = "replace"

	SymlinksReject  = "reject"
	SymlinksContain = "contain"

	DefaultServerAddr = "127.0.0.1:3001"
)

type Config struct {
	DestinationRoot string           `toml:"destination_root" mapstructure:"destination_root"`
	StateDir        string           `toml:"state_dir" mapstructure:"state_dir"`
	Delivery        string           `toml:"delivery" mapstructure:"delivery"`
	Server          ServerConfig     `toml:"server" mapstructure:"server"`
	Extraction      ExtractionConfig `toml:"extraction" mapstructure:"extraction"`
	Log             LogConfig        `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr" mapstructure:"addr"`
}

type ExtractionConfig struct {
	Workers      int    `toml:"workers" mapstructure:"workers"`
	Timeout      string `toml:"timeout" mapstructure:"timeout"`
	Existing     string `toml:"existing" mapstructure:"existing"`
	Symlinks     string `toml:"symlinks" mapstructure:"symlinks"`
	MaxEntries   int    `toml:"max_entries" mapstructure:"max_entries"`
	MaxBytes     int64  `toml:"max_bytes" mapstructure:"max_bytes"`
	MaxFileBytes int64  `toml:"max_file_bytes" mapstructure:"max_file_bytes"`
}

type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
	File  string `toml:"file" mapstructure:"file"`
}

// LoadOptions carries the sources layered over the defaults. Overrides are
// keyed by dotted config keys and win over file and environment values.
type LoadOptions struct {
	ConfigFile string
	Overrides  map[string]any
}

// Default returns the built-in configuration rooted under the user's home.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return Config{
		DestinationRoot: filepath.Join(home, ".local", "share", "dashext", "extensions"),
		StateDir:        filepath.Join(home, ".local", "state", "dashext"),
		Delivery:        DeliveryServed,
		Server:          ServerConfig{Addr: DefaultServerAddr},
		Extraction: ExtractionConfig{
			Workers:      2,
			Timeout:      "2m",
			Existing:     ExistingReject,
			Symlinks:     SymlinksReject,
			MaxEntries:   10000,
			MaxBytes:     512 << 20,
			MaxFileBytes: 128 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultFile is where the config file is looked up when none is given.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dashext", FileName)
}

// Load resolves configuration with precedence
// overrides > DASHEXT_* environment > config file > defaults.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v, Default())

	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = DefaultFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading %s: %w", path, err)
			}
		} else if explicit {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.DestinationRoot = expandHome(cfg.DestinationRoot)
	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.Log.File = expandHome(cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("destination_root", d.DestinationRoot)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("delivery", d.Delivery)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("extraction.workers", d.Extraction.Workers)
	v.SetDefault("extraction.timeout", d.Extraction.Timeout)
	v.SetDefault("extraction.existing", d.Extraction.Existing)
	v.SetDefault("extraction.symlinks", d.Extraction.Symlinks)
	v.SetDefault("extraction.max_entries", d.Extraction.MaxEntries)
	v.SetDefault("extraction.max_bytes", d.Extraction.MaxBytes)
	v.SetDefault("extraction.max_file_bytes", d.Extraction.MaxFileBytes)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

func (c Config) Validate() error {
	if c.DestinationRoot == "" || !filepath.IsAbs(c.DestinationRoot) {
		return fmt.Errorf("destination_root must be an absolute path, got %q", c.DestinationRoot)
	}
	if c.StateDir == "" || !filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("state_dir must be an absolute path, got %q", c.StateDir)
	}
	switch c.Delivery {
	case DeliveryDirect, DeliveryServed:
	default:
		return fmt.Errorf("delivery must be %s or %s, got %q", DeliveryDirect, DeliveryServed, c.Delivery)
	}
	if err := validateLoopback(c.Server.Addr); err != nil {
		return err
	}
	x := c.Extraction
	if x.Workers < 1 {
		return fmt.Errorf("extraction.workers must be at least 1")
	}
	if _, err := c.ExtractionTimeout(); err != nil {
		return err
	}
	switch x.Existing {
	case ExistingReject, ExistingReplace:
	default:
		return fmt.Errorf("extraction.existing must be %s or %s, got %q", ExistingReject, ExistingReplace, x.Existing)
	}
	switch x.Symlinks {
	case SymlinksReject, SymlinksContain:
	default:
		return fmt.Errorf("extraction.symlinks must be %s or %s, got %q", SymlinksReject, SymlinksContain, x.Symlinks)
	}
	if x.MaxEntries < 1 || x.MaxBytes < 1 || x.MaxFileBytes < 1 {
		return fmt.Errorf("extraction limits must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	return nil
}

// ExtractionTimeout parses extraction.timeout; zero disables the bound.
func (c Config) ExtractionTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Extraction.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Extraction.Timeout)
	if err != nil {
		return 0, fmt.Errorf("extraction.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("extraction.timeout must not be negative")
	}
	return d, nil
}

func (c Config) DBPath() string {
	return filepath.Join(c.StateDir, "dashext.db")
}

func (c Config) SocketPath() string {
	return filepath.Join(c.StateDir, "run", "bridge.sock")
}

func (c Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.StateDir, "logs", "dashext.log")
}

// Write persists cfg as TOML, creating parent directories.
func Write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) (string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(data), nil
}

func validateLoopback(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("server.addr %q: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("server.addr %q has no port", addr)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("server.addr %q must bind a loopback address", addr)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

package runtime

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
)

const maxMemoryPages = 65536

// Config holds runtime settings. The zero value is not valid; start from
// DefaultConfig.
type Config struct {
	// Logger receives runtime and decoder events. Nil uses engine.Logger().
	Logger *zap.Logger `yaml:"-"`

	// Hosts supplies Go implementations of the module's imports.
	Hosts *HostRegistry `yaml:"-"`

	// HostModules are instantiated after Hosts, before the engine module links.
	HostModules []engine.HostModule `yaml:"-"`

	// CacheDir enables wazero's on-disk compilation cache.
	CacheDir string `yaml:"cache_dir"`

	// MountDir is exposed to the guest as "/" for path options such as
	// dark_frame and bad_pixels.
	MountDir string `yaml:"mount_dir"`

	// MaxInputBytes rejects larger inputs before they reach the engine.
	// Zero disables the check.
	MaxInputBytes int64 `yaml:"max_input_bytes"`

	// MemoryLimitPages caps each instance's linear memory, in 64KiB pages.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// DefaultConfig returns a configuration suited to full-size camera raws:
// 4GiB of guest memory and a 512MiB input limit.
func DefaultConfig() Config {
	return Config{
		MemoryLimitPages: maxMemoryPages,
		MaxInputBytes:    512 << 20,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.MemoryLimitPages == 0 || c.MemoryLimitPages > maxMemoryPages {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path("memory_limit_pages").
			Value(c.MemoryLimitPages).
			Detail("must be between 1 and %d", maxMemoryPages).
			Build()
	}
	if c.MaxInputBytes < 0 {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path("max_input_bytes").
			Value(c.MaxInputBytes).
			Detail("must not be negative").
			Build()
	}
	if c.MountDir != "" {
		fi, err := os.Stat(c.MountDir)
		if err != nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "mount_dir")
		}
		if !fi.IsDir() {
			return errors.InvalidInput(errors.PhaseLoad, "mount_dir is not a directory")
		}
	}
	return nil
}

// LoadConfig reads a YAML document over DefaultConfig.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return Config{}, errors.ParseFailed("runtime config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseParse, errors.KindNotFound, err, "read runtime config")
	}
	return LoadConfig(data)
}

func (c *Config) engineConfig() *engine.Config {
	var hosts []engine.HostModule
	if c.Hosts != nil {
		hosts = append(hosts, c.Hosts.Modules()...)
	}
	hosts = append(hosts, c.HostModules...)
	return &engine.Config{
		CacheDir:         c.CacheDir,
		MountDir:         c.MountDir,
		HostModules:      hosts,
		MemoryLimitPages: c.MemoryLimitPages,
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.stablemem/internal/cache"
	"go.stablemem/internal/logger"
	"go.stablemem/internal/manager"
	"go.stablemem/internal/memory"
	"go.yaml.in/yaml/v3"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

var ErrInvalidConfig = errors.New("invalid config")

type CacheConfig struct {
	Policy   string `yaml:"policy"`
	Capacity int    `yaml:"capacity"`
}

type Config struct {
	Home     string           `yaml:"home"`
	Backend  string           `yaml:"backend"`
	DataDir  string           `yaml:"data_dir"`
	LogDir   string           `yaml:"log_dir"`
	LogLevel string           `yaml:"log_level"`
	Image    string           `yaml:"image"`
	MaxPages uint64           `yaml:"max_pages"`
	Cache    CacheConfig      `yaml:"cache"`
	Regions  map[string]uint8 `yaml:"regions"`
}

// Default returns the configuration used when no config file exists.
func Default(paths *Paths) *Config {
	return &Config{
		Home:     paths.Home,
		Backend:  BackendFile,
		DataDir:  paths.DataDir,
		LogDir:   paths.LogDir,
		LogLevel: "info",
		Image:    "stablemem.img",
		MaxPages: memory.MaxPages,
		Cache: CacheConfig{
			Policy:   cache.PolicyLRU,
			Capacity: 1024,
		},
		Regions: map[string]uint8{"default": 0},
	}
}

func LoadConfig(homeOverride, configOverride string) (*Config, error) {
	paths, err := ResolvePaths(homeOverride, configOverride)
	if err != nil {
		return nil, err
	}

	cfg := Default(paths)

	if f, err := os.Open(paths.Config); err == nil {
		defer f.Close()

		// Regions from the file replace the default set instead of merging.
		cfg.Regions = nil
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("LoadConfig(%s): %w", paths.Config, err)
		}
		if cfg.Regions == nil {
			cfg.Regions = map[string]uint8{"default": 0}
		}
	} else if configOverride != "" {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(cfg.LogDir, 0o755)

	return cfg, nil
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig)
	}

	switch c.Backend {
	case BackendMemory, BackendFile, BackendBadger:
	default:
		return invalid("unknown backend %q", c.Backend)
	}

	switch c.Cache.Policy {
	case cache.PolicyLRU, cache.PolicyTinyLFU, cache.PolicyNone:
	default:
		return invalid("unknown cache policy %q", c.Cache.Policy)
	}
	if c.Cache.Capacity < 0 {
		return invalid("negative cache capacity %d", c.Cache.Capacity)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}

	if c.MaxPages == 0 || c.MaxPages > memory.MaxPages {
		return invalid("max_pages %d outside [1, %d]", c.MaxPages, memory.MaxPages)
	}
	if c.Backend != BackendMemory && c.Image == "" {
		return invalid("image name is empty")
	}

	if len(c.Regions) == 0 {
		return invalid("no regions configured")
	}
	owner := make(map[uint8]string)
	for _, name := range c.RegionNames() {
		id := c.Regions[name]
		if name == "" {
			return invalid("region with empty name")
		}
		if manager.ID(id) == manager.FreeID {
			return invalid("region %q uses reserved id %d", name, id)
		}
		if other, ok := owner[id]; ok {
			return invalid("regions %q and %q share id %d", other, name, id)
		}
		owner[id] = name
	}
	return nil
}

// RegionNames returns the configured region names in sorted order.
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for name := range c.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImagePath is the file or directory holding the physical memory.
func (c *Config) ImagePath() string {
	return filepath.Join(c.DataDir, c.Image)
}

func (c *Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

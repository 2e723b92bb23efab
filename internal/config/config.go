// Package config loads the proxy configuration and hands out immutable
// per-request snapshots of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"waybackproxy/internal/archive"
)

type Config struct {
	Server struct {
		Port              int    `yaml:"port"`
		ReadHeaderTimeout string `yaml:"readHeaderTimeout"`
	} `yaml:"server"`

	Wayback struct {
		Date string `yaml:"date"`
		// DateTolerance is in days; negative means unlimited.
		DateTolerance      int         `yaml:"dateTolerance"`
		API                bool        `yaml:"api"`
		QuickImages        QuickImages `yaml:"quickImages"`
		GeocitiesFix       bool        `yaml:"geocitiesFix"`
		ContentTypeCharset bool        `yaml:"contentTypeCharset"`
	} `yaml:"wayback"`

	Archive struct {
		ReplayRoot      string `yaml:"replayRoot"`
		AvailabilityURL string `yaml:"availabilityURL"`
		MaxConns        int    `yaml:"maxConns"`
		ConnectTimeout  string `yaml:"connectTimeout"`
		ReadTimeout     string `yaml:"readTimeout"`
		UserAgent       string `yaml:"userAgent"`
	} `yaml:"archive"`

	Cache struct {
		Capacity   int    `yaml:"capacity"`
		TTL        string `yaml:"ttl"`
		SweepEvery string `yaml:"sweepEvery"`
	} `yaml:"cache"`

	Storage struct {
		Disk struct {
			Path string `yaml:"path"`
			Max  string `yaml:"max"`
		} `yaml:"disk"`
	} `yaml:"storage"`

	Whitelist string `yaml:"whitelist"`

	Logging struct {
		Silent     bool   `yaml:"silent"`
		StatsEvery string `yaml:"statsEvery"`
	} `yaml:"logging"`

	// compiled
	readHeaderTimeout time.Duration
	connectTimeout    time.Duration
	readTimeout       time.Duration
	cacheTTL          time.Duration
	sweepEvery        time.Duration
	statsEvery        time.Duration
	diskMax           int64
	whitelistPath     string
	diskPath          string
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var cfg Config
	cfg.Server.Port = 8888
	cfg.Server.ReadHeaderTimeout = "10s"
	cfg.Wayback.Date = "20011025"
	cfg.Wayback.DateTolerance = 365
	cfg.Wayback.QuickImages = QuickImagesOn
	cfg.Wayback.GeocitiesFix = true
	cfg.Wayback.ContentTypeCharset = true
	ac := archive.DefaultConfig()
	cfg.Archive.ReplayRoot = ac.ReplayRoot
	cfg.Archive.AvailabilityURL = ac.AvailabilityURL
	cfg.Archive.MaxConns = ac.MaxConns
	cfg.Archive.ConnectTimeout = ac.ConnectTimeout.String()
	cfg.Archive.ReadTimeout = ac.ReadTimeout.String()
	cfg.Archive.UserAgent = ac.UserAgent
	cfg.Cache.Capacity = 1024
	cfg.Cache.TTL = "24h"
	cfg.Cache.SweepEvery = "1h"
	cfg.Storage.Disk.Max = "16mb"
	cfg.Whitelist = "whitelist.txt"
	return cfg
}

// LoadConfig reads path on top of Default. A missing file is not an error.
// Relative whitelist and storage paths are resolved against the directory of
// the config file.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err):
	default:
		return Config{}, err
	}

	cfg.whitelistPath = resolvePath(path, cfg.Whitelist)
	cfg.diskPath = resolvePath(path, cfg.Storage.Disk.Path)

	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func (c *Config) compile() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: invalid port %d", c.Server.Port)
	}
	if err := ValidateDate(c.Wayback.Date, time.Now()); err != nil {
		return fmt.Errorf("wayback.date: %w", err)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity: must be positive, got %d", c.Cache.Capacity)
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"server.readHeaderTimeout", c.Server.ReadHeaderTimeout, &c.readHeaderTimeout},
		{"archive.connectTimeout", c.Archive.ConnectTimeout, &c.connectTimeout},
		{"archive.readTimeout", c.Archive.ReadTimeout, &c.readTimeout},
		{"cache.ttl", c.Cache.TTL, &c.cacheTTL},
		{"cache.sweepEvery", c.Cache.SweepEvery, &c.sweepEvery},
		{"logging.statsEvery", c.Logging.StatsEvery, &c.statsEvery},
	}
	for _, d := range durations {
		if d.raw == "" {
			*d.dst = 0
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.field, err)
		}
		*d.dst = v
	}

	if c.Storage.Disk.Path != "" {
		n, err := parseBytes(c.Storage.Disk.Max)
		if err != nil {
			return fmt.Errorf("storage.disk.max: %w", err)
		}
		c.diskMax = n
	}
	return nil
}

// Validate re-checks and recompiles the configuration after fields were
// changed in place, for example by command line overrides.
func (c *Config) Validate() error { return c.compile() }

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg Config, path string) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ArchiveConfig returns the archive client settings.
func (c Config) ArchiveConfig() *archive.Config {
	ac := archive.DefaultConfig()
	ac.ReplayRoot = c.Archive.ReplayRoot
	ac.AvailabilityURL = c.Archive.AvailabilityURL
	ac.MaxConns = c.Archive.MaxConns
	if c.connectTimeout > 0 {
		ac.ConnectTimeout = c.connectTimeout
	}
	if c.readTimeout > 0 {
		ac.ReadTimeout = c.readTimeout
		ac.RequestTimeout = 2 * c.readTimeout
	}
	if c.Archive.UserAgent != "" {
		ac.UserAgent = c.Archive.UserAgent
	}
	return ac
}

func (c Config) ReadHeaderTimeout() time.Duration { return c.readHeaderTimeout }
func (c Config) CacheTTL() time.Duration          { return c.cacheTTL }
func (c Config) SweepEvery() time.Duration        { return c.sweepEvery }
func (c Config) StatsEvery() time.Duration        { return c.statsEvery }

func (c Config) WhitelistPath() string { return c.whitelistPath }

// DiskPath is the leveldb directory of the persistent availability store, or
// "" when it is disabled.
func (c Config) DiskPath() string { return c.diskPath }

// DiskMax is the byte budget of the persistent availability store.
func (c Config) DiskMax() int64 { return c.diskMax }

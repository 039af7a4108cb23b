package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"bnappcal/internal/model"
	"bnappcal/internal/provider"
)

// ICSConfig describes a single subscribed calendar.
type ICSConfig struct {
	// Name labels overlay events in the day view.
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// PasswordHash, when set, is a bcrypt hash and takes precedence over Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// CityConfig is the default city used until one is selected and persisted.
type CityConfig struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
	TZID string  `yaml:"tzid" json:"tzid"`
}

// ProvidersConfig points the remote adapters at their services.
type ProvidersConfig struct {
	Hebcal           string `yaml:"hebcal" json:"hebcal"`
	OpenMeteo        string `yaml:"open_meteo" json:"open_meteo"`
	GeoNames         string `yaml:"geonames" json:"geonames"`
	GeoNamesUsername string `yaml:"geonames_username" json:"geonames_username"`
	TimeoutSeconds   int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone DateKeys are computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the SQLite file. Empty means the per-user default.
	DBPath string `yaml:"db_path" json:"db_path"`

	// CacheDir holds conditional-GET cache entries for provider and ICS fetches.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a 5-field cron schedule for the provider refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	City      CityConfig      `yaml:"city" json:"city"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`

	// ICS is the list of subscribed calendars shown as read-only overlays.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "Asia/Jerusalem"
	defaultCacheDir = "./var/cache"
	defaultRefresh  = "*/30 * * * *"
	defaultLogLevel = "INFO"
	defaultTimeout  = 15
)

func defaultCity() CityConfig {
	return CityConfig{Name: "Holon, Israel", Lat: 32.0158, Lon: 34.7874, TZID: defaultTimezone}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	ep := provider.DefaultEndpoints()
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		CacheDir:    defaultCacheDir,
		RefreshCron: defaultRefresh,
		LogLevel:    defaultLogLevel,
		City:        defaultCity(),
		Providers: ProvidersConfig{
			Hebcal:         ep.Hebcal,
			OpenMeteo:      ep.OpenMeteo,
			GeoNames:       ep.GeoNames,
			TimeoutSeconds: defaultTimeout,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	// Same rule as a persisted city: zero coordinates mean "not set".
	if c.City.Lat == 0 || c.City.Lon == 0 {
		c.City = def.City
	}
	if c.City.TZID == "" {
		c.City.TZID = c.Timezone
	}
	if c.Providers.Hebcal == "" {
		c.Providers.Hebcal = def.Providers.Hebcal
	}
	if c.Providers.OpenMeteo == "" {
		c.Providers.OpenMeteo = def.Providers.OpenMeteo
	}
	if c.Providers.GeoNames == "" {
		c.Providers.GeoNames = def.Providers.GeoNames
	}
	if c.Providers.TimeoutSeconds <= 0 {
		c.Providers.TimeoutSeconds = defaultTimeout
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Location loads the display time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultCity converts the configured city.
func (c *Config) DefaultCity() model.City {
	return model.City{Name: c.City.Name, Lat: c.City.Lat, Lon: c.City.Lon, TZID: c.City.TZID}
}

// Endpoints converts the provider section.
func (c *Config) Endpoints() provider.Endpoints {
	return provider.Endpoints{
		Hebcal:       c.Providers.Hebcal,
		OpenMeteo:    c.Providers.OpenMeteo,
		GeoNames:     c.Providers.GeoNames,
		GeoNamesUser: c.Providers.GeoNamesUsername,
	}
}

// Timeout is the per-request provider timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Providers.TimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can still run.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) when needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".bnappcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

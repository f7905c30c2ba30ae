package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".visagate"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file structure. Every field is optional;
// unset fields keep their compiled defaults.
type File struct {
	// Solver configures the external solver API.
	Solver struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"solver"`

	// Client selects the HTTP client strategy.
	Client struct {
		Mode        string `yaml:"mode"`
		ProxyScheme string `yaml:"proxy_scheme"`
		UserAgent   string `yaml:"user_agent"`
	} `yaml:"client"`

	// Pool overrides storage locations and the demotion policy.
	Pool struct {
		Dir               string `yaml:"dir"`
		DemotionThreshold int    `yaml:"demotion_threshold"`
	} `yaml:"pool"`

	// Cache overrides the artifact cache location and retention.
	// Retention is a Go duration string, e.g. "168h".
	Cache struct {
		Dir       string `yaml:"dir"`
		Retention string `yaml:"retention"`
	} `yaml:"cache"`

	// TargetDomain is the portal domain passed to the solver.
	TargetDomain string `yaml:"target_domain"`

	// Region restricts identity selection.
	Region string `yaml:"region"`
}

// LoadFile loads configuration overrides from a YAML file.
// If the file does not exist it returns ErrConfigNotFound; callers decide
// whether that is fatal based on whether the path was explicitly given.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Apply merges file overrides into the config. Only set fields override.
func (f *File) Apply(c *Config) {
	if f.Solver.Endpoint != "" {
		c.SolverEndpoint = f.Solver.Endpoint
	}
	if f.Solver.APIKey != "" {
		c.SolverAPIKey = f.Solver.APIKey
	}
	if f.Client.Mode != "" {
		c.Mode = ClientMode(f.Client.Mode)
	}
	if f.Client.ProxyScheme != "" {
		c.ProxyScheme = f.Client.ProxyScheme
	}
	if f.Client.UserAgent != "" {
		c.UserAgent = f.Client.UserAgent
	}
	if f.Pool.Dir != "" {
		c.PoolDir = f.Pool.Dir
	}
	if f.Pool.DemotionThreshold > 0 {
		c.DemotionThreshold = f.Pool.DemotionThreshold
	}
	if f.Cache.Dir != "" {
		c.CacheDir = f.Cache.Dir
	}
	if f.Cache.Retention != "" {
		if d, err := time.ParseDuration(f.Cache.Retention); err == nil && d > 0 {
			c.Retention = d
		}
	}
	if f.TargetDomain != "" {
		c.TargetDomain = f.TargetDomain
	}
	if f.Region != "" {
		c.Region = f.Region
	}
}

// FindConfigFile searches for the configuration file:
//  1. If configPath is specified, use it directly
//  2. .visagate in the current directory
//  3. .visagate in the user's home directory
//  4. visagate.yaml in the XDG config directory
//
// Returns the path if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), "visagate.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}

	return ""
}

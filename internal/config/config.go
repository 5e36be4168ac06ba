// Package config loads and validates the load balancer configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the Minecraft Java edition default server port.
const DefaultPort uint16 = 25565

// Selection modes.
const (
	ModeStatic = "static"
	ModeGeo    = "geo"
	ModeHTTP   = "http"
)

// Static-mode algorithms.
const (
	AlgorithmRoundRobin        = "round_robin"
	AlgorithmLowestPlayerCount = "lowest_player_count"
)

// Config represents the application configuration.
type Config struct {
	Mode           string        `yaml:"mode"`
	ListenAddress  string        `yaml:"listen_address"`
	MOTD           string        `yaml:"motd"`
	MetricsAddress string        `yaml:"metrics_address"`
	ConnectionRate int           `yaml:"connection_rate"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	LogLevel       string        `yaml:"log_level"`

	Static *StaticConfig `yaml:"static"`
	Geo    *GeoConfig    `yaml:"geo"`
	HTTP   *HTTPConfig   `yaml:"http"`
}

// ServerConfig represents one backend server.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Port    uint16 `yaml:"port"`
}

// StaticConfig holds the static-mode server list and algorithm.
type StaticConfig struct {
	Algorithm string         `yaml:"algorithm"`
	Servers   []ServerConfig `yaml:"servers"`
}

// GeoConfig holds the geo-mode region mapping and API token.
type GeoConfig struct {
	Token        string                  `yaml:"token"`
	CacheAddress string                  `yaml:"cache_address"`
	Regions      map[string]ServerConfig `yaml:"regions"`
	Fallback     ServerConfig            `yaml:"fallback"`
}

// HTTPConfig holds the http-mode remote selector endpoint.
type HTTPConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Method   string            `yaml:"method"`
	Headers  map[string]string `yaml:"headers"`
	Fallback ServerConfig      `yaml:"fallback"`
}

// Load reads, parses and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses and validates YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = fmt.Sprintf(":%d", DefaultPort)
	}
	if c.MOTD == "" {
		c.MOTD = "A Minecraft Server"
	}
	if c.ConnectionRate <= 0 {
		c.ConnectionRate = 64
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Static != nil {
		for i := range c.Static.Servers {
			defaultServerPort(&c.Static.Servers[i])
		}
	}
	if c.Geo != nil {
		for region, srv := range c.Geo.Regions {
			defaultServerPort(&srv)
			c.Geo.Regions[region] = srv
		}
		defaultServerPort(&c.Geo.Fallback)
	}
	if c.HTTP != nil {
		if c.HTTP.Method == "" {
			c.HTTP.Method = "GET"
		}
		defaultServerPort(&c.HTTP.Fallback)
	}
}

func defaultServerPort(s *ServerConfig) {
	if s.Port == 0 {
		s.Port = DefaultPort
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStatic:
		if c.Static == nil {
			return invalid("mode 'static' requires a 'static' section")
		}
		if len(c.Static.Servers) == 0 {
			return invalid("static.servers must contain at least one server")
		}
		switch c.Static.Algorithm {
		case AlgorithmRoundRobin, AlgorithmLowestPlayerCount:
		default:
			return invalid(fmt.Sprintf("unknown static algorithm %q", c.Static.Algorithm))
		}
	case ModeGeo:
		if c.Geo == nil {
			return invalid("mode 'geo' requires a 'geo' section")
		}
		if len(c.Geo.Regions) == 0 {
			return invalid("geo.regions must contain at least one region entry")
		}
		if c.Geo.Fallback.Address == "" {
			return invalid("geo.fallback must name a server")
		}
	case ModeHTTP:
		if c.HTTP == nil {
			return invalid("mode 'http' requires an 'http' section")
		}
		if c.HTTP.Endpoint == "" {
			return invalid("http.endpoint cannot be empty")
		}
		if c.HTTP.Fallback.Address == "" {
			return invalid("http.fallback must name a server")
		}
	default:
		return invalid(fmt.Sprintf("unknown mode %q", c.Mode))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("invalid configuration: %s", msg)
}

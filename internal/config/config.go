// Package config provides configuration loading and validation for dnsq.
// It handles reading configuration from files, providing defaults, and
// ensuring all required settings are properly set.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lc/dnsq/internal/filesys"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfig is returned when the configuration file is not found.
	ErrNoConfig = errors.New("configuration file not found")
)

const (
	// DefaultSocketPath is the default path for the daemon's Unix socket.
	DefaultSocketPath = "/var/run/dnsqd.socket"
	// DefaultConfigPath is the default path for the configuration file.
	DefaultConfigPath = ".dnsq/config.yaml"
	// DefaultResolverHost is the upstream used when none is configured.
	DefaultResolverHost = "1.1.1.1"
	// DefaultResolverPort is the standard DNS port.
	DefaultResolverPort = 53
	// DefaultQueryTimeout bounds a single DNS query.
	DefaultQueryTimeout = 5 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Socket   SocketConfig   `yaml:"socket"`
	Resolver ResolverConfig `yaml:"resolver"`
}

// SocketConfig holds socket-related configuration.
type SocketConfig struct {
	Path string `yaml:"path"`
}

// ResolverConfig holds the upstream server and query behavior.
// DisableRecursion is inverted so the zero value keeps the recursion
// desired flag set, which is the protocol default callers expect.
type ResolverConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	DisableRecursion bool          `yaml:"disable_recursion"`
	LogActivity      bool          `yaml:"log_activity"`
}

// Addr returns the upstream as a dialable "host:port".
func (r ResolverConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Provider defines the interface for loading configuration.
type Provider interface {
	Load() (*Config, error)
}

// FSProvider implements Provider using the local filesystem.
type FSProvider struct {
	fs   filesys.ReadWriteFS
	path string
}

// Verify FSProvider implements Provider interface.
var _ Provider = (*FSProvider)(nil)

// New creates a new configuration provider using the default configuration path.
// It uses the OS filesystem and the user's home directory to locate the configuration file.
// If the home directory cannot be determined, it falls back to the current directory.
func New() Provider {
	home, err := os.UserHomeDir()
	if err != nil {
		// Log the error but continue with empty path, which will resolve to current directory
		fmt.Fprintf(os.Stderr, "Warning: could not determine home directory: %v\n", err)
		home = ""
	}
	return NewWithPath(filesys.OS(), filepath.Join(home, DefaultConfigPath))
}

// NewWithPath creates a new provider with a specific config path.
// It allows specifying both the filesystem implementation and the path to use.
func NewWithPath(fs filesys.ReadWriteFS, path string) Provider {
	return &FSProvider{
		fs:   fs,
		path: path,
	}
}

// Default returns a default configuration with preset values.
// This is used when no configuration file exists.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Path: DefaultSocketPath,
		},
		Resolver: ResolverConfig{
			Host:         DefaultResolverHost,
			Port:         DefaultResolverPort,
			QueryTimeout: DefaultQueryTimeout,
		},
	}
}

// Load loads the configuration from the specified path.
func (p *FSProvider) Load() (*Config, error) {
	_ = p.ensureConfigDir()

	cfg, err := p.loadAndParse()
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			return Default(), nil
		}
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// applyDefaults fills fields the file left unset.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Socket.Path) == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if strings.TrimSpace(c.Resolver.Host) == "" {
		c.Resolver.Host = DefaultResolverHost
	}
	if c.Resolver.Port == 0 {
		c.Resolver.Port = DefaultResolverPort
	}
	if c.Resolver.QueryTimeout == 0 {
		c.Resolver.QueryTimeout = DefaultQueryTimeout
	}
}

// Validate checks the configuration to ensure all required fields are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Socket.Path) == "" {
		return errors.New("socket path cannot be empty")
	}
	if strings.TrimSpace(c.Resolver.Host) == "" {
		return errors.New("resolver host cannot be empty")
	}
	if c.Resolver.Port < 1 || c.Resolver.Port > 65535 {
		return fmt.Errorf("resolver port %d out of range", c.Resolver.Port)
	}
	if c.Resolver.QueryTimeout < 100*time.Millisecond {
		return errors.New("query timeout must be at least 100ms")
	}
	return nil
}

func (p *FSProvider) ensureConfigDir() error {
	dir := filepath.Dir(p.path)
	if _, err := p.fs.Stat(dir); os.IsNotExist(err) {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return nil
}

func (p *FSProvider) loadAndParse() (*Config, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}

	return &cfg, nil
}

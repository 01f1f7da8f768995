package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"ocppgate/pkg/ocpp"
)

const (
	envConfigPath = "OCPPGATE_CONFIG"
	envHTTPHost   = "OCPPGATE_HTTP_HOST"
	envHTTPPort   = "OCPPGATE_HTTP_PORT"

	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8180
	DefaultRouterPath     = "/services/CentralSystemService"
	DefaultLookaheadLimit = 1 << 20
)

// Config is the root runtime configuration loaded from config.json or
// config.toml.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway" toml:"gateway"`
	SOAP     SOAPConfig     `json:"soap" toml:"soap"`
	JSON     JSONConfig     `json:"json" toml:"json"`
	Channels ChannelsConfig `json:"channels" toml:"channels"`
	Logging  LoggingConfig  `json:"logging,omitempty" toml:"logging"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" toml:"format"`
	Level     string `json:"level,omitempty" toml:"level"`
	AddSource bool   `json:"add_source,omitempty" toml:"add_source"`
}

// GatewayConfig configures the HTTP bind address.
type GatewayConfig struct {
	Host string `json:"host" toml:"host"`
	Port int    `json:"port" toml:"port"`
}

// SOAPConfig configures the envelope transport.
type SOAPConfig struct {
	// RouterPath is where version-agnostic clients post envelopes.
	RouterPath string `json:"router_path" toml:"router_path"`
	// LookaheadLimit caps the bytes buffered while looking for the payload
	// element. Negative disables the cap.
	LookaheadLimit int              `json:"lookahead_limit" toml:"lookahead_limit"`
	Endpoints      []EndpointConfig `json:"endpoints" toml:"endpoints"`
}

// EndpointConfig is one version specific SOAP service.
type EndpointConfig struct {
	Version string `json:"version" toml:"version"`
	Path    string `json:"path" toml:"path"`
	// Namespace overrides the namespace implied by Version.
	Namespace string `json:"namespace,omitempty" toml:"namespace"`
}

// JSONConfig configures the array transport.
type JSONConfig struct {
	// Versions lists the accepted sub-protocol versions.
	Versions []string `json:"versions" toml:"versions"`
}

// ChannelsConfig groups the JSON transport adapters.
type ChannelsConfig struct {
	Console ConsoleConfig `json:"console" toml:"console"`
}

// ConsoleConfig enables the line-oriented stdin/stdout channel.
type ConsoleConfig struct {
	Enabled   bool     `json:"enabled" toml:"enabled"`
	AllowFrom []string `json:"allow_from,omitempty" toml:"allow_from"`
	// SubProtocol is reported for every frame, e.g. "ocpp1.6".
	SubProtocol string `json:"sub_protocol,omitempty" toml:"sub_protocol"`
}

// ResolvedNamespace returns the payload namespace served by e.
func (e EndpointConfig) ResolvedNamespace() (string, error) {
	if ns := strings.TrimSpace(e.Namespace); ns != "" {
		return ns, nil
	}
	v, err := ocpp.ParseVersion(e.Version)
	if err != nil {
		return "", err
	}
	return v.Namespace(), nil
}

// Default returns a configuration serving every OCPP SOAP version.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig resolves the config file, decodes it by extension, then applies
// defaults and environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile reads one config file. Files ending in .toml are TOML, anything
// else is JSON.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(content), &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	} else if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks endpoint declarations. Duplicate namespaces are caught
// again when the routing registry is built.
func (c *Config) Validate() error {
	paths := make(map[string]struct{}, len(c.SOAP.Endpoints))
	for i, ep := range c.SOAP.Endpoints {
		if _, err := ep.ResolvedNamespace(); err != nil {
			return fmt.Errorf("soap.endpoints[%d]: %w", i, err)
		}
		path := strings.TrimSpace(ep.Path)
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("soap.endpoints[%d]: path %q must start with /", i, ep.Path)
		}
		if path == c.SOAP.RouterPath {
			return fmt.Errorf("soap.endpoints[%d]: path %q is the router path", i, ep.Path)
		}
		if _, ok := paths[path]; ok {
			return fmt.Errorf("soap.endpoints[%d]: path %q used twice", i, ep.Path)
		}
		paths[path] = struct{}{}
	}
	for _, raw := range c.JSON.Versions {
		if _, err := ocpp.ParseVersion(raw); err != nil {
			return fmt.Errorf("json.versions: %w", err)
		}
	}
	if sub := c.Channels.Console.SubProtocol; sub != "" {
		if _, err := ocpp.ParseVersion(sub); err != nil {
			return fmt.Errorf("channels.console.sub_protocol: %w", err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.SOAP.RouterPath) == "" {
		cfg.SOAP.RouterPath = DefaultRouterPath
	}
	if cfg.SOAP.LookaheadLimit == 0 {
		cfg.SOAP.LookaheadLimit = DefaultLookaheadLimit
	}
	if len(cfg.SOAP.Endpoints) == 0 {
		cfg.SOAP.Endpoints = []EndpointConfig{
			{Version: ocpp.V12.String(), Path: cfg.SOAP.RouterPath + "OCPP12"},
			{Version: ocpp.V15.String(), Path: cfg.SOAP.RouterPath + "OCPP15"},
			{Version: ocpp.V16.String(), Path: cfg.SOAP.RouterPath + "OCPP16"},
		}
	}
	if len(cfg.JSON.Versions) == 0 {
		cfg.JSON.Versions = []string{ocpp.V15.String(), ocpp.V16.String()}
	}
	if strings.TrimSpace(cfg.Channels.Console.SubProtocol) == "" {
		cfg.Channels.Console.SubProtocol = ocpp.V16.SubProtocol()
	}
}

func applyEnvOverrides(cfg *Config) error {
	if host := strings.TrimSpace(os.Getenv(envHTTPHost)); host != "" {
		cfg.Gateway.Host = host
	}
	if raw := strings.TrimSpace(os.Getenv(envHTTPPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", envHTTPPort, raw)
		}
		cfg.Gateway.Port = port
	}
	return nil
}

// findConfigPath resolves the active config file location.
//
// Precedence is OCPPGATE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config.toml"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config", "config.toml"),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no config file found (checked %s)", strings.Join(candidates, ", "))
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// UserAgentWrapper is a string that user agent string should be wrapped into.
	UserAgentWrapper = "/"
	// UserAgentPrefix is a prefix used to generate user agent string.
	UserAgentPrefix = "netstrand:"
	// UserAgentFormat is a formatted string used to generate user agent string.
	UserAgentFormat = UserAgentWrapper + UserAgentPrefix + "%s" + UserAgentWrapper
	// DefaultConfigPath is the default path to the config file.
	DefaultConfigPath = "./config/p2pnode.yml"
)

// Version is the node version, set at build time.
var Version string

// Config is the top level configuration for a netstrand node.
type Config struct {
	P2P    P2P    `yaml:"P2P"`
	Logger Logger `yaml:"Logger"`
}

// GenerateUserAgent builds the user-agent string the handshake's
// version payload advertises.
func (c Config) GenerateUserAgent() string {
	return fmt.Sprintf(UserAgentFormat, Version)
}

// defaults returns a Config carrying the values used when a field is
// absent from the YAML document.
func defaults() Config {
	return Config{
		P2P: P2P{
			Threads:             4,
			InboundConnections:  8,
			OutboundConnections: 8,
			ConnectBatchSize:    4,
			HandshakeTimeout:    30 * time.Second,
			ChannelInactivity:   90 * time.Second,
			ChannelExpiration:   24 * time.Hour,
			ChannelGermination:  10 * time.Second,
			PingInterval:        30 * time.Second,
			ResponseTimeout:     90 * time.Second,
			HostPoolCapacity:    4096,
			RelayTransactions:   true,
		},
	}
}

// LoadFile loads and validates a Config from the YAML document at
// configPath. If relativePath is non-empty, relative paths embedded in
// the config are resolved against it.
func LoadFile(configPath string, relativePath ...string) (Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}

	cfg := defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(configData))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if len(relativePath) == 1 && relativePath[0] != "" {
		updateRelativePaths(relativePath[0], &cfg)
	}

	if err := cfg.P2P.Validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.Logger.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// updateRelativePaths rewrites any relative on-disk paths embedded in
// cfg against relativePath.
func updateRelativePaths(relativePath string, cfg *Config) {
	updatePath := func(path *string) {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(relativePath, *path)
		}
	}
	updatePath(&cfg.P2P.HostFilePath)
	updatePath(&cfg.Logger.LogPath)
}

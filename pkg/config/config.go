// Package config loads the bot's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Twitch TwitchConfig `yaml:"twitch"`
	Markov MarkovConfig `yaml:"markov"`
}

// TwitchConfig configures the twitch backend.
type TwitchConfig struct {
	Username     string          `yaml:"username"`
	OwnerID      string          `yaml:"owner"`
	IgnoredUsers []string        `yaml:"ignoredUsers"`
	Channels     []ChannelConfig `yaml:"channels"`
}

// ChannelConfig configures one joined channel.
type ChannelConfig struct {
	Name               string `yaml:"name"`
	Lurk               bool   `yaml:"lurk"`
	Mod                bool   `yaml:"mod"`
	RespondToPings     bool   `yaml:"respondToPings"`
	SilentInterpErrors bool   `yaml:"silentInterpErrors"`
	CommandPrefix      string `yaml:"commandPrefix"`
}

// MarkovConfig configures text generation.
type MarkovConfig struct {
	MinLength  int  `yaml:"minLength"`
	MaxRetries int  `yaml:"maxRetries"`
	StripPings bool `yaml:"stripPings"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Markov.MinLength <= 0 {
		cfg.Markov.MinLength = 1
	}
	for i, chanCfg := range cfg.Twitch.Channels {
		if chanCfg.Name == "" {
			return nil, fmt.Errorf("invalid config: channel %d has no name", i)
		}
	}
	return &cfg, nil
}

package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// FeedsConfig holds all reputation feed configurations
type FeedsConfig struct {
	Feeds   map[string]FeedConfig `mapstructure:"feeds"`
	Formats map[string]Format     `mapstructure:"formats"`
}

// FeedConfig holds configuration for a single reputation feed. Kind,
// Rating, Name and Category apply to every entry the feed contributes;
// the feed's map key becomes the provenance label unless Name overrides
// the per-entry display name.
type FeedConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Description string         `mapstructure:"description"`
	Kind        string         `mapstructure:"kind"`   // bot or datacenter
	Rating      string         `mapstructure:"rating"` // good, bad or neutral
	Name        string         `mapstructure:"name"`
	Category    string         `mapstructure:"category"`
	Sources     []SourceConfig `mapstructure:"sources"`
}

// SourceConfig holds one URL contributing to a feed
type SourceConfig struct {
	URL    string `mapstructure:"url"`
	Format string `mapstructure:"format"`
	Name   string `mapstructure:"name"`
}

// Format defines how to parse a feed's payload
type Format struct {
	Description   string `mapstructure:"description"`
	CommentPrefix string `mapstructure:"comment_prefix"`
	Separator     string `mapstructure:"separator"`
}

// LoadFeeds loads feeds configuration from file
func LoadFeeds(configPath string) (*FeedsConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}

	var cfg FeedsConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feeds config: %w", err)
	}

	return &cfg, nil
}

// GetEnabledFeeds returns only enabled feeds
func (fc *FeedsConfig) GetEnabledFeeds() map[string]FeedConfig {
	enabled := make(map[string]FeedConfig)
	for name, feed := range fc.Feeds {
		if feed.Enabled {
			enabled[name] = feed
		}
	}
	return enabled
}

// GetFormat returns a format parser configuration
func (fc *FeedsConfig) GetFormat(name string) (Format, bool) {
	format, ok := fc.Formats[name]
	return format, ok
}

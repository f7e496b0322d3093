// Package config loads the churnflow configuration file: broker
// cluster, managed topics, consumer group, and model artifact path.
// Runtime knobs (rates, intervals, counts) are CLI flags, not config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lsm/churnflow/internal/kafka"
)

// TopicsConfig names the two managed topics.
type TopicsConfig struct {
	Input  kafka.TopicSpec `yaml:"input"`
	Scored kafka.TopicSpec `yaml:"scored"`
}

// Config is the full file configuration.
type Config struct {
	Cluster kafka.ClusterConfig `yaml:"cluster"`
	Topics  TopicsConfig        `yaml:"topics"`
	Group   string              `yaml:"group"`
	Model   string              `yaml:"model"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Cluster: kafka.DefaultCluster(),
		Topics: TopicsConfig{
			Input:  kafka.TopicSpec{Name: "customer-events", Partitions: 3, ReplicationFactor: 1},
			Scored: kafka.TopicSpec{Name: "scored-predictions", Partitions: 3, ReplicationFactor: 1},
		},
		Group: "churnflow-scoring",
		Model: "model.yaml",
	}
}

// Load reads the config file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.Topics.Input.Validate(); err != nil {
		return fmt.Errorf("topics.input: %w", err)
	}
	if err := c.Topics.Scored.Validate(); err != nil {
		return fmt.Errorf("topics.scored: %w", err)
	}
	if c.Group == "" {
		return fmt.Errorf("group is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// Keep returns the topic names the cleanup operation must preserve:
// both managed topics and the input topic's dead-letter companion.
func (c *Config) Keep() []string {
	return []string{
		c.Topics.Input.Name,
		c.Topics.Scored.Name,
		c.Topics.Input.Name + ".dlq",
	}
}

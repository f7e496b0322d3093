// Package kafka provides the broker connection layer: cluster
// configuration, client construction, publishing, offset-aware
// consumption, and topic administration.
package kafka

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ClusterConfig identifies the broker cluster and how to authenticate
// against it. An explicit handle to it is passed into every component
// constructor; there is no process-wide connection singleton.
type ClusterConfig struct {
	Brokers []string   `yaml:"brokers"`
	Auth    AuthConfig `yaml:"auth,omitempty"`
	TLS     TLSConfig  `yaml:"tls,omitempty"`
}

// AuthConfig defines SASL authentication.
type AuthConfig struct {
	Mechanism string `yaml:"mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// TLSConfig defines TLS settings for broker connections.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CAFile     string `yaml:"caFile,omitempty"`
	CertFile   string `yaml:"certFile,omitempty"`
	KeyFile    string `yaml:"keyFile,omitempty"`
	SkipVerify bool   `yaml:"skipVerify,omitempty"`
}

// DefaultCluster returns a cluster config pointing at CHURNFLOW_BROKERS
// or localhost.
func DefaultCluster() ClusterConfig {
	brokers := []string{"localhost:9092"}
	if env := os.Getenv("CHURNFLOW_BROKERS"); env != "" {
		brokers = SplitBrokers(env)
	}
	return ClusterConfig{Brokers: brokers}
}

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

// Validate checks the cluster configuration.
func (c *ClusterConfig) Validate() error {
	var errs []error

	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("brokers are required"))
	}

	if c.Auth.Mechanism != "" {
		switch c.Auth.Mechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			errs = append(errs, fmt.Errorf("auth.mechanism %q is not valid (must be PLAIN, SCRAM-SHA-256, or SCRAM-SHA-512)", c.Auth.Mechanism))
		}
		if c.Auth.Username == "" {
			errs = append(errs, errors.New("auth.username is required when mechanism is set"))
		}
		if c.Auth.Password == "" {
			errs = append(errs, errors.New("auth.password is required when mechanism is set"))
		}
	}

	if c.TLS.CertFile != "" && c.TLS.KeyFile == "" {
		errs = append(errs, errors.New("tls.keyFile is required when certFile is specified"))
	}
	if c.TLS.KeyFile != "" && c.TLS.CertFile == "" {
		errs = append(errs, errors.New("tls.certFile is required when keyFile is specified"))
	}

	return errors.Join(errs...)
}

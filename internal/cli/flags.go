// Package cli implements the churnflow subcommands: produce, consume,
// topics, analytics, and score. Commands parse their own flags, wire
// the broker and model layers together, and print JSON results to
// stdout. Logs go to stderr.
package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lsm/churnflow/internal/config"
	"github.com/lsm/churnflow/internal/kafka"
	"github.com/lsm/churnflow/internal/observability"
)

func parseStringFlag(args []string, flag string) (string, error) {
	for i, arg := range args {
		if arg == flag {
			if i+1 < len(args) {
				return args[i+1], nil
			}
			return "", fmt.Errorf("flag %s requires a value", flag)
		}
	}
	return "", nil
}

func parseIntFlag(args []string, flag string, defaultVal int) (int, error) {
	str, err := parseStringFlag(args, flag)
	if err != nil {
		return 0, err
	}
	if str == "" {
		return defaultVal, nil
	}
	var val int
	if _, err := fmt.Sscanf(str, "%d", &val); err != nil {
		return 0, fmt.Errorf("invalid value for %s: must be an integer", flag)
	}
	if val < 1 {
		return 0, fmt.Errorf("invalid value for %s: must be >= 1", flag)
	}
	return val, nil
}

func parseFloatFlag(args []string, flag string, defaultVal float64) (float64, error) {
	str, err := parseStringFlag(args, flag)
	if err != nil {
		return 0, err
	}
	if str == "" {
		return defaultVal, nil
	}
	var val float64
	if _, err := fmt.Sscanf(str, "%g", &val); err != nil {
		return 0, fmt.Errorf("invalid value for %s: must be a number", flag)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid value for %s: must be positive", flag)
	}
	return val, nil
}

func parseDurationFlag(args []string, flag string, defaultVal time.Duration) (time.Duration, error) {
	str, err := parseStringFlag(args, flag)
	if err != nil {
		return 0, err
	}
	if str == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", flag, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid value for %s: must be positive", flag)
	}
	return d, nil
}

func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

// loadRuntime handles the flags every command shares: --config,
// --brokers, and --log-level.
func loadRuntime(component string, args []string) (*config.Config, *slog.Logger, error) {
	cfgPath, err := parseStringFlag(args, "--config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	brokersStr, err := parseStringFlag(args, "--brokers")
	if err != nil {
		return nil, nil, err
	}
	if brokersStr != "" {
		cfg.Cluster.Brokers = kafka.SplitBrokers(brokersStr)
	}

	levelStr, err := parseStringFlag(args, "--log-level")
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(component, observability.GetLogLevel(levelStr))
	return cfg, logger, nil
}

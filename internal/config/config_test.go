package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsPassValidation(t *testing.T) {
	cfg := &Config{
		Partitions: 32, InboundStreamBase: 1000, OutboundStreamBase: 2000,
		GatewayPort: 7001, BackpressureLimit: 4096,
		MetricsIntervalSecs: 5, MetricsPort: 9090,
		OrderPoolCapacity: 1000, LevelPoolCapacity: 100,
		Transport:   TransportConfig{Kind: "channel", RatePerSecond: 1000},
		LogLevel:    "info",
		Environment: "development",
	}

	require.NoError(t, validate.Struct(cfg))
}

func TestInvalidLogLevelFailsValidation(t *testing.T) {
	cfg := &Config{
		Partitions: 1, GatewayPort: 1, BackpressureLimit: 1,
		MetricsIntervalSecs: 1, MetricsPort: 1,
		OrderPoolCapacity: 1, LevelPoolCapacity: 1,
		Transport:   TransportConfig{Kind: "channel", RatePerSecond: 1},
		LogLevel:    "verbose",
		Environment: "development",
	}

	require.Error(t, validate.Struct(cfg))
}

func TestInvalidTransportKindFailsValidation(t *testing.T) {
	cfg := &Config{
		Partitions: 1, GatewayPort: 1, BackpressureLimit: 1,
		MetricsIntervalSecs: 1, MetricsPort: 1,
		OrderPoolCapacity: 1, LevelPoolCapacity: 1,
		Transport:   TransportConfig{Kind: "zeromq", RatePerSecond: 1},
		LogLevel:    "info",
		Environment: "development",
	}

	require.Error(t, validate.Struct(cfg))
}

func TestZeroPartitionsFailsValidation(t *testing.T) {
	cfg := &Config{
		Partitions: 0, GatewayPort: 1, BackpressureLimit: 1,
		MetricsIntervalSecs: 1, MetricsPort: 1,
		OrderPoolCapacity: 1, LevelPoolCapacity: 1,
		Transport:   TransportConfig{Kind: "channel", RatePerSecond: 1},
		LogLevel:    "info",
		Environment: "development",
	}

	require.Error(t, validate.Struct(cfg))
}

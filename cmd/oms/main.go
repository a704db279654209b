// Command oms is the order management system process: depending on
// configuration it runs the TCP gateway, the partitioned matching
// engine, or both in the same binary, wired together with
// go.uber.org/fx.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/config"
	"github.com/abdoElHodaky/tradsys-oms/internal/engine"
	"github.com/abdoElHodaky/tradsys-oms/internal/gateway"
	"github.com/abdoElHodaky/tradsys-oms/internal/metrics"
	"github.com/abdoElHodaky/tradsys-oms/internal/session"
	"github.com/abdoElHodaky/tradsys-oms/internal/transport"
	"github.com/abdoElHodaky/tradsys-oms/internal/workerpool"
)

func main() {
	configPath := os.Getenv("TRADSYS_OMS_CONFIG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "oms: failed to load configuration:", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "oms: failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.RunGateway && !cfg.RunEngine {
		logger.Fatal("neither runGateway nor runEngine is enabled, nothing to do")
	}

	buildApp(cfg, logger).Run()
}

func buildApp(cfg *config.Config, logger *zap.Logger) *fx.App {
	opts := []fx.Option{
		fx.Supply(cfg, logger),

		fx.Provide(func() transport.PartitionTransport {
			return newTransport(cfg, logger)
		}),
		fx.Provide(func() *session.Registry { return session.NewRegistry(logger) }),
		fx.Provide(func() *metrics.Collector { return metrics.NewCollector(logger) }),
		fx.Provide(func() *workerpool.Factory { return workerpool.NewFactory(logger) }),

		fx.Provide(fx.Annotate(func() int { return cfg.MetricsPort }, fx.ResultTags(`name:"metricsPort"`))),
		fx.Provide(metrics.NewServer),

		// Registered before any other hook so fx, stopping in reverse
		// order, closes the transport after every user of it has stopped.
		fx.Invoke(func(lc fx.Lifecycle, tr transport.PartitionTransport) {
			lc.Append(fx.Hook{OnStop: func(context.Context) error { return tr.Close() }})
		}),
	}

	if cfg.RunEngine {
		opts = append(opts,
			fx.Provide(func() engine.ManagerConfig {
				return engine.ManagerConfig{
					Partitions:         cfg.Partitions,
					InboundStreamBase:  cfg.InboundStreamBase,
					OutboundStreamBase: cfg.OutboundStreamBase,
					OrderPoolCapacity:  cfg.OrderPoolCapacity,
					LevelPoolCapacity:  cfg.LevelPoolCapacity,
					MetricsInterval:    time.Duration(cfg.MetricsIntervalSecs) * time.Second,
				}
			}),
			fx.Provide(func(m *metrics.Collector) engine.Metrics { return m }),
			fx.Provide(engine.NewManager),
			fx.Invoke(func(*engine.Manager) {}),
		)
	}

	if cfg.RunGateway {
		opts = append(opts,
			fx.Provide(func() gateway.Config {
				return gateway.Config{
					Port:                cfg.GatewayPort,
					Partitions:          cfg.Partitions,
					InboundStreamBase:   cfg.InboundStreamBase,
					OutboundStreamBase:  cfg.OutboundStreamBase,
					MaxFragmentsPerPoll: 256,
				}
			}),
			fx.Provide(gateway.NewGateway),
			fx.Invoke(func(*gateway.Gateway) {}),
		)
	}

	opts = append(opts, fx.Invoke(func(*metrics.Server) {}))

	return fx.New(opts...)
}

func newTransport(cfg *config.Config, logger *zap.Logger) transport.PartitionTransport {
	switch cfg.Transport.Kind {
	case "kafka":
		brokers := strings.Split(cfg.Transport.Endpoint, ",")
		tr, err := transport.NewKafkaTransport(transport.KafkaConfig{
			Brokers: brokers,
			Topic:   cfg.Transport.Topic,
		}, logger)
		if err != nil {
			logger.Fatal("failed to construct kafka transport", zap.Error(err))
		}
		return tr
	default:
		return transport.NewChanTransport(cfg.BackpressureLimit, cfg.Transport.RatePerSecond, logger)
	}
}

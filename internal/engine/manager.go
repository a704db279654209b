package engine

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/transport"
	"github.com/abdoElHodaky/tradsys-oms/internal/workerpool"
)

// snapshotPoolSize sizes the workerpool backing the periodic book-depth
// publication job; each submitted task is just a handful of Prometheus
// gauge sets.
const snapshotPoolSize = 2

// ManagerConfig is the subset of the process configuration the engine
// manager needs: partition count and the stream-id bases used to derive
// each partition's inbound/outbound stream ids.
type ManagerConfig struct {
	Partitions         int
	InboundStreamBase  int
	OutboundStreamBase int
	OrderPoolCapacity  int
	LevelPoolCapacity  int
	MetricsInterval    time.Duration
}

// Manager owns every partition worker. It is wired via fx and started
// only when the process configuration enables the engine role.
type Manager struct {
	partitions []*Partition
	logger     *zap.Logger
}

// ManagerParams is the fx constructor input for Manager.
type ManagerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Transport transport.PartitionTransport
	Config    ManagerConfig
	Metrics   Metrics `optional:"true"`
	Pools     *workerpool.Factory
}

// NewManager builds one Partition per configured shard and registers fx
// lifecycle hooks that start and stop all of them together.
func NewManager(p ManagerParams) *Manager {
	m := &Manager{logger: p.Logger}

	var snapshotPool *workerpool.Pool
	if p.Pools != nil {
		pool, err := p.Pools.Get("book-snapshot", snapshotPoolSize)
		if err != nil {
			p.Logger.Warn("failed to build book-snapshot workerpool, periodic depth publication disabled", zap.Error(err))
		} else {
			snapshotPool = pool
		}
	}

	for i := 0; i < p.Config.Partitions; i++ {
		cfg := Config{
			PartitionID:       i,
			InboundStreamID:   p.Config.InboundStreamBase + i,
			OutboundStreamID:  p.Config.OutboundStreamBase + i,
			OrderPoolCapacity: p.Config.OrderPoolCapacity,
			LevelPoolCapacity: p.Config.LevelPoolCapacity,
			SnapshotInterval:  p.Config.MetricsInterval,
		}
		m.partitions = append(m.partitions, NewPartition(cfg, p.Transport, p.Logger, p.Metrics, snapshotPool))
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			m.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Stop()
			return nil
		},
	})

	return m
}

// Start launches every partition's run loop.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("starting engine partitions", zap.Int("count", len(m.partitions)))
	for _, p := range m.partitions {
		p.Start(ctx)
	}
}

// Stop stops every partition and waits for its loop to drain.
func (m *Manager) Stop() {
	for _, p := range m.partitions {
		p.Stop()
	}
	m.logger.Info("engine partitions stopped")
}

// Partitions exposes the managed partitions for diagnostics.
func (m *Manager) Partitions() []*Partition { return m.partitions }

// Package gateway is the TCP-facing half of the OMS: the ingress
// connection handler that authenticates sessions, validates client
// sequence numbers and forwards requests into the partition transport,
// and the egress router that polls every partition's outbound stream
// and routes replies back to the originating client socket.
package gateway

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/metrics"
	"github.com/abdoElHodaky/tradsys-oms/internal/session"
	"github.com/abdoElHodaky/tradsys-oms/internal/transport"
	"github.com/abdoElHodaky/tradsys-oms/internal/workerpool"
)

// Config is the subset of process configuration the gateway needs.
type Config struct {
	Port                int
	Partitions          int
	InboundStreamBase   int
	OutboundStreamBase  int
	MaxFragmentsPerPoll int
}

// Gateway owns the TCP listener, the session registry, the
// gateway-wide internalOrderId counter, and the egress router.
type Gateway struct {
	cfg       Config
	logger    *zap.Logger
	registry  *session.Registry
	transport transport.PartitionTransport
	metrics   *metrics.Collector
	latency   *workerpool.Pool

	nextOrderID atomic.Uint64

	listener net.Listener
	router   *egressRouter

	ctx    context.Context
	cancel context.CancelFunc
}

// Params is the fx constructor input for Gateway.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Registry  *session.Registry
	Transport transport.PartitionTransport
	Metrics   *metrics.Collector `optional:"true"`
	Pools     *workerpool.Factory
	Config    Config
}

// NewGateway builds the gateway and registers fx lifecycle hooks that
// open the listener, start the egress router, and tear both down on
// shutdown.
func NewGateway(p Params) (*Gateway, error) {
	latencyPool, err := p.Pools.Get("ack-latency", 4)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		cfg:       p.Config,
		logger:    p.Logger,
		registry:  p.Registry,
		transport: p.Transport,
		metrics:   p.Metrics,
		latency:   latencyPool,
	}
	gw.router = newEgressRouter(gw)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return gw.start() },
		OnStop:  func(ctx context.Context) error { return gw.stop() },
	})

	return gw, nil
}

func (g *Gateway) start() error {
	addr := listenAddr(g.cfg.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g.listener = l
	g.ctx, g.cancel = context.WithCancel(context.Background())

	g.logger.Info("gateway listening", zap.String("addr", addr))
	go g.acceptLoop()
	g.router.start(g.ctx)
	return nil
}

func (g *Gateway) stop() error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.listener != nil {
		g.listener.Close()
	}
	g.router.stop()
	return nil
}

func (g *Gateway) acceptLoop() {
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			select {
			case <-g.ctx.Done():
				return
			default:
				g.logger.Warn("accept failed", zap.Error(err))
				return
			}
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetNoDelay(true); err != nil {
				g.logger.Warn("failed to set TCP_NODELAY", zap.Error(err))
			}
			if err := tcpConn.SetKeepAlive(true); err != nil {
				g.logger.Warn("failed to set SO_KEEPALIVE", zap.Error(err))
			}
		}

		c := newConnection(conn, g)
		go c.run()
	}
}

func listenAddr(port int) string {
	if port <= 0 {
		port = 7001
	}
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
}

// partitionFor maps an instrumentId onto its inbound partition index:
// partition = instrumentId mod P. This is the only routing key.
func (g *Gateway) partitionFor(instrumentID uint32) int {
	p := g.cfg.Partitions
	if p <= 0 {
		p = 1
	}
	return int(instrumentID % uint32(p))
}

// Package metrics exposes the OMS's Prometheus metrics and a small
// admin HTTP surface (healthz/metrics/stats) served with gin, covering
// every order-lifecycle event the system emits.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
)

// Collector implements engine.Metrics and the gateway-side counters the
// rest of the OMS reports against.
type Collector struct {
	logger *zap.Logger

	acks            *prometheus.CounterVec
	rejects         *prometheus.CounterVec
	fills           *prometheus.CounterVec
	cancelAcks      *prometheus.CounterVec
	poolExhaustions *prometheus.CounterVec
	outboundDrops   *prometheus.CounterVec
	backpressure    *prometheus.CounterVec
	ackLatency      prometheus.Histogram
	bookDepth       *prometheus.GaugeVec
	queueDepth      *prometheus.GaugeVec

	startTime time.Time
}

// NewCollector registers every OMS metric with the default Prometheus
// registry.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{
		logger:    logger,
		startTime: time.Now(),

		acks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_acks_total",
			Help: "Total ACKs published, by partition.",
		}, []string{"partition"}),

		rejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_rejects_total",
			Help: "Total REJECTs published, by partition and reason.",
		}, []string{"partition", "reason"}),

		fills: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_fills_total",
			Help: "Total executions, by partition; each execution publishes two FILL events.",
		}, []string{"partition"}),

		cancelAcks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_cancel_acks_total",
			Help: "Total CANCEL_ACKs published, by partition.",
		}, []string{"partition"}),

		poolExhaustions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_pool_exhaustions_total",
			Help: "Total order-pool borrow failures, by partition.",
		}, []string{"partition"}),

		outboundDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_outbound_drops_total",
			Help: "Total outbound messages dropped after exhausting publish retries.",
		}, []string{"partition"}),

		backpressure: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_gateway_backpressure_total",
			Help: "Total SYSTEM_BUSY rejects issued at the gateway due to inbound publish backpressure.",
		}, []string{"partition"}),

		ackLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "oms_ack_latency_seconds",
			Help:    "Latency from the engine's ACK timestamp to the gateway writing the ACK to the client.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs .. ~330ms
		}),

		bookDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oms_book_depth_levels",
			Help: "Number of resting price levels, by partition, instrument and side.",
		}, []string{"partition", "instrument", "side"}),

		queueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oms_partition_queue_depth",
			Help: "Observed inbound queue depth, by partition.",
		}, []string{"partition"}),
	}
}

func partitionLabel(partition int) string {
	return itoa(partition)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// RecordAck implements engine.Metrics.
func (c *Collector) RecordAck(partition int) {
	c.acks.WithLabelValues(partitionLabel(partition)).Inc()
}

// RecordReject implements engine.Metrics.
func (c *Collector) RecordReject(partition int, reason wire.RejectReason) {
	c.rejects.WithLabelValues(partitionLabel(partition), reason.String()).Inc()
}

// RecordFill implements engine.Metrics.
func (c *Collector) RecordFill(partition int) {
	c.fills.WithLabelValues(partitionLabel(partition)).Inc()
}

// RecordCancelAck implements engine.Metrics.
func (c *Collector) RecordCancelAck(partition int) {
	c.cancelAcks.WithLabelValues(partitionLabel(partition)).Inc()
}

// RecordPoolExhaustion implements engine.Metrics.
func (c *Collector) RecordPoolExhaustion(partition int) {
	c.poolExhaustions.WithLabelValues(partitionLabel(partition)).Inc()
}

// RecordOutboundDrop implements engine.Metrics.
func (c *Collector) RecordOutboundDrop(partition int) {
	c.outboundDrops.WithLabelValues(partitionLabel(partition)).Inc()
}

// ObserveBookDepth implements engine.Metrics.
func (c *Collector) ObserveBookDepth(partition int, instrumentID uint32, bidLevels, askLevels int) {
	p := partitionLabel(partition)
	instr := itoa(int(instrumentID))
	c.bookDepth.WithLabelValues(p, instr, "bid").Set(float64(bidLevels))
	c.bookDepth.WithLabelValues(p, instr, "ask").Set(float64(askLevels))
}

// RecordGatewayBackpressure records a SYSTEM_BUSY reject caused by the
// partition transport refusing an inbound publish.
func (c *Collector) RecordGatewayBackpressure(partition int) {
	c.backpressure.WithLabelValues(partitionLabel(partition)).Inc()
}

// ObserveAckLatency records the gateway-observed seconds between the
// engine stamping an ACK and the gateway writing it to the client, sampled asynchronously via the workerpool so
// it never blocks the egress router.
func (c *Collector) ObserveAckLatency(seconds float64) {
	c.ackLatency.Observe(seconds)
}

// SetQueueDepth records the most recently observed inbound queue depth
// for a partition.
func (c *Collector) SetQueueDepth(partition int, depth int) {
	c.queueDepth.WithLabelValues(partitionLabel(partition)).Set(float64(depth))
}

// Server is the admin/metrics HTTP surface: /healthz, /metrics, /stats.
// The order path stays raw TCP; this serves only operational traffic.
type Server struct {
	logger    *zap.Logger
	collector *Collector
	addr      string
	srv       *http.Server
}

// ServerParams is the fx constructor input for Server.
type ServerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Collector *Collector
	Port      int `name:"metricsPort"`
}

// NewServer builds the metrics HTTP server and registers fx lifecycle
// hooks to start/stop it alongside the rest of the process.
func NewServer(p ServerParams) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet},
	}))

	s := &Server{
		logger:    p.Logger,
		collector: p.Collector,
		addr:      addrForPort(p.Port),
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stats", s.handleStats)

	s.srv = &http.Server{Addr: s.addr, Handler: router}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.logger.Error("metrics server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	})

	return s
}

func addrForPort(port int) string {
	if port <= 0 {
		port = 9090
	}
	return ":" + itoa(port)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_seconds": time.Since(s.collector.startTime).Seconds()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"uptime_seconds": time.Since(s.collector.startTime).Seconds()})
}

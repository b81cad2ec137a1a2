package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatsSource supplies the gauge values the collector polls.
type StatsSource interface {
	// CollectStats returns current counts: sessions, participants,
	// locks, websocket connections.
	CollectStats() (sessions, participants, locks, connections int)
}

// Collector periodically refreshes gauges from a stats source.
type Collector struct {
	metrics  *Metrics
	source   StatsSource
	interval time.Duration
	logger   *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a collector polling every 15 seconds.
func NewCollector(metrics *Metrics, source StatsSource, logger *zap.Logger) *Collector {
	return &Collector{
		metrics:  metrics,
		source:   source,
		interval: 15 * time.Second,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.loop()
}

// Stop halts the loop. Idempotent.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

func (c *Collector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refresh()
	for {
		select {
		case <-ticker.C:
			c.refresh()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) refresh() {
	sessions, participants, locks, connections := c.source.CollectStats()
	c.metrics.SessionsActive.Set(float64(sessions))
	c.metrics.ParticipantsActive.Set(float64(participants))
	c.metrics.LocksActive.Set(float64(locks))
	c.metrics.WSConnectionsActive.Set(float64(connections))
}

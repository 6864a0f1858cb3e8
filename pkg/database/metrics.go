package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// PoolStatsCollector exports pgxpool statistics.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string

	acquiredConns    *prometheus.Desc
	idleConns        *prometheus.Desc
	totalConns       *prometheus.Desc
	maxConns         *prometheus.Desc
	acquireDuration  *prometheus.Desc
	emptyAcquires    *prometheus.Desc
	canceledAcquires *prometheus.Desc
}

func poolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(name, help, []string{"service"}, nil)
}

// NewPoolStatsCollector creates a collector for pool. Describe works with a nil pool.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	return &PoolStatsCollector{
		pool:             pool,
		service:          service,
		acquiredConns:    poolDesc("db_pool_acquired_connections", "Number of currently acquired connections"),
		idleConns:        poolDesc("db_pool_idle_connections", "Number of currently idle connections"),
		totalConns:       poolDesc("db_pool_total_connections", "Total number of connections in the pool"),
		maxConns:         poolDesc("db_pool_max_connections", "Maximum number of connections allowed"),
		acquireDuration:  poolDesc("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections in seconds"),
		emptyAcquires:    poolDesc("db_pool_empty_acquire_count_total", "Total number of acquires that had to wait for a connection"),
		canceledAcquires: poolDesc("db_pool_canceled_acquire_count_total", "Total number of canceled connection acquires"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredConns
	ch <- c.idleConns
	ch <- c.totalConns
	ch <- c.maxConns
	ch <- c.acquireDuration
	ch <- c.emptyAcquires
	ch <- c.canceledAcquires
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stat.IdleConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stat.TotalConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(stat.MaxConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.acquireDuration, prometheus.CounterValue, stat.AcquireDuration().Seconds(), c.service)
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(stat.EmptyAcquireCount()), c.service)
	ch <- prometheus.MustNewConstMetric(c.canceledAcquires, prometheus.CounterValue, float64(stat.CanceledAcquireCount()), c.service)
}

// RedisPoolStater is implemented by *redis.Client.
type RedisPoolStater interface {
	PoolStats() *redis.PoolStats
}

// RedisStatsCollector exports go-redis connection pool statistics.
type RedisStatsCollector struct {
	client  RedisPoolStater
	service string

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
}

// NewRedisStatsCollector creates a collector for client.
func NewRedisStatsCollector(client RedisPoolStater, service string) *RedisStatsCollector {
	return &RedisStatsCollector{
		client:     client,
		service:    service,
		hits:       poolDesc("redis_pool_hits_total", "Times a free connection was found in the pool"),
		misses:     poolDesc("redis_pool_misses_total", "Times a free connection was not found in the pool"),
		timeouts:   poolDesc("redis_pool_timeouts_total", "Times a wait for a connection timed out"),
		totalConns: poolDesc("redis_pool_total_connections", "Total number of connections in the pool"),
		idleConns:  poolDesc("redis_pool_idle_connections", "Number of idle connections in the pool"),
	}
}

// Describe implements prometheus.Collector.
func (c *RedisStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
	ch <- c.idleConns
}

// Collect implements prometheus.Collector.
func (c *RedisStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.client.PoolStats()
	if s == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), c.service)
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), c.service)
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts), c.service)
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.TotalConns), c.service)
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.IdleConns), c.service)
}

// RegisterPoolMetrics registers collectors for the given pools with reg.
// Either argument may be nil.
func RegisterPoolMetrics(reg prometheus.Registerer, service string, pool *pgxpool.Pool, rdb RedisPoolStater) {
	if pool != nil {
		reg.MustRegister(NewPoolStatsCollector(pool, service))
	}
	if rdb != nil {
		reg.MustRegister(NewRedisStatsCollector(rdb, service))
	}
}

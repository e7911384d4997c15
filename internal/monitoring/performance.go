package monitoring

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PerformanceMonitor tracks worker-side send throughput and process health,
// logged periodically alongside the per-job protocol in internal/worker —
// adapted from the teacher's request-latency monitor (HTTP requests) to
// track channel.Adapter.Send outcomes instead.
type PerformanceMonitor struct {
	logger *zap.Logger

	totalSends     int64
	successfulSend int64
	failedSends    int64
	totalLatency   int64 // milliseconds
	currentRate    int64

	initialMemory uint64

	stop     chan struct{}
	interval time.Duration
}

// NewPerformanceMonitor creates a new performance monitor reporting every
// 30 seconds.
func NewPerformanceMonitor(logger *zap.Logger) *PerformanceMonitor {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &PerformanceMonitor{
		logger:        logger,
		stop:          make(chan struct{}),
		interval:      30 * time.Second,
		initialMemory: m.Alloc,
	}
}

// Start begins periodic reporting; it returns immediately and reports on a
// background goroutine until ctx is cancelled or Stop is called.
func (pm *PerformanceMonitor) Start(ctx context.Context) {
	go pm.monitorLoop(ctx)
	pm.logger.Info("performance monitoring started", zap.Duration("interval", pm.interval))
}

// Stop ends the reporting loop.
func (pm *PerformanceMonitor) Stop() {
	close(pm.stop)
	pm.logger.Info("performance monitoring stopped")
}

// RecordSend records one channel.Adapter.Send call's wall-clock latency and
// overall success, called by internal/worker.Manager once per claimed job.
func (pm *PerformanceMonitor) RecordSend(latency time.Duration, success bool) {
	atomic.AddInt64(&pm.totalSends, 1)
	atomic.AddInt64(&pm.totalLatency, latency.Milliseconds())

	if success {
		atomic.AddInt64(&pm.successfulSend, 1)
	} else {
		atomic.AddInt64(&pm.failedSends, 1)
	}
}

// CurrentRate returns the most recently measured sends-per-second.
func (pm *PerformanceMonitor) CurrentRate() int64 {
	return atomic.LoadInt64(&pm.currentRate)
}

func (pm *PerformanceMonitor) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	var lastTotal int64
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pm.stop:
			return
		case <-ticker.C:
			pm.reportMetrics(&lastTotal, &lastTime)
		}
	}
}

func (pm *PerformanceMonitor) reportMetrics(lastTotal *int64, lastTime *time.Time) {
	now := time.Now()
	currentTotal := atomic.LoadInt64(&pm.totalSends)
	successful := atomic.LoadInt64(&pm.successfulSend)
	failed := atomic.LoadInt64(&pm.failedSends)
	totalLatency := atomic.LoadInt64(&pm.totalLatency)

	timeDiff := now.Sub(*lastTime).Seconds()
	sendDiff := currentTotal - *lastTotal
	currentRate := float64(sendDiff) / timeDiff
	atomic.StoreInt64(&pm.currentRate, int64(currentRate))

	var successRate, avgLatency float64
	if currentTotal > 0 {
		successRate = float64(successful) / float64(currentTotal) * 100
		avgLatency = float64(totalLatency) / float64(currentTotal)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	memoryUsageMB := float64(m.Alloc) / 1024 / 1024
	memoryDeltaMB := float64(m.Alloc-pm.initialMemory) / 1024 / 1024

	issues := pm.detectPerformanceIssues(currentRate, successRate, memoryUsageMB)

	pm.logger.Info("performance metrics",
		zap.Int64("total_sends", currentTotal),
		zap.Int64("successful_sends", successful),
		zap.Int64("failed_sends", failed),
		zap.Float64("success_rate_pct", successRate),
		zap.Float64("current_sends_per_sec", currentRate),
		zap.Float64("avg_latency_ms", avgLatency),
		zap.Float64("memory_usage_mb", memoryUsageMB),
		zap.Float64("memory_delta_mb", memoryDeltaMB),
		zap.Uint32("gc_cycles", m.NumGC),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Int("cpu_cores", runtime.NumCPU()),
		zap.Strings("performance_issues", issues),
	)

	*lastTotal = currentTotal
	*lastTime = now
}

// detectPerformanceIssues flags low success rate, high memory use, or
// goroutine growth worth an operator's attention. Throughput is not checked.
func (pm *PerformanceMonitor) detectPerformanceIssues(rate, successRate, memoryMB float64) []string {
	var issues []string

	if successRate < 95.0 && pm.totalSends > 100 {
		issues = append(issues, "low_success_rate")
	}
	if memoryMB > 500 {
		issues = append(issues, "high_memory_usage")
	}
	if runtime.NumGoroutine() > 1000 {
		issues = append(issues, "goroutine_leak")
	}
	if len(issues) == 0 {
		issues = []string{"none"}
	}

	return issues
}

// Summary is a point-in-time snapshot of the counters RecordSend
// accumulates, for callers that want the numbers without waiting for the
// next log line.
type Summary struct {
	TotalSends     int64
	SuccessfulSend int64
	FailedSends    int64
	SuccessRate    float64
	CurrentRate    float64
	AvgLatencyMs   float64
	MemoryUsageMB  float64
	GoroutineCount int
	CPUCores       int
}

// GetSummary returns the current Summary.
func (pm *PerformanceMonitor) GetSummary() Summary {
	total := atomic.LoadInt64(&pm.totalSends)
	successful := atomic.LoadInt64(&pm.successfulSend)
	failed := atomic.LoadInt64(&pm.failedSends)
	latency := atomic.LoadInt64(&pm.totalLatency)
	rate := atomic.LoadInt64(&pm.currentRate)

	var successRate, avgLatency float64
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
		avgLatency = float64(latency) / float64(total)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Summary{
		TotalSends:     total,
		SuccessfulSend: successful,
		FailedSends:    failed,
		SuccessRate:    successRate,
		CurrentRate:    float64(rate),
		AvgLatencyMs:   avgLatency,
		MemoryUsageMB:  float64(m.Alloc) / 1024 / 1024,
		GoroutineCount: runtime.NumGoroutine(),
		CPUCores:       runtime.NumCPU(),
	}
}

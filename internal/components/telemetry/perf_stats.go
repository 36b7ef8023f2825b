package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

const report_perf_stats_cpu = "perf-stats.cpu"

var perfMeter = otel.Meter("go.perf_stats")
var cpuGauge, _ = perfMeter.Float64Gauge("cpu_usage")
var memoryGauge, _ = perfMeter.Int64Gauge("allocated_mb")
var liveObjectsGauge, _ = perfMeter.Int64Gauge("live_objects")
var goroutineGauge, _ = perfMeter.Int64Gauge("goroutine_count")

// InstrumentPerfStats samples process statistics every interval until ctx
// is cancelled.
func InstrumentPerfStats(ctx context.Context, tel API, interval time.Duration) {
	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := cpu.PercentWithContext(ctx, time.Second, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil && ctx.Err() == nil {
					tel.ReportWarning(report_perf_stats_cpu, err)
				}

				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				liveObjectsGauge.Record(ctx, int64(memStats.Mallocs)-int64(memStats.Frees))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
}

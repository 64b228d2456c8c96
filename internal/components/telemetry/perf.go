package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var perfMeter = otel.Meter("stockharvest.perf_stats")

// InstrumentPerfStats records process gauges every interval until ctx is done.
// Child processes (the headless browser) are included in the rss gauge since
// they are what usually leaks in a long running harvester.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	cpuGauge, _ := perfMeter.Float64Gauge("cpu_usage")
	memoryGauge, _ := perfMeter.Int64Gauge("allocated_mb")
	rssGauge, _ := perfMeter.Int64Gauge("tree_rss_mb")
	goroutineGauge, _ := perfMeter.Int64Gauge("goroutine_count")

	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.Warn("perf stats: inspect own process", "err", err)
		self = nil
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := cpu.PercentWithContext(ctx, 0, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					slog.Debug("perf stats: read cpu usage", "err", err)
				}

				if self != nil {
					rssGauge.Record(ctx, treeRSS(ctx, self)/1_000_000)
				}
				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func treeRSS(ctx context.Context, p *process.Process) int64 {
	var total int64
	mem, err := p.MemoryInfoWithContext(ctx)
	if err == nil {
		total += int64(mem.RSS)
	}
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return total
	}
	for _, child := range children {
		total += treeRSS(ctx, child)
	}
	return total
}

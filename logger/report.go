package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type componentStat struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*componentStat

func componentStats(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentStats(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentStats(component).errors, 1)
}

// StartReport begins periodic logging of process resources and per-component
// warning/error counts until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func reportFields() Fields {
	cpuPercent, _ := cpu.Percent(0, false)
	netStats, _ := gnet.IOCounters(false)

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	var memoryMB int64
	if memStats, err := mem.VirtualMemory(); err == nil {
		memoryMB = int64(memStats.Used) / 1024 / 1024
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	counts := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		counts[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	return Fields{
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      memoryMB,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
		"components":     counts,
	}
}

func logReport(log *Log) {
	log.WithComponent("report").WithFields(reportFields()).Info("runtime report")
}

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SystemStats is the periodic status frame sent to chart clients and served
// on /api/stats.
type SystemStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	CPULoad1    float64 `json:"cpu_load_1"`
	CPUCores    int     `json:"cpu_cores"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`

	WSClients    int    `json:"ws_clients"`
	Seq          int64  `json:"seq"`
	SeriesPoints int    `json:"series_points"`
	Overlay      string `json:"overlay"`
	TS           string `json:"ts"`
}

// SessionInfo reports the chart side of a stats frame.
type SessionInfo func() (points int, overlay string)

type cpuSample struct {
	idle  uint64
	total uint64
}

// StatsCollector samples process and host usage. CPU percent is computed
// between consecutive calls.
type StatsCollector struct {
	start time.Time

	mu   sync.Mutex
	prev cpuSample
}

// NewStatsCollector measures uptime from start.
func NewStatsCollector(start time.Time) *StatsCollector {
	return &StatsCollector{start: start}
}

// Collect gathers a stats frame. /proc readings are zero where unavailable.
func (sc *StatsCollector) Collect() SystemStats {
	s := SystemStats{
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(sc.start).Seconds()),
		CPUCores:   runtime.NumCPU(),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	cur := readCPUSample()
	sc.mu.Lock()
	if sc.prev.total > 0 && cur.total > sc.prev.total {
		dTotal := float64(cur.total - sc.prev.total)
		dIdle := float64(cur.idle - sc.prev.idle)
		s.CPUPercent = (1.0 - dIdle/dTotal) * 100.0
	}
	sc.prev = cur
	sc.mu.Unlock()

	if b, err := os.ReadFile("/proc/loadavg"); err == nil {
		if fields := strings.Fields(string(b)); len(fields) > 0 {
			s.CPULoad1, _ = strconv.ParseFloat(fields[0], 64)
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.SysMB = float64(ms.Sys) / 1024 / 1024
	s.GCRuns = ms.NumGC
	return s
}

func readCPUSample() cpuSample {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuSample{}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			break
		}
		var total, idle uint64
		for i := 1; i < len(fields); i++ {
			v, _ := strconv.ParseUint(fields[i], 10, 64)
			total += v
			if i == 4 {
				idle = v
			}
		}
		return cpuSample{idle: idle, total: total}
	}
	return cpuSample{}
}

// Stats fills the hub and session fields of a collected frame.
func (h *Hub) Stats(sc *StatsCollector, info SessionInfo) SystemStats {
	s := sc.Collect()
	s.WSClients = h.ClientCount()
	s.Seq = h.Seq()
	if info != nil {
		s.SeriesPoints, s.Overlay = info()
	}
	return s
}

// StartStatsBroadcast sends a stats frame to every client each interval
// until ctx is cancelled.
func (h *Hub) StartStatsBroadcast(ctx context.Context, sc *StatsCollector, info SessionInfo, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":  "stats",
				"stats": h.Stats(sc, info),
			})
			h.sendAll(envelope)
		}
	}
}

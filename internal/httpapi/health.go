package httpapi

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startupTime = time.Now()

// handleHealth reports process uptime and host resource pressure, sampling
// cpu/mem without blocking the request for more than a tick.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(50*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	memPercent := 0.0
	if err == nil {
		memPercent = memStat.UsedPercent
	}

	writeJSON(s.log, w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptime_sec":   time.Since(startupTime).Seconds(),
		"cpu_pct":      cpuPercent[0],
		"mem_used_pct": memPercent,
	})
}

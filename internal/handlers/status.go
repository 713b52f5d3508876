package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"sportarr/internal/database/models"
)

var startTime = time.Now()

type systemStatus struct {
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	HostUptime    uint64  `json:"host_uptime_seconds,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryPercent float64 `json:"memory_percent,omitempty"`
	DiskPercent   float64 `json:"disk_percent,omitempty"`

	Queue struct {
		Total       int `json:"total"`
		Queued      int `json:"queued"`
		Downloading int `json:"downloading"`
		Completed   int `json:"completed"`
		Failed      int `json:"failed"`
		Missing     int `json:"missing"`
	} `json:"queue"`
}

// GetSystemStatus reports process and host health plus queue counters.
// Host metric failures are non-fatal; the field just stays zero.
func (h *APIHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := systemStatus{
		Version:       "1.0.0",
		GoVersion:     runtime.Version(),
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}

	if up, err := host.Uptime(); err == nil {
		status.HostUptime = up
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		status.DiskPercent = du.UsedPercent
	}

	downloads, err := h.manager.TrackedRepo.GetAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch queue counters")
		return
	}
	status.Queue.Total = len(downloads)
	for _, td := range downloads {
		switch td.State {
		case models.StateQueued:
			status.Queue.Queued++
		case models.StateDownloading:
			status.Queue.Downloading++
		case models.StateCompleted:
			status.Queue.Completed++
		case models.StateFailed:
			status.Queue.Failed++
		case models.StateMissing:
			status.Queue.Missing++
		}
	}

	respondJSON(w, http.StatusOK, status)
}

// Package sysinfo describes the host a measurement was taken on.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Host is the context attached to every report.
type Host struct {
	Hostname      string `json:"hostname" yaml:"hostname"`
	OS            string `json:"os" yaml:"os"`
	Platform      string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Arch          string `json:"arch" yaml:"arch"`
	CPUModel      string `json:"cpu_model" yaml:"cpu_model"`
	CPUThreads    int    `json:"cpu_threads" yaml:"cpu_threads"`
	RAMTotalBytes uint64 `json:"ram_total_bytes" yaml:"ram_total_bytes"`
}

// Detect gathers host details. Every lookup falls back to what the Go
// runtime knows, so Detect never fails outright.
func Detect(ctx context.Context) Host {
	h := Host{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUModel:   "Unknown",
		CPUThreads: runtime.NumCPU(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		h.Hostname = info.Hostname
		h.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	}
	if h.Hostname == "" {
		h.Hostname, _ = os.Hostname()
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		h.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		h.CPUThreads = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.RAMTotalBytes = vm.Total
	}
	return h
}

// FormatRAM renders a byte count in binary units, e.g. "15.5 GiB".
func FormatRAM(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTP"[exp])
}

// Rows returns the host as key/value pairs in display order.
func (h Host) Rows() [][]string {
	return [][]string{
		{"Hostname", h.Hostname},
		{"OS", h.OS},
		{"Platform", h.Platform},
		{"Arch", h.Arch},
		{"CPU", h.CPUModel},
		{"CPU threads", fmt.Sprintf("%d", h.CPUThreads)},
		{"RAM", FormatRAM(h.RAMTotalBytes)},
	}
}

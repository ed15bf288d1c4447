//go:build linux || darwin

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

func mustRegisterDiskMonitor(path string) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "zfind_disk_space_available_bytes",
		Help:        "Amount of free space disk space.",
		ConstLabels: prometheus.Labels{"path": path},
	}, func() float64 {
		var stat unix.Statfs_t
		_ = unix.Statfs(path, &stat)
		return float64(stat.Bavail * uint64(stat.Bsize))
	}))

	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "zfind_disk_space_total_bytes",
		Help:        "Amount of total disk space.",
		ConstLabels: prometheus.Labels{"path": path},
	}, func() float64 {
		var stat unix.Statfs_t
		_ = unix.Statfs(path, &stat)
		return float64(stat.Blocks * uint64(stat.Bsize))
	}))
}

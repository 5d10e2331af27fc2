package crawlers

import (
	"runtime"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// 内存压力等级
const (
	MemoryPressureLow      = "low"
	MemoryPressureMedium   = "medium"
	MemoryPressureHigh     = "high"
	MemoryPressureCritical = "critical"
)

// SampleResources 采样系统内存、CPU和当前进程的堆使用
// 采样失败的字段保持零值
func SampleResources() *models.ResourceSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := &models.ResourceSnapshot{
		HeapAlloc:  ms.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
	}

	// 使用gopsutil获取真实系统内存
	if vmStat, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	} else {
		snap.TotalMemory = vmStat.Total
		snap.AvailableMemory = vmStat.Available
		snap.MemoryPercent = vmStat.UsedPercent
	}

	if percents, err := cpu.Percent(0, false); err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	return snap
}

// MemoryPressure 根据可用内存判断压力等级
//   - 可用内存 < 200MB: critical
//   - 可用内存 < 500MB: high
//   - 使用率 > 80%: medium
func MemoryPressure(snap *models.ResourceSnapshot) string {
	const mb = 1024 * 1024
	if snap == nil || snap.TotalMemory == 0 {
		return MemoryPressureLow
	}
	switch {
	case snap.AvailableMemory < 200*mb:
		return MemoryPressureCritical
	case snap.AvailableMemory < 500*mb:
		return MemoryPressureHigh
	case snap.MemoryPercent > 80:
		return MemoryPressureMedium
	default:
		return MemoryPressureLow
	}
}

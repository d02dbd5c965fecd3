package detector

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// determineThreadCount picks the interpreter thread count. Zero means auto:
// prefer physical cores on SMT systems, inference gains little from sibling
// threads.
func determineThreadCount(configured int) int {
	systemCPUs := runtime.NumCPU()

	if configured == 0 {
		physical := cpuid.CPU.PhysicalCores
		if physical > 0 && physical < systemCPUs {
			return physical
		}
		return systemCPUs
	}

	if configured > systemCPUs {
		return systemCPUs
	}
	return configured
}

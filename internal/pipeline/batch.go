package pipeline

// Batch sizing mirrors the classifier's memory profile: a fixed model
// footprint plus a per-image cost, fitted into a fraction of the configured
// memory budget. Bounded batches also bound how long a cancellation request
// can go unobserved.

const (
	gpuBaseMemoryMB          = 100
	gpuPerImageMB            = 2.5
	gpuBudgetFraction        = 0.6
	cpuBaseMemoryMB          = 50
	cpuPerImageMB            = 5
	cpuBudgetFraction        = 0.3
	minGPUBatch, maxGPUBatch = 8, 128
	minCPUBatch, maxCPUBatch = 4, 32
)

// ClassifierBatchSize picks the frame batch size for the classifier from the
// available memory budgets (MB) and whether the accelerator is in use.
func ClassifierBatchSize(gpuMemoryMB, systemMemoryMB int, useGPU bool) int {
	if useGPU && gpuMemoryMB > 0 {
		available := float64(gpuMemoryMB) * gpuBudgetFraction
		size := int((available - gpuBaseMemoryMB) / gpuPerImageMB)
		return clamp(size, minGPUBatch, maxGPUBatch)
	}

	available := float64(systemMemoryMB) * cpuBudgetFraction
	size := int((available - cpuBaseMemoryMB) / cpuPerImageMB)
	return clamp(size, minCPUBatch, maxCPUBatch)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

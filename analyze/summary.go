package analyze

import (
	"context"
	"sort"

	"github.com/GindaChen/nsys-ai/trace"
)

// KernelStat is one kernel name aggregated over its executions.
type KernelStat struct {
	Name  string
	Count int
	Total trace.Time
	Pct   float64
}

// StreamStat aggregates one GPU stream.
type StreamStat struct {
	Stream  int64
	Kernels int
	Total   trace.Time
}

// DeviceSummary is a per-device overview of a window.
type DeviceSummary struct {
	Device      int64
	Span        trace.Time
	Busy        trace.Time
	Idle        trace.Time
	Utilization float64
	KernelCount int
	TopKernels  []KernelStat
	Streams     []StreamStat
}

const topKernelCount = 10

// Summarize aggregates kernel statistics for one device and window:
// top kernels by total duration, per-stream totals, and idle gaps
// where no kernel was active. No kernels yields a zero summary.
func Summarize(ctx context.Context, src EventSource, device int64, window trace.TimeRange) (DeviceSummary, error) {
	kernels, err := src.Kernels(ctx, device, window)
	if err != nil || len(kernels) == 0 {
		return DeviceSummary{Device: device}, err
	}

	summary := DeviceSummary{Device: device, KernelCount: len(kernels)}

	span := trace.InvalidRange
	byName := make(map[string]*KernelStat)
	byStream := make(map[int64]*StreamStat)
	for _, k := range kernels {
		span = span.Expand(k.TimeRange)
		summary.Busy += k.Duration()

		stat, ok := byName[k.Name]
		if !ok {
			stat = &KernelStat{Name: k.Name}
			byName[k.Name] = stat
		}
		stat.Count++
		stat.Total += k.Duration()

		stream, ok := byStream[k.Stream]
		if !ok {
			stream = &StreamStat{Stream: k.Stream}
			byStream[k.Stream] = stream
		}
		stream.Kernels++
		stream.Total += k.Duration()
	}
	summary.Span = span.Duration()

	// Kernels arrive sorted by start; walk the frontier for idle gaps.
	frontier := kernels[0].Finish
	for _, k := range kernels[1:] {
		if k.Start > frontier {
			summary.Idle += k.Start - frontier
		}
		frontier = frontier.Max(k.Finish)
	}
	if summary.Span > 0 {
		summary.Utilization = 100 * float64(summary.Busy) / float64(summary.Span)
	}

	for _, stat := range byName {
		if summary.Busy > 0 {
			stat.Pct = 100 * float64(stat.Total) / float64(summary.Busy)
		}
		summary.TopKernels = append(summary.TopKernels, *stat)
	}
	sort.SliceStable(summary.TopKernels, func(i, k int) bool {
		return summary.TopKernels[i].Total > summary.TopKernels[k].Total
	})
	if len(summary.TopKernels) > topKernelCount {
		summary.TopKernels = summary.TopKernels[:topKernelCount]
	}

	for _, stream := range byStream {
		summary.Streams = append(summary.Streams, *stream)
	}
	sort.Slice(summary.Streams, func(i, k int) bool {
		return summary.Streams[i].Stream < summary.Streams[k].Stream
	})
	return summary, nil
}

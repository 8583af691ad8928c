package tef

import (
	"context"
	"fmt"
	"sort"

	"github.com/GindaChen/nsys-ai/analyze"
	"github.com/GindaChen/nsys-ai/trace"
)

// streamNames labels the stream ids that CUDA conventionally assigns
// in multi-GPU training runs.
var streamNames = map[int64]string{
	21: "Compute",
	56: "NCCL",
}

// scopeTrackBase offsets annotation-depth track ids away from stream
// track ids.
const scopeTrackBase = 10

// Convert renders one device's kernels and projected annotations as
// trace events: one track per GPU stream, one track per annotation
// nesting level, plus metadata events naming the tracks. Timestamps
// are rebased to the device's first kernel and converted to
// microseconds.
func Convert(ctx context.Context, src analyze.EventSource, device int64, window trace.TimeRange) (File, error) {
	kmap, err := src.KernelMap(ctx, device)
	if err != nil || len(kmap) == 0 {
		return File{}, err
	}

	base := trace.Time(1<<63 - 1)
	for _, k := range kmap {
		base = base.Min(k.Start)
	}

	kernels, err := src.Kernels(ctx, device, window)
	if err != nil {
		return File{}, err
	}

	var events []Event
	streams := make(map[int64]struct{})
	for _, k := range kernels {
		events = append(events, Event{
			Name: k.Name, Category: "gpu_kernel", Phase: Complete,
			Timestamp: micros(k.Start - base),
			Duration:  micros(k.Duration()),
			ProcessID: device, ThreadID: k.Stream,
			ColorName: "thread_state_runnable",
		})
		streams[k.Stream] = struct{}{}
	}

	projected, err := analyze.Project(ctx, src, device, window)
	if err != nil {
		return File{}, err
	}
	maxDepth := 0
	for _, p := range projected {
		if p.Projected {
			events = append(events, Event{
				Name: p.Name, Category: "annotation_projected", Phase: Complete,
				Timestamp: micros(p.Start - base),
				Duration:  micros(p.Duration()),
				ProcessID: device, ThreadID: scopeTrackBase + int64(p.Depth),
				ColorName: "good",
			})
		}
		if p.Depth > maxDepth {
			maxDepth = p.Depth
		}
	}

	events = append(events, Event{
		Name: "process_name", Phase: Metadata, ProcessID: device,
		Args: map[string]any{"name": fmt.Sprintf("GPU %d", device)},
	})
	for depth := 0; depth <= maxDepth; depth++ {
		track := scopeTrackBase + int64(depth)
		events = append(events,
			Event{
				Name: "thread_name", Phase: Metadata,
				ProcessID: device, ThreadID: track,
				Args: map[string]any{"name": fmt.Sprintf("Annotations Lvl %d", depth)},
			},
			Event{
				Name: "thread_sort_index", Phase: Metadata,
				ProcessID: device, ThreadID: track,
				Args: map[string]any{"sort_index": track},
			})
	}
	for _, stream := range sortedStreams(streams) {
		label, ok := streamNames[stream]
		if !ok {
			label = "Aux"
		}
		events = append(events,
			Event{
				Name: "thread_name", Phase: Metadata,
				ProcessID: device, ThreadID: stream,
				Args: map[string]any{"name": fmt.Sprintf("Stream %d (%s)", stream, label)},
			},
			Event{
				Name: "thread_sort_index", Phase: Metadata,
				ProcessID: device, ThreadID: stream,
				Args: map[string]any{"sort_index": 50 + stream},
			})
	}

	return File{TraceEvents: events, DisplayTimeUnit: "ms"}, nil
}

func micros(t trace.Time) float64 { return float64(t) / 1e3 }

func sortedStreams(set map[int64]struct{}) []int64 {
	streams := make([]int64, 0, len(set))
	for stream := range set {
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, k int) bool { return streams[i] < streams[k] })
	return streams
}

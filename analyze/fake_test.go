package analyze

import (
	"context"
	"sort"

	"github.com/GindaChen/nsys-ai/trace"
)

// fakeSource serves hand-built events with the same window semantics
// as the sqlite-backed profile: inclusive bounds, kernels and launches
// fully contained, scopes filtered by start time.
type fakeSource struct {
	kernels  []trace.KernelEvent
	launches []trace.LaunchCall
	scopes   []trace.AnnotationRange
}

func (f *fakeSource) Kernels(_ context.Context, device int64, window trace.TimeRange) ([]trace.KernelEvent, error) {
	var out []trace.KernelEvent
	for _, k := range f.kernels {
		if k.Device == device && window.Contains(k.TimeRange) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeRange.Less(out[j].TimeRange) })
	return out, nil
}

func (f *fakeSource) KernelMap(_ context.Context, device int64) (map[int64]trace.KernelEvent, error) {
	kmap := make(map[int64]trace.KernelEvent)
	for _, k := range f.kernels {
		if k.Device == device {
			kmap[k.Correlation] = k
		}
	}
	return kmap, nil
}

func (f *fakeSource) LaunchThreads(ctx context.Context, device int64) ([]int64, error) {
	kmap, _ := f.KernelMap(ctx, device)
	seen := make(map[int64]struct{})
	var threads []int64
	for _, call := range f.launches {
		if _, ok := kmap[call.Correlation]; !ok {
			continue
		}
		if _, dup := seen[call.Thread]; !dup {
			seen[call.Thread] = struct{}{}
			threads = append(threads, call.Thread)
		}
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i] < threads[j] })
	return threads, nil
}

func (f *fakeSource) Launches(_ context.Context, threads []int64, window trace.TimeRange) (map[int64][]trace.LaunchCall, error) {
	want := make(map[int64]struct{}, len(threads))
	for _, tid := range threads {
		want[tid] = struct{}{}
	}
	index := make(map[int64][]trace.LaunchCall)
	for _, call := range f.launches {
		if _, ok := want[call.Thread]; ok && window.Contains(call.TimeRange) {
			index[call.Thread] = append(index[call.Thread], call)
		}
	}
	for tid := range index {
		calls := index[tid]
		sort.Slice(calls, func(i, j int) bool { return calls[i].TimeRange.Less(calls[j].TimeRange) })
	}
	return index, nil
}

func (f *fakeSource) Scopes(_ context.Context, threads []int64, window trace.TimeRange) ([]trace.AnnotationRange, error) {
	want := make(map[int64]struct{}, len(threads))
	for _, tid := range threads {
		want[tid] = struct{}{}
	}
	var out []trace.AnnotationRange
	for _, s := range f.scopes {
		if _, ok := want[s.Thread]; !ok {
			continue
		}
		if s.Text != "" && s.Finish > s.Start && s.Start >= window.Start && s.Start <= window.Finish {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeRange.Less(out[j].TimeRange) })
	return out, nil
}

func kernel(device, stream, correlation int64, name string, start, finish trace.Time) trace.KernelEvent {
	return trace.KernelEvent{
		Name: name, Device: device, Stream: stream, Correlation: correlation,
		TimeRange: trace.TimeRange{Start: start, Finish: finish},
	}
}

func launch(thread, correlation int64, start, finish trace.Time) trace.LaunchCall {
	return trace.LaunchCall{
		Thread: thread, Correlation: correlation,
		TimeRange: trace.TimeRange{Start: start, Finish: finish},
	}
}

func scope(thread int64, text string, start, finish trace.Time) trace.AnnotationRange {
	return trace.AnnotationRange{
		Text: text, Thread: thread,
		TimeRange: trace.TimeRange{Start: start, Finish: finish},
	}
}

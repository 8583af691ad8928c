// Package analyze reconstructs causal structure from GPU traces:
// which annotated region of code produced which kernels, how compute
// overlaps communication, and where the training loop iterates.
//
// Every function here is a pure read over an EventSource: no state is
// shared between calls, and empty inputs yield empty outputs rather
// than errors.
package analyze

import (
	"context"

	"github.com/GindaChen/nsys-ai/trace"
)

// EventSource is the query surface the engine consumes. It is
// satisfied by *profile.Profile; tests substitute in-memory fixtures.
type EventSource interface {
	// Kernels returns kernels on a device inside the window, by start.
	Kernels(ctx context.Context, device int64, window trace.TimeRange) ([]trace.KernelEvent, error)
	// KernelMap returns correlation id -> kernel for the whole device,
	// unfiltered by window.
	KernelMap(ctx context.Context, device int64) (map[int64]trace.KernelEvent, error)
	// LaunchThreads returns CPU threads with at least one correlated
	// launch on the device.
	LaunchThreads(ctx context.Context, device int64) ([]int64, error)
	// Launches returns launch calls per thread inside the window, by start.
	Launches(ctx context.Context, threads []int64, window trace.TimeRange) (map[int64][]trace.LaunchCall, error)
	// Scopes returns annotation ranges starting inside the window, by start.
	Scopes(ctx context.Context, threads []int64, window trace.TimeRange) ([]trace.AnnotationRange, error)
}

// Scopes that open before the output window can still launch kernels
// inside it, so scope and launch queries look back before the window
// start, and launch queries look a little past its end.
const (
	DefaultLookBack    = trace.Time(5e9)
	DefaultLookForward = trace.Time(2e9)
)

// correlate resolves every launch call lying inside the scope's CPU
// interval to a kernel on the target device. Launches must be sorted
// by start.
func correlate(launches []trace.LaunchCall, scope trace.TimeRange, kmap map[int64]trace.KernelEvent) []trace.KernelEvent {
	var kernels []trace.KernelEvent
	for _, call := range launches {
		if call.Start > scope.Finish {
			break
		}
		if call.Start >= scope.Start && call.Finish <= scope.Finish {
			if k, ok := kmap[call.Correlation]; ok {
				kernels = append(kernels, k)
			}
		}
	}
	return kernels
}

// gpuBounds returns the projected interval covering the kernels.
func gpuBounds(kernels []trace.KernelEvent) trace.TimeRange {
	bounds := trace.InvalidRange
	for _, k := range kernels {
		bounds = bounds.Expand(k.TimeRange)
	}
	return bounds
}

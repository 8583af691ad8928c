package analyze

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/GindaChen/nsys-ai/logutil"
	"github.com/GindaChen/nsys-ai/trace"
)

// PrimaryThread picks the CPU thread with the most launch calls whose
// correlated kernel ran on the device. Ties go to the numerically
// smallest thread id so tree structure stays stable across runs. The
// second return is false when the device has no correlated launches.
func PrimaryThread(ctx context.Context, src EventSource, device int64) (int64, bool, error) {
	threads, err := src.LaunchThreads(ctx, device)
	if err != nil {
		return 0, false, err
	}
	if len(threads) == 0 {
		return 0, false, nil
	}
	kmap, err := src.KernelMap(ctx, device)
	if err != nil {
		return 0, false, err
	}
	launches, err := src.Launches(ctx, threads, trace.EntireTrace)
	if err != nil {
		return 0, false, err
	}

	sort.Slice(threads, func(i, k int) bool { return threads[i] < threads[k] })

	var best int64
	bestCount := 0
	for _, tid := range threads { // ascending, so ties keep the smallest id
		count := 0
		for _, call := range launches[tid] {
			if _, ok := kmap[call.Correlation]; ok {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = tid, count
		}
	}
	if bestCount == 0 {
		return 0, false, nil
	}
	return best, true, nil
}

// ProjectedScope is one annotation mapped onto the GPU timeline. When
// Projected is true the range is [min kernel start, max kernel end]
// over its correlated kernels; otherwise it is the CPU range of a
// scope that launched nothing (host-only work).
type ProjectedScope struct {
	Name string
	trace.TimeRange
	Depth     int
	Projected bool
}

// depthStacks approximates per-thread call-stack depth from scope
// start/end times alone. One instance per projection call; never
// shared across devices or invocations.
type depthStacks struct {
	open       map[int64][]trace.Time
	violations int
}

func newDepthStacks() *depthStacks {
	return &depthStacks{open: make(map[int64][]trace.Time)}
}

// depth pops scopes that have definitely closed, records the new
// scope's end, and keeps the stack ordered by descending end so scopes
// that close out of strict LIFO order still approximate a stack.
func (s *depthStacks) depth(tid int64, scope trace.TimeRange) int {
	stk := s.open[tid]
	for len(stk) > 0 && stk[len(stk)-1] <= scope.Start {
		stk = stk[:len(stk)-1]
	}
	depth := len(stk)
	if len(stk) > 0 && stk[len(stk)-1] < scope.Finish {
		// Partial overlap: the enclosing scope ends before this one.
		s.violations++
	}
	stk = append(stk, scope.Finish)
	sort.Slice(stk, func(i, k int) bool { return stk[i] > stk[k] })
	s.open[tid] = stk
	return depth
}

// Project maps every annotation scope that influences the window onto
// the device's GPU timeline, across all launching threads.
func Project(ctx context.Context, src EventSource, device int64, window trace.TimeRange) ([]ProjectedScope, error) {
	kmap, err := src.KernelMap(ctx, device)
	if err != nil {
		return nil, err
	}
	if len(kmap) == 0 {
		return nil, nil
	}

	threads, err := src.LaunchThreads(ctx, device)
	if err != nil {
		return nil, err
	}
	launches, err := src.Launches(ctx, threads, window.Pad(DefaultLookBack, DefaultLookForward))
	if err != nil {
		return nil, err
	}
	scopes, err := src.Scopes(ctx, threads, window.Pad(DefaultLookBack, 0))
	if err != nil {
		return nil, err
	}

	stacks := newDepthStacks()
	var projected []ProjectedScope
	for _, scope := range scopes {
		depth := stacks.depth(scope.Thread, scope.TimeRange)

		kernels := correlate(launches[scope.Thread], scope.TimeRange, kmap)
		if len(kernels) > 0 {
			bounds := gpuBounds(kernels)
			if bounds.Intersects(window) {
				projected = append(projected, ProjectedScope{
					Name: scope.Text, TimeRange: bounds,
					Depth: depth, Projected: true,
				})
			}
		} else if scope.TimeRange.Intersects(window) {
			projected = append(projected, ProjectedScope{
				Name: scope.Text, TimeRange: scope.TimeRange,
				Depth: depth, Projected: false,
			})
		}
	}

	if stacks.violations > 0 {
		logutil.GetLogger().Warn("annotation scopes overlap partially; nesting depths are approximate",
			zap.Int64("device", device),
			zap.Int("violations", stacks.violations))
	}
	return projected, nil
}

package analyze

import (
	"context"
	"sort"
	"strings"

	"github.com/GindaChen/nsys-ai/trace"
)

// CollectiveType classifies a kernel by name.
type CollectiveType int

const (
	Compute CollectiveType = iota
	AllGather
	ReduceScatter
	AllReduce
	Broadcast
	SendRecv
	Reduce
	CollectiveOther
)

var collectiveNames = map[CollectiveType]string{
	Compute:         "compute",
	AllGather:       "allgather",
	ReduceScatter:   "reducescatter",
	AllReduce:       "allreduce",
	Broadcast:       "broadcast",
	SendRecv:        "sendrecv",
	Reduce:          "reduce",
	CollectiveOther: "other",
}

func (t CollectiveType) String() string { return collectiveNames[t] }

// IsCollective reports whether the kernel is communication.
func (t CollectiveType) IsCollective() bool { return t != Compute }

// collectivePatterns is checked in order. "Reduce" is a substring of
// "AllReduce" and "ReduceScatter", so the more specific patterns must
// come first; the ordering is part of the contract.
var collectivePatterns = []struct {
	pattern string
	ctype   CollectiveType
}{
	{"allgather", AllGather},
	{"reducescatter", ReduceScatter},
	{"allreduce", AllReduce},
	{"broadcast", Broadcast},
	{"sendrecv", SendRecv},
	{"reduce", Reduce},
}

// Classify tags a kernel name as compute or a collective type. Any
// name containing "nccl" is a collective; the first matching pattern
// wins, and an unrecognized collective is CollectiveOther.
func Classify(name string) CollectiveType {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, "nccl") {
		return Compute
	}
	for _, p := range collectivePatterns {
		if strings.Contains(lower, p.pattern) {
			return p.ctype
		}
	}
	return CollectiveOther
}

// OverlapReport partitions a device's kernel span into time where only
// compute ran, only communication ran, both ran, and neither ran.
type OverlapReport struct {
	ComputeOnly trace.Time
	CommOnly    trace.Time
	Overlap     trace.Time
	Idle        trace.Time
	Total       trace.Time

	ComputeKernels    int
	CollectiveKernels int
	OverlapPct        float64
}

// Overlap quantifies compute/communication overlap for a device and
// window. No kernels yields a zero report.
func Overlap(ctx context.Context, src EventSource, device int64, window trace.TimeRange) (OverlapReport, error) {
	kernels, err := src.Kernels(ctx, device, window)
	if err != nil || len(kernels) == 0 {
		return OverlapReport{}, err
	}

	var report OverlapReport
	var compute, comm []trace.TimeRange
	span := trace.InvalidRange
	for _, k := range kernels {
		span = span.Expand(k.TimeRange)
		if Classify(k.Name).IsCollective() {
			comm = append(comm, k.TimeRange)
			report.CollectiveKernels++
		} else {
			compute = append(compute, k.TimeRange)
			report.ComputeKernels++
		}
	}

	computeMerged := trace.Merge(compute)
	commMerged := trace.Merge(comm)
	computeCovered := trace.Covered(computeMerged)
	commCovered := trace.Covered(commMerged)

	report.Total = span.Duration()
	report.Overlap = trace.Intersection(computeMerged, commMerged)
	report.ComputeOnly = clamp(computeCovered - report.Overlap)
	report.CommOnly = clamp(commCovered - report.Overlap)
	report.Idle = clamp(report.Total - report.ComputeOnly - report.CommOnly - report.Overlap)
	if commCovered > 0 {
		report.OverlapPct = 100 * float64(report.Overlap) / float64(commCovered)
	}
	return report, nil
}

func clamp(t trace.Time) trace.Time {
	if t < 0 {
		return 0
	}
	return t
}

// CollectiveStat summarizes one collective type's kernels.
type CollectiveStat struct {
	Type  CollectiveType
	Count int
	Total trace.Time
	Avg   trace.Time
	Min   trace.Time
	Max   trace.Time
	Pct   float64
}

// CollectiveBreakdown groups collective kernels by type, sorted by
// descending total time.
func CollectiveBreakdown(ctx context.Context, src EventSource, device int64, window trace.TimeRange) ([]CollectiveStat, error) {
	kernels, err := src.Kernels(ctx, device, window)
	if err != nil {
		return nil, err
	}

	byType := make(map[CollectiveType]*CollectiveStat)
	var grandTotal trace.Time
	for _, k := range kernels {
		ctype := Classify(k.Name)
		if !ctype.IsCollective() {
			continue
		}
		dur := k.Duration()
		grandTotal += dur

		stat, ok := byType[ctype]
		if !ok {
			stat = &CollectiveStat{Type: ctype, Min: dur, Max: dur}
			byType[ctype] = stat
		}
		stat.Count++
		stat.Total += dur
		stat.Min = stat.Min.Min(dur)
		stat.Max = stat.Max.Max(dur)
	}
	if len(byType) == 0 {
		return nil, nil
	}

	stats := make([]CollectiveStat, 0, len(byType))
	for _, stat := range byType {
		stat.Avg = stat.Total / trace.Time(stat.Count)
		if grandTotal > 0 {
			stat.Pct = 100 * float64(stat.Total) / float64(grandTotal)
		}
		stats = append(stats, *stat)
	}
	sort.SliceStable(stats, func(i, k int) bool { return stats[i].Total > stats[k].Total })
	return stats, nil
}

// Iteration is one detected training-loop repetition.
type Iteration struct {
	Index int
	GPU   trace.TimeRange
	// ComputeBusy sums individual kernel durations without merging,
	// so it can exceed the wall-clock span when streams overlap.
	ComputeBusy     trace.Time
	KernelCount     int
	CollectiveCount int
}

// DefaultIterationMarker is the annotation text that by convention
// wraps each training-loop iteration.
const DefaultIterationMarker = "sample_0"

// DetectIterations finds primary-thread scopes containing the marker
// text and treats each as one iteration. Overlapping or nested marker
// occurrences are discarded by greedy earliest-start selection, so
// only top-level repeats survive. Iterations whose launches resolve to
// no kernels are dropped.
func DetectIterations(ctx context.Context, src EventSource, device int64, window trace.TimeRange, marker string) ([]Iteration, error) {
	kmap, err := src.KernelMap(ctx, device)
	if err != nil || len(kmap) == 0 {
		return nil, err
	}
	primary, ok, err := PrimaryThread(ctx, src, device)
	if err != nil || !ok {
		return nil, err
	}

	scopes, err := src.Scopes(ctx, []int64{primary}, window.Pad(DefaultLookBack, 0))
	if err != nil {
		return nil, err
	}

	var markers []trace.TimeRange
	lastFinish := trace.Time(-1 << 63)
	for _, scope := range scopes {
		if !strings.Contains(scope.Text, marker) {
			continue
		}
		if scope.Start >= lastFinish {
			markers = append(markers, scope.TimeRange)
			lastFinish = scope.Finish
		}
	}
	if len(markers) == 0 {
		return nil, nil
	}

	launches, err := src.Launches(ctx, []int64{primary}, trace.EntireTrace)
	if err != nil {
		return nil, err
	}

	var iterations []Iteration
	for i, m := range markers {
		kernels := correlate(launches[primary], m, kmap)
		if len(kernels) == 0 {
			continue
		}

		iter := Iteration{Index: i, GPU: gpuBounds(kernels), KernelCount: len(kernels)}
		for _, k := range kernels {
			iter.ComputeBusy += k.Duration()
			if Classify(k.Name).IsCollective() {
				iter.CollectiveCount++
			}
		}
		iterations = append(iterations, iter)
	}
	return iterations, nil
}

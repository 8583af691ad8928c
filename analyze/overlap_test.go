package analyze

import (
	"context"
	"testing"

	"github.com/GindaChen/nsys-ai/trace"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		expected CollectiveType
	}{
		{"ampere_sgemm_128x64_tn", Compute},
		{"flash_fwd_kernel", Compute},
		// AllReduce must win over its Reduce substring.
		{"ncclAllReduce_sum", AllReduce},
		{"ncclDevKernel_ReduceScatter_Sum_f32", ReduceScatter},
		{"ncclDevKernel_AllGather_RING_LL", AllGather},
		{"ncclBroadcast", Broadcast},
		{"ncclDevKernel_SendRecv", SendRecv},
		{"ncclKernel_Reduce_Sum", Reduce},
		{"NCCLALLGATHER", AllGather},
		{"ncclSomethingNew", CollectiveOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.expected {
			t.Errorf("Classify(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}

	if Compute.IsCollective() {
		t.Error("compute must not be collective")
	}
	if !CollectiveOther.IsCollective() {
		t.Error("unrecognized nccl kernels are still collective")
	}
}

func TestOverlap(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		kernels: []trace.KernelEvent{
			kernel(0, 21, 1, "gemm_a", 0, 10),
			kernel(0, 21, 2, "gemm_b", 10, 20),
			kernel(0, 21, 3, "gemm_c", 25, 30),
			kernel(0, 56, 4, "ncclAllReduce_sum", 5, 15),
		},
	}

	report, err := Overlap(ctx, src, 0, trace.TimeRange{Start: 0, Finish: 100})
	if err != nil {
		t.Fatal(err)
	}

	// compute merged = [0,20],[25,30]; collective merged = [5,15];
	// overlap = 10, compute only = 15, comm only = 0, idle = 5.
	if report.Total != 30 {
		t.Errorf("Total = %d, want 30", report.Total)
	}
	if report.Overlap != 10 {
		t.Errorf("Overlap = %d, want 10", report.Overlap)
	}
	if report.ComputeOnly != 15 {
		t.Errorf("ComputeOnly = %d, want 15", report.ComputeOnly)
	}
	if report.CommOnly != 0 {
		t.Errorf("CommOnly = %d, want 0", report.CommOnly)
	}
	if report.Idle != 5 {
		t.Errorf("Idle = %d, want 5", report.Idle)
	}
	if report.ComputeKernels != 3 || report.CollectiveKernels != 1 {
		t.Errorf("kernel counts = %d/%d, want 3/1", report.ComputeKernels, report.CollectiveKernels)
	}
	if report.OverlapPct != 100 {
		t.Errorf("OverlapPct = %v, want 100", report.OverlapPct)
	}

	// Partition identity after clamping.
	sum := report.ComputeOnly + report.CommOnly + report.Overlap + report.Idle
	if sum != report.Total {
		t.Errorf("partition sums to %d, want %d", sum, report.Total)
	}
}

func TestOverlapEmpty(t *testing.T) {
	report, err := Overlap(context.Background(), &fakeSource{}, 0, trace.TimeRange{Start: 0, Finish: 100})
	if err != nil {
		t.Fatal(err)
	}
	if report != (OverlapReport{}) {
		t.Errorf("empty device produced %+v, want zero report", report)
	}
}

func TestCollectiveBreakdown(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		kernels: []trace.KernelEvent{
			kernel(0, 21, 1, "gemm", 0, 100),
			kernel(0, 56, 2, "ncclAllReduce_sum", 0, 30),
			kernel(0, 56, 3, "ncclAllReduce_sum", 40, 50),
			kernel(0, 56, 4, "ncclDevKernel_AllGather", 60, 120),
		},
	}

	stats, err := CollectiveBreakdown(ctx, src, 0, trace.TimeRange{Start: 0, Finish: 200})
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d types, want 2", len(stats))
	}

	// AllGather has 60ns total, AllReduce 40ns; sorted by total descending.
	if stats[0].Type != AllGather || stats[0].Total != 60 || stats[0].Count != 1 {
		t.Errorf("stats[0] = %+v, want AllGather total=60 count=1", stats[0])
	}
	if stats[1].Type != AllReduce || stats[1].Total != 40 || stats[1].Count != 2 {
		t.Errorf("stats[1] = %+v, want AllReduce total=40 count=2", stats[1])
	}
	if stats[1].Min != 10 || stats[1].Max != 30 || stats[1].Avg != 20 {
		t.Errorf("AllReduce min/max/avg = %d/%d/%d, want 10/30/20",
			stats[1].Min, stats[1].Max, stats[1].Avg)
	}
	if stats[0].Pct != 60 || stats[1].Pct != 40 {
		t.Errorf("pcts = %v/%v, want 60/40", stats[0].Pct, stats[1].Pct)
	}
}

func TestDetectIterations(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		kernels: []trace.KernelEvent{
			kernel(0, 21, 1, "gemm", 1000, 1100),
			kernel(0, 56, 2, "ncclAllReduce_sum", 1050, 1250),
			kernel(0, 21, 3, "gemm", 2000, 2100),
		},
		launches: []trace.LaunchCall{
			launch(7, 1, 110, 120),
			launch(7, 2, 140, 160),
			launch(7, 3, 310, 320),
		},
		scopes: []trace.AnnotationRange{
			scope(7, "sample_0 iteration", 100, 200),
			// Nested repeat of the marker; discarded by greedy selection.
			scope(7, "inner sample_0", 110, 190),
			scope(7, "sample_0 iteration", 300, 400),
			// Marker with no correlated kernels; dropped.
			scope(7, "sample_0 warmup", 500, 600),
		},
	}

	iterations, err := DetectIterations(ctx, src, 0, trace.TimeRange{Start: 0, Finish: 5000}, "sample_0")
	if err != nil {
		t.Fatal(err)
	}
	if len(iterations) != 2 {
		t.Fatalf("got %d iterations, want 2", len(iterations))
	}

	first := iterations[0]
	if first.GPU != (trace.TimeRange{Start: 1000, Finish: 1250}) {
		t.Errorf("first GPU bounds = %+v, want [1000,1250]", first.GPU)
	}
	// Busy time sums kernel durations without merging: 100 + 200.
	if first.ComputeBusy != 300 {
		t.Errorf("first ComputeBusy = %d, want 300", first.ComputeBusy)
	}
	if first.KernelCount != 2 || first.CollectiveCount != 1 {
		t.Errorf("first counts = %d/%d, want 2/1", first.KernelCount, first.CollectiveCount)
	}

	second := iterations[1]
	if second.GPU != (trace.TimeRange{Start: 2000, Finish: 2100}) {
		t.Errorf("second GPU bounds = %+v, want [2000,2100]", second.GPU)
	}
	if second.KernelCount != 1 || second.CollectiveCount != 0 {
		t.Errorf("second counts = %d/%d, want 1/0", second.KernelCount, second.CollectiveCount)
	}
}

func TestDetectIterationsNoMarker(t *testing.T) {
	src := &fakeSource{
		kernels:  []trace.KernelEvent{kernel(0, 21, 1, "gemm", 0, 10)},
		launches: []trace.LaunchCall{launch(1, 1, 0, 5)},
		scopes:   []trace.AnnotationRange{scope(1, "forward", 0, 10)},
	}
	iterations, err := DetectIterations(context.Background(), src, 0,
		trace.TimeRange{Start: 0, Finish: 100}, "sample_0")
	if err != nil {
		t.Fatal(err)
	}
	if len(iterations) != 0 {
		t.Errorf("got %d iterations, want none", len(iterations))
	}
}

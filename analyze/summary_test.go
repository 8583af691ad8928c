package analyze

import (
	"context"
	"testing"

	"github.com/GindaChen/nsys-ai/trace"
)

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		kernels: []trace.KernelEvent{
			kernel(0, 21, 1, "gemm", 0, 100),
			kernel(0, 21, 2, "gemm", 150, 250),
			kernel(0, 56, 3, "ncclAllReduce_sum", 200, 300),
		},
	}

	summary, err := Summarize(ctx, src, 0, trace.TimeRange{Start: 0, Finish: 1000})
	if err != nil {
		t.Fatal(err)
	}

	if summary.KernelCount != 3 {
		t.Errorf("KernelCount = %d, want 3", summary.KernelCount)
	}
	if summary.Span != 300 {
		t.Errorf("Span = %d, want 300", summary.Span)
	}
	if summary.Busy != 300 {
		t.Errorf("Busy = %d, want 300", summary.Busy)
	}
	// Single gap between 100 and 150.
	if summary.Idle != 50 {
		t.Errorf("Idle = %d, want 50", summary.Idle)
	}
	if summary.Utilization != 100 {
		t.Errorf("Utilization = %v, want 100", summary.Utilization)
	}

	if len(summary.TopKernels) != 2 {
		t.Fatalf("got %d kernel names, want 2", len(summary.TopKernels))
	}
	top := summary.TopKernels[0]
	if top.Name != "gemm" || top.Count != 2 || top.Total != 200 {
		t.Errorf("top kernel = %+v, want gemm x2 total=200", top)
	}

	if len(summary.Streams) != 2 {
		t.Fatalf("got %d streams, want 2", len(summary.Streams))
	}
	if summary.Streams[0].Stream != 21 || summary.Streams[0].Kernels != 2 {
		t.Errorf("streams[0] = %+v, want stream 21 with 2 kernels", summary.Streams[0])
	}
	if summary.Streams[1].Stream != 56 || summary.Streams[1].Total != 100 {
		t.Errorf("streams[1] = %+v, want stream 56 total=100", summary.Streams[1])
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary, err := Summarize(context.Background(), &fakeSource{}, 3,
		trace.TimeRange{Start: 0, Finish: 100})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Device != 3 || summary.KernelCount != 0 {
		t.Errorf("got %+v, want empty summary for device 3", summary)
	}
}

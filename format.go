package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/GindaChen/nsys-ai/analyze"
	"github.com/GindaChen/nsys-ai/profile"
	"github.com/GindaChen/nsys-ai/trace"
)

func formatMeta(w io.Writer, prof *profile.Profile) {
	meta := prof.Meta
	fmt.Fprintf(w, "%s\n", prof.Path)
	fmt.Fprintf(w, "  kernels: %d  annotations: %d\n", meta.KernelCount, meta.AnnotationCount)
	fmt.Fprintf(w, "  time range: %.3fs - %.3fs (%.1fms)\n",
		meta.TimeRange.Start.Seconds(), meta.TimeRange.Finish.Seconds(),
		meta.TimeRange.Duration().Millis())
	for _, device := range meta.Devices {
		info := meta.GPUs[device]
		name := info.Name
		if name == "" {
			name = "unknown GPU"
		}
		fmt.Fprintf(w, "  GPU %d: %s (%s) - %d SMs, %.1fGB, %d kernels, streams %v\n",
			device, name, info.PCIBus, info.SMCount,
			float64(info.MemoryBytes)/1e9, info.KernelCount, info.Streams)
	}
}

func formatSummary(w io.Writer, s analyze.DeviceSummary, info profile.GPUInfo) {
	if s.KernelCount == 0 {
		fmt.Fprintf(w, "GPU %d: no kernels found\n", s.Device)
		return
	}

	fmt.Fprintf(w, "GPU %d: %s (%s) - %d SMs, %.1fGB\n",
		s.Device, info.Name, info.PCIBus, info.SMCount, float64(info.MemoryBytes)/1e9)
	fmt.Fprintf(w, "  Span: %.1fms | Busy: %.1fms | Idle: %.1fms | Util: %.1f%%\n",
		s.Span.Millis(), s.Busy.Millis(), s.Idle.Millis(), s.Utilization)
	fmt.Fprintf(w, "  Kernels: %d\n\n", s.KernelCount)

	fmt.Fprintln(w, "  Top kernels:")
	for _, k := range s.TopKernels {
		fmt.Fprintf(w, "    %5.1f%%  %8.1fms  x%-4d  %s\n", k.Pct, k.Total.Millis(), k.Count, k.Name)
	}

	fmt.Fprintln(w, "\n  Streams:")
	for _, stream := range s.Streams {
		fmt.Fprintf(w, "    Stream %d: %d kernels, %.1fms\n",
			stream.Stream, stream.Kernels, stream.Total.Millis())
	}
}

func formatTree(w io.Writer, nodes []*trace.Node, indent int) {
	for _, node := range nodes {
		prefix := strings.Repeat("  ", indent)
		if node.Kind == trace.KindKernel {
			fmt.Fprintf(w, "%s- %s [stream %d]  (%.3fms)\n",
				prefix, node.Name, node.Stream, node.Duration().Millis())
		} else {
			fmt.Fprintf(w, "%s+ %s  (%.3fms)\n", prefix, node.Name, node.Duration().Millis())
		}
		formatTree(w, node.Children, indent+1)
	}
}

func formatConvergence(w io.Writer, report analyze.ConvergenceReport, targets []analyze.RefinementTarget) {
	fmt.Fprintln(w, "Convergence Report")
	fmt.Fprintf(w, "  Scopes:            %d\n", report.TotalScopes)
	fmt.Fprintf(w, "  Total kernels:     %d\n", report.TotalKernels)
	fmt.Fprintf(w, "  Converged:         %d (1 kernel -> 1 source location)\n", report.Converged)
	fmt.Fprintf(w, "  Unconverged:       %d (need finer scoping)\n", report.Unconverged)
	fmt.Fprintf(w, "  Mapped kernels:    %d (%.1f%%)\n", report.MappedKernels, report.CoveragePct)
	fmt.Fprintf(w, "  Unmapped kernels:  %d\n", report.UnmappedKernels)

	if len(targets) > 0 {
		fmt.Fprintln(w, "\nRefinement targets:")
		for _, t := range targets {
			note := ""
			if t.Mixed {
				note = "  (mixed: has both sub-scopes and uncovered kernels)"
			}
			fmt.Fprintf(w, "  %s  depth=%d  %.1fms  %d kernels%s\n",
				t.Name, t.Depth, t.Duration.Millis(), len(t.KernelNames), note)
		}
	}
}

func formatOverlap(w io.Writer, r analyze.OverlapReport) {
	if r.Total == 0 {
		fmt.Fprintln(w, "Overlap: no kernels")
		return
	}
	fmt.Fprintln(w, "Compute/Communication Overlap Analysis")
	fmt.Fprintf(w, "  Total span:    %.1fms\n", r.Total.Millis())
	fmt.Fprintf(w, "  Compute only:  %.1fms\n", r.ComputeOnly.Millis())
	fmt.Fprintf(w, "  Comm only:     %.1fms\n", r.CommOnly.Millis())
	fmt.Fprintf(w, "  Overlap:       %.1fms (%.1f%% of comm overlapped)\n", r.Overlap.Millis(), r.OverlapPct)
	fmt.Fprintf(w, "  Idle:          %.1fms\n", r.Idle.Millis())
	fmt.Fprintf(w, "  Kernels:       %d compute + %d collective\n", r.ComputeKernels, r.CollectiveKernels)
}

func formatCollectives(w io.Writer, stats []analyze.CollectiveStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No collectives found")
		return
	}
	fmt.Fprintln(w, "Collective Breakdown")
	for _, s := range stats {
		fmt.Fprintf(w, "  %-15s %5.1f%%  %8.1fms  x%-4d avg=%.1fms  [%.1f-%.1fms]\n",
			s.Type, s.Pct, s.Total.Millis(), s.Count,
			s.Avg.Millis(), s.Min.Millis(), s.Max.Millis())
	}
}

func formatIterations(w io.Writer, iterations []analyze.Iteration) {
	if len(iterations) == 0 {
		fmt.Fprintln(w, "No iterations detected")
		return
	}
	fmt.Fprintln(w, "Iteration Timings")
	var total trace.Time
	for _, it := range iterations {
		fmt.Fprintf(w, "  iter %2d  %8.1fms  (%d kernels, %d collective)  busy=%.1fms\n",
			it.Index, it.GPU.Duration().Millis(),
			it.KernelCount, it.CollectiveCount, it.ComputeBusy.Millis())
		total += it.GPU.Duration()
	}
	if len(iterations) > 1 {
		fmt.Fprintf(w, "\n  Average: %.1fms over %d iterations\n",
			total.Millis()/float64(len(iterations)), len(iterations))
	}
}

func formatKernelMatches(w io.Writer, matches []analyze.KernelMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	fmt.Fprintf(w, "Found %d result(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(w, "  %s  (%.3fms)  [GPU %d, stream %d]\n",
			m.Name, m.Duration().Millis(), m.Device, m.Stream)
	}
}

func formatScopeMatches(w io.Writer, matches []analyze.ScopeMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	fmt.Fprintf(w, "Found %d result(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(w, "  %s  (%.3fms)  [thread %d]\n",
			m.Text, m.Duration().Millis(), m.Thread)
	}
}

func formatHierarchyMatches(w io.Writer, matches []analyze.HierarchyMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	fmt.Fprintf(w, "Found %d result(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(w, "  %s  (%.3fms)  [stream %d]\n", m.Name, m.Duration().Millis(), m.Stream)
		fmt.Fprintf(w, "    path: %s\n", m.Path)
	}
}

package analyze

import (
	"math"
	"sort"

	"github.com/GindaChen/nsys-ai/trace"
)

// ConvergenceReport scores how close a tree is to the ideal of every
// leaf scope mapping to exactly one kernel.
type ConvergenceReport struct {
	TotalScopes     int
	Converged       int
	Unconverged     int
	MappedKernels   int
	UnmappedKernels int
	TotalKernels    int
	CoveragePct     float64
}

// RefinementTarget is a scope that needs finer-grained annotation to
// pin its kernels to single source locations.
type RefinementTarget struct {
	Name        string
	Depth       int
	Duration    trace.Time
	KernelNames []string
	// Mixed marks scopes that have both child scopes and direct
	// kernels the child scopes do not cover.
	Mixed bool
}

// Convergence walks a built tree and aggregates the report. A scope
// with no scope children is a leaf scope; with exactly one kernel it
// is converged, with more it is unconverged. Leaf scopes with zero
// kernels are annotations without GPU work and count neither way.
func Convergence(roots []*trace.Node) ConvergenceReport {
	var report ConvergenceReport
	convergenceWalk(roots, &report)

	report.TotalKernels = report.MappedKernels + report.UnmappedKernels
	if report.TotalKernels > 0 {
		pct := 100 * float64(report.MappedKernels) / float64(report.TotalKernels)
		report.CoveragePct = math.Round(pct*10) / 10
	}
	return report
}

func convergenceWalk(nodes []*trace.Node, report *ConvergenceReport) {
	for _, node := range nodes {
		if node.Kind != trace.KindScope {
			continue
		}
		report.TotalScopes++

		scopes, kernels := splitChildren(node)
		if len(scopes) == 0 {
			switch {
			case len(kernels) == 1:
				report.Converged++
				report.MappedKernels++
			case len(kernels) > 1:
				report.Unconverged++
				report.UnmappedKernels += len(kernels)
			}
		}
		convergenceWalk(scopes, report)
	}
}

// RefinementTargets lists scopes with more than one direct kernel:
// leaf scopes, plus mixed scopes whose direct kernels escaped every
// child scope. Sorted by descending kernel count, stable for ties.
func RefinementTargets(roots []*trace.Node) []RefinementTarget {
	var targets []RefinementTarget
	refinementWalk(roots, 0, &targets)
	sort.SliceStable(targets, func(i, k int) bool {
		return len(targets[i].KernelNames) > len(targets[k].KernelNames)
	})
	return targets
}

func refinementWalk(nodes []*trace.Node, depth int, targets *[]RefinementTarget) {
	for _, node := range nodes {
		if node.Kind != trace.KindScope {
			continue
		}
		scopes, kernels := splitChildren(node)

		if len(kernels) > 1 {
			names := make([]string, len(kernels))
			for i, k := range kernels {
				names[i] = k.Name
			}
			*targets = append(*targets, RefinementTarget{
				Name: node.Name, Depth: depth, Duration: node.Duration(),
				KernelNames: names, Mixed: len(scopes) > 0,
			})
		}
		refinementWalk(scopes, depth+1, targets)
	}
}

func splitChildren(node *trace.Node) (scopes, kernels []*trace.Node) {
	for _, child := range node.Children {
		if child.Kind == trace.KindScope {
			scopes = append(scopes, child)
		} else {
			kernels = append(kernels, child)
		}
	}
	return scopes, kernels
}

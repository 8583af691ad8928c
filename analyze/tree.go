package analyze

import (
	"context"
	"sort"

	"github.com/GindaChen/nsys-ai/trace"
)

// BuildTree reconstructs the scope hierarchy for one device, with
// kernels attached as leaves under their innermost enclosing scope.
//
// Only the primary thread's scopes and launches are used; mixing
// threads destroys containment-based nesting. Scopes that launched no
// kernels on the device are dropped before assembly, so their child
// scopes attach to the nearest kernel-bearing ancestor instead of
// their textual parent. Refinement workflows depend on this exact
// shape, so it is preserved rather than fixed.
func BuildTree(ctx context.Context, src EventSource, device int64, window trace.TimeRange) ([]*trace.Node, error) {
	kmap, err := src.KernelMap(ctx, device)
	if err != nil {
		return nil, err
	}
	if len(kmap) == 0 {
		return nil, nil
	}

	primary, ok, err := PrimaryThread(ctx, src, device)
	if err != nil || !ok {
		return nil, err
	}

	launches, err := src.Launches(ctx, []int64{primary},
		window.Pad(DefaultLookBack, DefaultLookForward))
	if err != nil {
		return nil, err
	}
	scopes, err := src.Scopes(ctx, []int64{primary}, window.Pad(DefaultLookBack, 0))
	if err != nil {
		return nil, err
	}

	type entry struct {
		node *trace.Node
		cpu  trace.TimeRange
	}

	// Scopes arrive sorted by CPU start; keep only the ones that
	// launched kernels whose projected interval touches the window.
	var entries []entry
	for _, scope := range scopes {
		kernels := correlate(launches[primary], scope.TimeRange, kmap)
		if len(kernels) == 0 {
			continue
		}
		bounds := gpuBounds(kernels)
		if !bounds.Intersects(window) {
			continue
		}

		node := &trace.Node{
			Kind: trace.KindScope, Name: scope.Text, TimeRange: bounds,
			Children: make([]*trace.Node, 0, len(kernels)),
		}
		for _, k := range kernels {
			node.Children = append(node.Children, &trace.Node{
				Kind: trace.KindKernel, Name: k.Name, Demangled: k.Demangled,
				Stream: k.Stream, TimeRange: k.TimeRange,
			})
		}
		entries = append(entries, entry{node: node, cpu: scope.TimeRange})
	}

	// Nest by CPU containment. Projected GPU intervals can overlap
	// non-hierarchically under asynchronous execution and must never
	// drive containment decisions.
	var roots []*trace.Node
	var stack []entry
	for _, e := range entries {
		for len(stack) > 0 && stack[len(stack)-1].cpu.Finish <= e.cpu.Start {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, e.node)
		} else {
			roots = append(roots, e.node)
		}
		stack = append(stack, e)
	}

	deduplicateKernels(roots)
	sortChildren(roots)
	return roots, nil
}

// deduplicateKernels removes a scope's direct kernel children when a
// descendant scope also claims them, leaving each kernel attributed to
// its innermost enclosing scope only.
func deduplicateKernels(nodes []*trace.Node) {
	for _, node := range nodes {
		if node.Kind != trace.KindScope {
			continue
		}
		claimed := make(map[trace.Time]struct{})
		for _, child := range node.Children {
			if child.Kind == trace.KindScope {
				collectKernelStarts(child, claimed)
			}
		}
		if len(claimed) > 0 {
			kept := node.Children[:0]
			for _, child := range node.Children {
				if child.Kind == trace.KindKernel {
					if _, dup := claimed[child.Start]; dup {
						continue
					}
				}
				kept = append(kept, child)
			}
			node.Children = kept
		}
		deduplicateKernels(node.Children)
	}
}

func collectKernelStarts(node *trace.Node, starts map[trace.Time]struct{}) {
	for _, child := range node.Children {
		if child.Kind == trace.KindKernel {
			starts[child.Start] = struct{}{}
		} else {
			collectKernelStarts(child, starts)
		}
	}
}

// sortChildren orders every node's children chronologically, so
// nested scopes interleave with kernels instead of sinking below them.
func sortChildren(nodes []*trace.Node) {
	for _, node := range nodes {
		sort.SliceStable(node.Children, func(i, k int) bool {
			return node.Children[i].TimeRange.Less(node.Children[k].TimeRange)
		})
		sortChildren(node.Children)
	}
}

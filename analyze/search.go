package analyze

import (
	"context"
	"strings"

	"github.com/GindaChen/nsys-ai/trace"
)

// KernelMatch is one kernel found by name search.
type KernelMatch struct {
	Name string
	trace.TimeRange
	Device int64
	Stream int64
}

// ScopeMatch is one annotation found by text search.
type ScopeMatch struct {
	Text string
	trace.TimeRange
	Thread int64
}

// HierarchyMatch is one kernel found under a matching scope path.
type HierarchyMatch struct {
	Name string
	trace.TimeRange
	Stream int64
	Path   string
}

// DefaultSearchLimit caps result counts for interactive use.
const DefaultSearchLimit = 200

// SearchKernels finds kernels whose name contains the query,
// case-insensitive, across the given devices.
func SearchKernels(ctx context.Context, src EventSource, devices []int64, query string, window trace.TimeRange, limit int) ([]KernelMatch, error) {
	q := strings.ToLower(query)
	var matches []KernelMatch
	for _, device := range devices {
		kernels, err := src.Kernels(ctx, device, window)
		if err != nil {
			return nil, err
		}
		for _, k := range kernels {
			if !strings.Contains(strings.ToLower(k.Name), q) {
				continue
			}
			matches = append(matches, KernelMatch{
				Name: k.Name, TimeRange: k.TimeRange,
				Device: device, Stream: k.Stream,
			})
			if len(matches) >= limit {
				return matches, nil
			}
		}
	}
	return matches, nil
}

// SearchScopes finds annotations whose text contains the query,
// case-insensitive, across every thread launching on the devices.
func SearchScopes(ctx context.Context, src EventSource, devices []int64, query string, window trace.TimeRange, limit int) ([]ScopeMatch, error) {
	q := strings.ToLower(query)
	var matches []ScopeMatch
	for _, device := range devices {
		threads, err := src.LaunchThreads(ctx, device)
		if err != nil {
			return nil, err
		}
		if len(threads) == 0 {
			continue
		}
		scopes, err := src.Scopes(ctx, threads, window)
		if err != nil {
			return nil, err
		}
		for _, scope := range scopes {
			if !strings.Contains(strings.ToLower(scope.Text), q) {
				continue
			}
			matches = append(matches, ScopeMatch{
				Text: scope.Text, TimeRange: scope.TimeRange, Thread: scope.Thread,
			})
			if len(matches) >= limit {
				return matches, nil
			}
		}
	}
	return matches, nil
}

// SearchHierarchy finds kernels matching childQuery that sit anywhere
// below a scope matching parentQuery in the reconstructed tree.
func SearchHierarchy(ctx context.Context, src EventSource, device int64, parentQuery, childQuery string, window trace.TimeRange) ([]HierarchyMatch, error) {
	roots, err := BuildTree(ctx, src, device, window)
	if err != nil {
		return nil, err
	}

	var matches []HierarchyMatch
	walkHierarchy(roots, strings.ToLower(parentQuery), strings.ToLower(childQuery), nil, &matches)
	return matches, nil
}

func walkHierarchy(nodes []*trace.Node, parentQuery, childQuery string, path []string, matches *[]HierarchyMatch) {
	for _, node := range nodes {
		current := make([]string, len(path), len(path)+1)
		copy(current, path)
		current = append(current, node.Name)

		if node.Kind == trace.KindKernel {
			if !strings.Contains(strings.ToLower(node.Name), childQuery) {
				continue
			}
			underParent := false
			for _, name := range current {
				if strings.Contains(strings.ToLower(name), parentQuery) {
					underParent = true
					break
				}
			}
			if underParent {
				*matches = append(*matches, HierarchyMatch{
					Name: node.Name, TimeRange: node.TimeRange, Stream: node.Stream,
					Path: strings.Join(path, " > "),
				})
			}
			continue
		}
		walkHierarchy(node.Children, parentQuery, childQuery, current, matches)
	}
}

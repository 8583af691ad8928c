package trace

// KernelEvent is one GPU kernel execution. Immutable once loaded.
// Correlation is unique per launch on the CPU side, but a correlation
// id may resolve to no kernel at all when the kernel ran on a
// different device than the one queried.
type KernelEvent struct {
	Name        string
	Demangled   string
	Device      int64
	Stream      int64
	Correlation int64
	TimeRange
}

// LaunchCall is a CPU-side runtime call that dispatched GPU work.
// It bridges CPU time to GPU time: the kernel sharing its Correlation
// was launched by it.
type LaunchCall struct {
	Thread      int64
	Correlation int64
	TimeRange
}

// AnnotationRange is a named CPU-side scope. Per thread, scopes follow
// a push/pop discipline: any two on the same thread are disjoint or
// fully nested. Traces that violate this produce undefined nesting.
type AnnotationRange struct {
	Text   string
	Thread int64
	TimeRange
}

type NodeKind int

const (
	KindScope NodeKind = iota
	KindKernel
)

func (k NodeKind) String() string {
	if k == KindKernel {
		return "kernel"
	}
	return "scope"
}

// Node is one entry in a reconstructed scope/kernel hierarchy. For
// scope nodes the TimeRange is the projected GPU interval, not the
// CPU wall-clock one. Kernel nodes never have children, and a kernel
// appears under at most one scope.
type Node struct {
	Kind      NodeKind
	Name      string
	Demangled string
	Stream    int64
	TimeRange
	Children []*Node
}

// Walk visits n and every descendant in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

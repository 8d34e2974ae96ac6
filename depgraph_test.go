package loader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDepGraphCycleDetection(t *testing.T) {
	g := newDepGraph()
	a := &ModuleRecord{name: "a"}
	b := &ModuleRecord{name: "b"}
	c := &ModuleRecord{name: "c"}

	require.False(t, g.wouldCycle(a, b), "a->b is not yet a cycle")
	g.addEdge(a, b)

	require.False(t, g.wouldCycle(b, c), "b->c does not cycle back to b")
	g.addEdge(b, c)

	require.True(t, g.wouldCycle(c, a), "c->a would close a -> b -> c -> a cycle")
	require.True(t, g.wouldCycle(a, a), "a module never requires itself")
}

func TestDepGraphRemoveEdgeReverseOrder(t *testing.T) {
	g := newDepGraph()
	dependent := &ModuleRecord{name: "b"}
	dep1 := &ModuleRecord{name: "a1"}
	dep2 := &ModuleRecord{name: "a2"}

	g.addEdge(dependent, dep1)
	g.addEdge(dependent, dep2)
	require.Len(t, dependent.requires, 2)
	require.Len(t, dep1.requiredBy, 1)
	require.Len(t, dep2.requiredBy, 1)

	require.NoError(t, g.removeEdge(dependent, dep2))
	require.Len(t, dependent.requires, 1)
	require.Empty(t, dep2.requiredBy)

	require.NoError(t, g.removeEdge(dependent, dep1))
	require.Empty(t, dependent.requires)

	require.ErrorIs(t, g.removeEdge(dependent, dep1), ErrUnknownRequireRef)
}

func TestTopoOrderForUnloadLeavesFirst(t *testing.T) {
	g := newDepGraph()
	chanserv := &ModuleRecord{name: "chanserv"}
	smtp := &ModuleRecord{name: "smtp"}
	g.addEdge(smtp, chanserv)

	order := g.topoOrderForUnload([]*ModuleRecord{smtp})
	require.Equal(t, []*ModuleRecord{chanserv, smtp}, order, "chanserv (a leaf of the requires graph) is listed before smtp, which requires it")
}

package dag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"qrdag/models"
)

func finalize(t *testing.T, g *Graph, ids ...models.VertexID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, g.Finalize(id, nil))
	}
}

func TestTotalOrderChain(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddVertex(vertex("A")))
	require.NoError(t, g.AddVertex(vertex("B", "A")))
	require.NoError(t, g.AddVertex(vertex("C", "B")))
	finalize(t, g, "A", "B", "C")

	order, err := g.GetTotalOrder()
	require.NoError(t, err)
	require.Equal(t, []models.VertexID{"A", "B", "C"}, order)
}

func TestTotalOrderExcludesNonFinal(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddVertex(vertex("A")))
	require.NoError(t, g.AddVertex(vertex("B", "A")))
	finalize(t, g, "A")

	order, err := g.GetTotalOrder()
	require.NoError(t, err)
	require.Equal(t, []models.VertexID{"A"}, order)
}

func TestTotalOrderParentsPrecedeChildren(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddVertex(vertex("A")))
	require.NoError(t, g.AddVertex(vertex("B1", "A")))
	require.NoError(t, g.AddVertex(vertex("B2", "A")))
	require.NoError(t, g.AddVertex(vertex("C", "B1", "B2")))
	finalize(t, g, "A", "B1", "B2", "C")

	order, err := g.GetTotalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	index := make(map[models.VertexID]int)
	for i, id := range order {
		index[id] = i
	}
	for _, id := range order {
		v, err := g.GetVertex(id)
		require.NoError(t, err)
		for _, pid := range v.Parents {
			require.Less(t, index[pid], index[id], "parent %s after child %s", pid, id)
		}
	}
}

func TestTotalOrderTieBreakIsDeterministic(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		root := vertex("root")
		root.Timestamp = 100
		require.NoError(t, g.AddVertex(root))

		// Same timestamp: ties break by id.
		for _, id := range []string{"m", "k", "z"} {
			v := vertex(id, "root")
			v.Timestamp = 200
			require.NoError(t, g.AddVertex(v))
		}
		finalize(t, g, "root", "k", "m", "z")
		return g
	}

	first, err := build().GetTotalOrder()
	require.NoError(t, err)
	second, err := build().GetTotalOrder()
	require.NoError(t, err)

	require.Equal(t, []models.VertexID{"root", "k", "m", "z"}, first)
	require.Equal(t, first, second)
}

func TestTotalOrderOrdersByTimestampWhenConcurrent(t *testing.T) {
	g := NewGraph()
	root := vertex("root")
	root.Timestamp = 100
	require.NoError(t, g.AddVertex(root))

	late := vertex("aaa", "root")
	late.Timestamp = 300
	early := vertex("zzz", "root")
	early.Timestamp = 200
	require.NoError(t, g.AddVertex(late))
	require.NoError(t, g.AddVertex(early))
	finalize(t, g, "root", "aaa", "zzz")

	order, err := g.GetTotalOrder()
	require.NoError(t, err)
	require.Equal(t, []models.VertexID{"root", "zzz", "aaa"}, order)
}

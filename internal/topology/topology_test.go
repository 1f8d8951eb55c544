package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMesh_CornerHasNoLeftOrBottomNeighbor(t *testing.T) {
	m := NewMesh(3)

	assert.Equal(t, NoNeighbor, m.Neighbor(0, 0, Left))
	assert.Equal(t, NoNeighbor, m.Neighbor(0, 0, Bottom))
	assert.True(t, m.HasNeighbor(0, 0, Right))
	assert.True(t, m.HasNeighbor(0, 0, Top))
}

func TestMesh_InteriorHasAllFourNeighbors(t *testing.T) {
	m := NewMesh(3)

	for _, d := range Cardinal {
		assert.True(t, m.HasNeighbor(1, 1, d), "direction %s", d)
	}
}

func TestMesh_NeighborRankIdsAreRowMajor(t *testing.T) {
	m := NewMesh(3)

	// rank(row,col) = row*3+col, so rank 4 sits at (1,1)
	assert.Equal(t, 3, m.Neighbor(1, 1, Left))
	assert.Equal(t, 5, m.Neighbor(1, 1, Right))
}

func TestMesh_DiagonalNeighborsOfCorner(t *testing.T) {
	m := NewMesh(2)

	// rank 0 at (0,0) in a 2x2 mesh has exactly one diagonal neighbor: rank 3,
	// one row up and one column right.
	assert.Equal(t, 3, m.Neighbor(0, 0, TopRight))
	assert.Equal(t, NoNeighbor, m.Neighbor(0, 0, TopLeft))
	assert.Equal(t, NoNeighbor, m.Neighbor(0, 0, BottomRight))
	assert.Equal(t, NoNeighbor, m.Neighbor(0, 0, BottomLeft))
}

func TestMesh_Neighbors_BulkLookup(t *testing.T) {
	m := NewMesh(3)
	got := m.Neighbors(1, 1, Diagonal)
	assert.Len(t, got, len(Diagonal))
	assert.Equal(t, 3, got[Left])
	assert.Equal(t, 5, got[Right])
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "LEFT", Left.String())
	assert.Equal(t, "BOTTOM_RIGHT", BottomRight.String())
}

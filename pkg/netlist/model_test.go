package netlist

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

type ids = []layout.ObjectID

func TestBuildFreshNames(t *testing.T) {
	m := Build([][]layout.ObjectID{{3, 1}, {2}}, nil)

	require.Equal(t, 2, m.Len())
	assert.Equal(t, 3, m.ObjectCount())

	n, ok := m.NetOf(3)
	require.True(t, ok)
	assert.Equal(t, "net-000001", n.ID)
	assert.Equal(t, n.ID, n.Name)
	assert.Equal(t, ids{1, 3}, n.Members)
	assert.True(t, n.Contains(1))
	assert.False(t, n.Contains(2))

	n2, _ := m.NetOf(2)
	assert.Equal(t, "net-000002", n2.ID)
	assert.Equal(t, 1, m.MultiMemberCount())

	_, ok = m.NetOf(99)
	assert.False(t, ok)
	assert.Nil(t, m.Members("net-999999"))
}

func TestBuildPartitionTotality(t *testing.T) {
	groups := [][]layout.ObjectID{{1, 2, 3}, {4}, {5, 6}}
	m := Build(groups, nil)
	total := 0
	for _, n := range m.Nets() {
		total += n.Size()
	}
	assert.Equal(t, 6, total)
	assert.Equal(t, 6, m.ObjectCount())
}

func TestMajorityOverlapInheritsName(t *testing.T) {
	prev := Build([][]layout.ObjectID{{1, 2, 3, 4}, {5, 6}}, nil)
	a, _ := prev.NetOf(1)
	b, _ := prev.NetOf(5)
	prev, err := prev.Rename(a.ID, "CLK")
	require.NoError(t, err)

	// Split A: {1,2,3} keeps A, {4} is fresh. B grows by a new object.
	next := Build([][]layout.ObjectID{{1, 2, 3}, {4}, {5, 6, 7}}, prev)

	n, _ := next.NetOf(1)
	assert.Equal(t, a.ID, n.ID)
	assert.Equal(t, "CLK", n.Name)
	assert.True(t, n.Manual)

	n, _ = next.NetOf(7)
	assert.Equal(t, b.ID, n.ID)

	n, _ = next.NetOf(4)
	assert.Equal(t, "net-000003", n.ID, "fresh ids continue from the prior counter")
}

func TestMergeKeepsLargerNet(t *testing.T) {
	prev := Build([][]layout.ObjectID{{1, 2}, {3, 4, 5}}, nil)
	big, _ := prev.NetOf(3)
	small, _ := prev.NetOf(1)

	next := Build([][]layout.ObjectID{{1, 2, 3, 4, 5}}, prev)
	n, _ := next.NetOf(1)
	assert.Equal(t, big.ID, n.ID)
	_, ok := next.Net(small.ID)
	assert.False(t, ok, "the absorbed net disappears")
}

func TestTieBreaks(t *testing.T) {
	// Equal overlap, equal size: lexically smaller id wins.
	prev := Build([][]layout.ObjectID{{1, 2}, {3, 4}}, nil)
	next := Build([][]layout.ObjectID{{1, 3}, {2, 4}}, prev)
	n1, _ := next.NetOf(1)
	n2, _ := next.NetOf(2)
	assert.Equal(t, "net-000001", n1.ID)
	assert.Equal(t, "net-000002", n2.ID, "the other set falls back to its remaining prior net")

	// Equal overlap, larger prior net wins.
	prev = Build([][]layout.ObjectID{{1}, {2, 3, 4}}, nil)
	next = Build([][]layout.ObjectID{{1, 2}}, prev)
	n, _ := next.NetOf(1)
	big, _ := prev.NetOf(2)
	assert.Equal(t, big.ID, n.ID)
}

func TestIdempotentRebuild(t *testing.T) {
	groups := [][]layout.ObjectID{{1, 2}, {3}, {4, 5, 6}}
	first := Build(groups, nil)
	second := Build(groups, first)
	assert.True(t, SameMembership(first, second))
	for _, n := range first.Nets() {
		m, ok := second.Net(n.ID)
		require.True(t, ok)
		assert.Equal(t, n.Members, m.Members)
	}
}

func TestReplaceLeavesOtherNets(t *testing.T) {
	prev := Build([][]layout.ObjectID{{1, 2}, {3, 4}, {5}}, nil)
	a, _ := prev.NetOf(1)
	c, _ := prev.NetOf(5)

	// retire the net of 5 and merge 6 into it
	next := prev.Replace([]string{c.ID}, [][]layout.ObjectID{{5, 6}})
	n, _ := next.NetOf(1)
	assert.Same(t, a, n, "untouched nets are shared")
	n, _ = next.NetOf(6)
	assert.Equal(t, c.ID, n.ID)
	assert.Equal(t, 3, next.Len())

	// prev is unchanged
	_, ok := prev.NetOf(6)
	assert.False(t, ok)
}

func TestSameMembership(t *testing.T) {
	a := Build([][]layout.ObjectID{{1, 2}, {3, 4}}, nil)
	b := Build([][]layout.ObjectID{{4, 3}, {2, 1}}, nil)
	c := Build([][]layout.ObjectID{{1, 3}, {2, 4}}, nil)
	assert.True(t, SameMembership(a, b))
	assert.False(t, SameMembership(a, c))
}

func TestRenameErrors(t *testing.T) {
	m := Build([][]layout.ObjectID{{1}}, nil)
	_, err := m.Rename("nope", "X")
	assert.Error(t, err)
	_, err = m.Rename("net-000001", "")
	assert.Error(t, err)
}

func TestExportJSON(t *testing.T) {
	m := Build([][]layout.ObjectID{{1, 2}, {3}}, nil)
	data, err := m.ExportJSON()
	require.NoError(t, err)

	var out struct {
		NetCount  int   `json:"net_count"`
		MultiNets int   `json:"multi_member_nets"`
		Nets      []Net `json:"nets"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 2, out.NetCount)
	assert.Equal(t, 1, out.MultiNets)
	assert.Equal(t, ids{1, 2}, out.Nets[0].Members)
}

func TestExportKiCad(t *testing.T) {
	objs := map[layout.ObjectID]layout.PlacedObject{
		1: {ID: 1, Kind: layout.KindGatePort, Port: &layout.PortRef{GateName: "U1", Port: "A"}},
		2: {ID: 2, Kind: layout.KindWire},
		3: {ID: 3, Kind: layout.KindModulePort, Name: "R1.2"},
		4: {ID: 4, Kind: layout.KindModulePort, Name: "clk"},
	}
	resolve := func(id layout.ObjectID) (layout.PlacedObject, bool) {
		o, ok := objs[id]
		return o, ok
	}

	m := Build([][]layout.ObjectID{{1, 2, 3}, {4}}, nil)
	out, err := m.ExportKiCad(resolve)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "(export (version D)"))
	assert.Contains(t, out, `(comp (ref "R1"))`)
	assert.Contains(t, out, `(comp (ref "U1"))`)
	assert.Contains(t, out, `(node (ref "U1") (pin "A"))`)
	assert.Contains(t, out, `(node (ref "R1") (pin "2"))`)
	assert.NotContains(t, out, `clk`, "single-node nets are skipped")
	assert.Equal(t, 1, strings.Count(out, "(net (code"))

	_, err = m.ExportKiCad(nil)
	assert.Error(t, err)
}

package netlist

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

// IDPrefix starts every generated net id.
const IDPrefix = "net-"

// FormatID renders the n-th generated net id.
func FormatID(n uint64) string {
	return fmt.Sprintf("%s%06d", IDPrefix, n)
}

type claim struct {
	group   int
	prior   *Net
	overlap int
}

// assignNames turns groups into nets. A group inherits the id and name of
// the prior net it shares the most members with; ties prefer the larger
// prior net, then the smaller id. Each prior net is inherited at most once,
// with the largest overlap winning. A group whose best candidate was taken
// falls back to its next overlapping prior net. Remaining groups get fresh
// ids from counter in order of their smallest member.
func assignNames(groups [][]layout.ObjectID, prior []*Net, prevByObject map[layout.ObjectID]string, counter *uint64) []*Net {
	groups = normalize(groups)
	byID := make(map[string]*Net, len(prior))
	for _, n := range prior {
		byID[n.ID] = n
	}

	var claims []claim
	for gi, members := range groups {
		overlap := make(map[string]int)
		for _, obj := range members {
			if netID, ok := prevByObject[obj]; ok {
				if _, retired := byID[netID]; retired {
					overlap[netID]++
				}
			}
		}
		for netID, n := range overlap {
			claims = append(claims, claim{group: gi, prior: byID[netID], overlap: n})
		}
	}
	sort.Slice(claims, func(i, j int) bool {
		a, b := claims[i], claims[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if len(a.prior.Members) != len(b.prior.Members) {
			return len(a.prior.Members) > len(b.prior.Members)
		}
		if a.prior.ID != b.prior.ID {
			return a.prior.ID < b.prior.ID
		}
		return groups[a.group][0] < groups[b.group][0]
	})

	inherited := make([]*Net, len(groups))
	taken := make(map[string]bool, len(prior))
	for _, c := range claims {
		if inherited[c.group] != nil || taken[c.prior.ID] {
			continue
		}
		taken[c.prior.ID] = true
		inherited[c.group] = c.prior
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return groups[order[i]][0] < groups[order[j]][0] })

	out := make([]*Net, 0, len(groups))
	for _, gi := range order {
		n := &Net{Members: groups[gi]}
		if p := inherited[gi]; p != nil {
			n.ID, n.Name, n.Manual = p.ID, p.Name, p.Manual
		} else {
			*counter++
			n.ID = FormatID(*counter)
			n.Name = n.ID
		}
		out = append(out, n)
	}
	return out
}

// normalize copies and sorts each group, dropping empty ones.
func normalize(groups [][]layout.ObjectID) [][]layout.ObjectID {
	out := make([][]layout.ObjectID, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		members := append([]layout.ObjectID(nil), g...)
		sortIDs(members)
		out = append(out, members)
	}
	return out
}

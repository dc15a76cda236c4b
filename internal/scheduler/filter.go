// Package scheduler implements the automation scheduler (§4.4): a set of
// cooperative, single-threaded loops that act on Mesh State on a timer,
// each independently non-overlapping, budgeted, and audited.
package scheduler

import (
	"regexp"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// NodeFilter selects which nodes a task acts on. A zero-value NodeFilter
// matches every node.
type NodeFilter struct {
	Channels    []uint32
	Roles       []uint32
	HwModels    []uint32
	NameRegex   string
	ExplicitIDs []uint32

	nameRe *regexp.Regexp
}

// compile lazily builds the filter's regexp once, since a NodeFilter is
// typically constructed once per task and reused across many ticks.
func (f *NodeFilter) compile() error {
	if f.NameRegex == "" || f.nameRe != nil {
		return nil
	}
	re, err := regexp.Compile(f.NameRegex)
	if err != nil {
		return err
	}
	f.nameRe = re
	return nil
}

// Matches reports whether n satisfies every configured predicate; an
// empty predicate list is treated as "no constraint from this axis".
func (f *NodeFilter) Matches(n store.Node) bool {
	if len(f.Channels) > 0 && !containsUint32(f.Channels, n.LastChannel) {
		return false
	}
	if len(f.Roles) > 0 && !containsUint32(f.Roles, n.Role) {
		return false
	}
	if len(f.HwModels) > 0 && !containsUint32(f.HwModels, n.HwModel) {
		return false
	}
	if len(f.ExplicitIDs) > 0 && !containsUint32(f.ExplicitIDs, n.NodeNum) {
		return false
	}
	if f.NameRegex != "" {
		if err := f.compile(); err != nil || f.nameRe == nil || !f.nameRe.MatchString(n.LongName) {
			return false
		}
	}
	return true
}

func containsUint32(haystack []uint32, v uint32) bool {
	for _, x := range haystack {
		if x == v {
			return true
		}
	}
	return false
}

// SelectNodes filters nodes, optionally sorting by observed hops
// descending (used by auto-traceroute to prioritize the farthest nodes).
func SelectNodes(nodes []store.Node, f NodeFilter, sortByHopsDesc bool) []store.Node {
	var out []store.Node
	for _, n := range nodes {
		if f.Matches(n) {
			out = append(out, n)
		}
	}
	if sortByHopsDesc {
		sortNodesByHopsDesc(out)
	}
	return out
}

// sortNodesByHopsDesc is a small insertion sort: task node lists are
// small (mesh sizes in the hundreds, not millions), so the simplicity of
// avoiding a sort.Interface wrapper outweighs the asymptotic cost.
func sortNodesByHopsDesc(nodes []store.Node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j-1].HopsAway < nodes[j].HopsAway; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

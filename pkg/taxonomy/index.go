package taxonomy

import (
	"slices"
	"strconv"
	"strings"
)

// Index is a read-only lookup structure over a normalized taxonomy. It is
// safe for concurrent use once built.
type Index struct {
	root   *Data
	nodes  []*Node
	byID   map[string]*Node
	parent map[*Node]*Node
}

// NewIndex flattens data in pre-order and builds id and parent lookups.
// When ids repeat, lookups resolve to the first node in pre-order.
func NewIndex(data *Data) *Index {
	if data == nil {
		data = &Data{ID: DefaultRootID, Label: DefaultRootLabel, Children: []*Node{}}
	}
	idx := &Index{
		root:   data,
		byID:   make(map[string]*Node),
		parent: make(map[*Node]*Node),
	}
	stack := make([]*Node, 0, len(data.Children))
	for i := len(data.Children) - 1; i >= 0; i-- {
		stack = append(stack, data.Children[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		idx.nodes = append(idx.nodes, n)
		if _, seen := idx.byID[n.ID]; !seen {
			idx.byID[n.ID] = n
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			c := n.Children[i]
			if c == nil {
				continue
			}
			idx.parent[c] = n
			stack = append(stack, c)
		}
	}
	return idx
}

// Root returns the indexed taxonomy root.
func (idx *Index) Root() *Data {
	return idx.root
}

// Flatten returns every node reachable from the root, in pre-order.
func (idx *Index) Flatten() []*Node {
	return slices.Clone(idx.nodes)
}

// Len is the number of indexed nodes.
func (idx *Index) Len() int {
	return len(idx.nodes)
}

// Search returns, in pre-order, the nodes whose label, id, name or original
// label contains query, ignoring case. An empty query matches nothing.
func (idx *Index) Search(query string) []*Node {
	q := strings.ToLower(query)
	if q == "" {
		return nil
	}
	var out []*Node
	for _, n := range idx.nodes {
		if matches(n, q) {
			out = append(out, n)
		}
	}
	return out
}

func matches(n *Node, q string) bool {
	for _, field := range []string{n.Label, n.ID, n.Name, n.OriginalLabel} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// FindByID returns the first node in pre-order with the given id.
func (idx *Index) FindByID(id string) (*Node, bool) {
	n, ok := idx.byID[id]
	return n, ok
}

// PathLabels returns the display labels from the top of the tree down to
// the node with the given id, inclusive. Unlabelled nodes contribute their
// id, or "Unknown" when that is empty too.
func (idx *Index) PathLabels(id string) ([]string, bool) {
	n, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	var path []string
	for cur := n; cur != nil; cur = idx.parent[cur] {
		path = append(path, displayLabel(cur))
	}
	slices.Reverse(path)
	return path, true
}

func displayLabel(n *Node) string {
	switch {
	case n.Label != "":
		return n.Label
	case n.ID != "":
		return n.ID
	default:
		return "Unknown"
	}
}

// CalculationChildren resolves the calculation arcs of n to nodes, ordered
// by the numeric value of each arc's order (missing or unparsable orders
// count as 0, ties keep arc order). Arcs pointing at unknown ids are
// dropped.
func (idx *Index) CalculationChildren(n *Node) []*Node {
	if n == nil || len(n.Calculations) == 0 {
		return nil
	}
	type resolved struct {
		node  *Node
		order float64
	}
	var out []resolved
	for _, arc := range n.Calculations {
		child, ok := idx.byID[arc.To]
		if !ok {
			continue
		}
		out = append(out, resolved{node: child, order: parseOrder(arc.Order)})
	}
	slices.SortStableFunc(out, func(a, b resolved) int {
		switch {
		case a.order < b.order:
			return -1
		case a.order > b.order:
			return 1
		default:
			return 0
		}
	})
	nodes := make([]*Node, len(out))
	for i, r := range out {
		nodes[i] = r.node
	}
	return nodes
}

func parseOrder(order string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(order), 64)
	if err != nil {
		return 0
	}
	return f
}

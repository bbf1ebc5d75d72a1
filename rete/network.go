package rete

import (
	stderrors "errors"
	"fmt"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/message"
)

// NodeID indexes a node in the network arena
type NodeID int

// SourceID is the fact-ingestion entry point. It is not a node; edges into it
// are feedback edges carrying derived facts back into the network.
const SourceID NodeID = 0

// NodeKind discriminates node variants
type NodeKind uint8

const (
	// KindAlpha tests single facts against a pattern
	KindAlpha NodeKind = iota + 1
	// KindJoin merges compatible bindings from two inputs
	KindJoin
	// KindTerminal instantiates rule heads
	KindTerminal
)

// String returns the string representation of NodeKind
func (k NodeKind) String() string {
	switch k {
	case KindAlpha:
		return "alpha"
	case KindJoin:
		return "join"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Side selects the join input an edge feeds
type Side uint8

const (
	// SideNone is used by edges into alpha or terminal nodes
	SideNone Side = iota
	// SideLeft feeds a join's left memory
	SideLeft
	// SideRight feeds a join's right memory
	SideRight
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// Edge connects two nodes
type Edge struct {
	From NodeID
	To   NodeID
	Side Side
}

// Node is one entry of the arena. Exactly one of Alpha, Join and Terminal is set.
type Node struct {
	ID        NodeID
	Kind      NodeKind
	Partition int
	Rules     []string

	Alpha    *AlphaNode
	Join     *JoinNode
	Terminal *TerminalNode
}

// Network is a compiled Rete network. Node IDs start at 1; the arena slot 0
// is reserved for SourceID.
type Network struct {
	nodes      []*Node
	edges      []Edge
	out        map[NodeID][]Edge
	byPattern  map[Pattern]NodeID
	byPred     map[message.Term][]NodeID
	anyPred    []NodeID
	partitions int
	feedback   bool
	rules      []Blueprint
}

// BuildOption configures network construction
type BuildOption func(*Network)

// WithFeedback controls whether terminal nodes get an edge back to the source.
// Feedback is on by default.
func WithFeedback(enabled bool) BuildOption {
	return func(n *Network) {
		n.feedback = enabled
	}
}

func newNetwork(partitions int) *Network {
	if partitions < 1 {
		partitions = 1
	}
	return &Network{
		nodes:      []*Node{nil},
		out:        make(map[NodeID][]Edge),
		byPattern:  make(map[Pattern]NodeID),
		byPred:     make(map[message.Term][]NodeID),
		partitions: partitions,
		feedback:   true,
	}
}

// Build constructs the network for the given blueprints.
//
// Alpha nodes are shared between identical patterns. Each rule chains joins
// left to right in body order and ends in its own terminal node. Nodes are
// assigned to partitions round robin in creation order.
func Build(bps []Blueprint, partitions int, opts ...BuildOption) (*Network, error) {
	n := newNetwork(partitions)
	for _, opt := range opts {
		opt(n)
	}

	for _, bp := range bps {
		if len(bp.Body) == 0 || len(bp.Head) == 0 {
			return nil, &errors.MalformedRuleError{Rule: bp.Name, Reason: "blueprint has empty body or head"}
		}

		alphas := make([]NodeID, len(bp.Body))
		for i, p := range bp.Body {
			alphas[i] = n.alphaFor(p, bp.Name)
		}

		tail := alphas[0]
		for _, right := range alphas[1:] {
			j := n.addNode(&Node{Kind: KindJoin, Join: &JoinNode{}, Rules: []string{bp.Name}})
			n.addEdge(tail, j, SideLeft)
			n.addEdge(right, j, SideRight)
			tail = j
		}

		term := n.addNode(&Node{Kind: KindTerminal, Rules: []string{bp.Name}})
		n.nodes[term].Terminal = &TerminalNode{ID: term, Rule: bp.Name, Head: bp.Head}
		n.addEdge(tail, term, SideNone)
		if n.feedback {
			n.addEdge(term, SourceID, SideNone)
		}
		n.rules = append(n.rules, bp)
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) alphaFor(p Pattern, rule string) NodeID {
	if id, ok := n.byPattern[p]; ok {
		n.nodes[id].Rules = append(n.nodes[id].Rules, rule)
		return id
	}
	id := n.addNode(&Node{Kind: KindAlpha, Alpha: &AlphaNode{Pattern: p}, Rules: []string{rule}})
	n.byPattern[p] = id
	if p.Predicate.IsVariable() {
		n.anyPred = append(n.anyPred, id)
	} else {
		n.byPred[p.Predicate] = append(n.byPred[p.Predicate], id)
	}
	n.addEdge(SourceID, id, SideNone)
	return id
}

func (n *Network) addNode(node *Node) NodeID {
	node.ID = NodeID(len(n.nodes))
	node.Partition = (int(node.ID) - 1) % n.partitions
	n.nodes = append(n.nodes, node)
	return node.ID
}

func (n *Network) addEdge(from, to NodeID, side Side) {
	e := Edge{From: from, To: to, Side: side}
	n.edges = append(n.edges, e)
	n.out[from] = append(n.out[from], e)
}

// Node returns the node with the given ID, or nil
func (n *Network) Node(id NodeID) *Node {
	if id <= SourceID || int(id) >= len(n.nodes) {
		return nil
	}
	return n.nodes[id]
}

// Nodes returns all nodes in ID order
func (n *Network) Nodes() []*Node {
	return n.nodes[1:]
}

// Edges returns all edges in creation order
func (n *Network) Edges() []Edge {
	return n.edges
}

// Successors returns the outgoing edges of a node. SourceID yields the edges
// into every alpha node.
func (n *Network) Successors(id NodeID) []Edge {
	return n.out[id]
}

// Partitions returns the number of partitions nodes were spread over
func (n *Network) Partitions() int {
	return n.partitions
}

// Feedback reports whether terminals feed derived facts back to the source
func (n *Network) Feedback() bool {
	return n.feedback
}

// Rules returns the blueprints the network was built from
func (n *Network) Rules() []Blueprint {
	return n.rules
}

// AlphasFor returns the alpha nodes whose pattern predicate can match t
func (n *Network) AlphasFor(t message.Triple) []NodeID {
	exact := n.byPred[t.Predicate]
	if len(n.anyPred) == 0 {
		return exact
	}
	out := make([]NodeID, 0, len(exact)+len(n.anyPred))
	out = append(out, exact...)
	return append(out, n.anyPred...)
}

// JoinMemory returns the total number of bindings held by all join nodes
func (n *Network) JoinMemory() int {
	total := 0
	for _, node := range n.Nodes() {
		if node.Join != nil {
			l, r := node.Join.MemorySize()
			total += l + r
		}
	}
	return total
}

// Validate checks that the graph without feedback edges is acyclic and that
// every edge references an existing node.
func (n *Network) Validate() error {
	indeg := make(map[NodeID]int, len(n.nodes))
	preds := make(map[NodeID][]NodeID, len(n.nodes))
	for _, e := range n.edges {
		if e.To == SourceID {
			continue
		}
		if n.Node(e.To) == nil || (e.From != SourceID && n.Node(e.From) == nil) {
			return fmt.Errorf("edge %d->%d references unknown node", e.From, e.To)
		}
		if e.From == SourceID {
			continue
		}
		indeg[e.To]++
		preds[e.To] = append(preds[e.To], e.From)
	}

	queue := make([]NodeID, 0, len(n.nodes))
	for _, node := range n.Nodes() {
		if indeg[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, e := range n.out[id] {
			if e.To == SourceID {
				continue
			}
			indeg[e.To]--
			if indeg[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}
	if visited == len(n.nodes)-1 {
		return nil
	}

	// Every unvisited node has an unvisited predecessor, so walking
	// predecessors from any of them must revisit a node.
	var start NodeID
	for _, node := range n.Nodes() {
		if indeg[node.ID] > 0 {
			start = node.ID
			break
		}
	}
	return &errors.CyclicDependencyError{Nodes: cycleFrom(start, preds, indeg)}
}

func cycleFrom(start NodeID, preds map[NodeID][]NodeID, indeg map[NodeID]int) []int {
	pos := make(map[NodeID]int)
	var path []NodeID
	cur := start
	for {
		if i, seen := pos[cur]; seen {
			path = path[i:]
			break
		}
		pos[cur] = len(path)
		path = append(path, cur)
		next := NodeID(-1)
		for _, p := range preds[cur] {
			if indeg[p] > 0 {
				next = p
				break
			}
		}
		if next < 0 {
			break
		}
		cur = next
	}
	// path follows predecessors; report it in edge direction
	out := make([]int, len(path))
	for i, id := range path {
		out[len(path)-1-i] = int(id)
	}
	return out
}

// ErrUnknownNode is returned when a delivery targets a node not in the network
var ErrUnknownNode = stderrors.New("unknown node")

// ErrNodeFailed marks a delivery dropped by a terminal node that already failed
var ErrNodeFailed = stderrors.New("node failed")

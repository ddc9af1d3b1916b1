package pipeline

import (
	"sort"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/config"
)

// FlowGraph is the directed graph of components connected through queues.
type FlowGraph struct {
	nodes  map[string]*ComponentNode
	order  []string
	queues map[string]*QueueNode
	qorder []string
	edges  []FlowEdge
}

// ComponentNode is one component in the flow graph.
type ComponentNode struct {
	ID         string
	Type       component.Type
	FromQueues []string
	ToQueues   []string
}

// QueueNode records who writes and who reads a queue.
type QueueNode struct {
	ID      string
	Writers []string
	Readers []string
}

// FlowEdge connects a writer to a reader through a queue.
type FlowEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Queue string `json:"queue"`
}

// FlowAnalysisResult contains the results of connectivity analysis
type FlowAnalysisResult struct {
	ConnectedComponents [][]string         `json:"connected_components"`
	ConnectedEdges      []FlowEdge         `json:"connected_edges"`
	DisconnectedNodes   []DisconnectedNode `json:"disconnected_nodes"`
	OrphanedQueues      []OrphanedQueue    `json:"orphaned_queues"`
	ValidationStatus    string             `json:"validation_status"`
}

// DisconnectedNode is a component that exchanges messages with nobody.
type DisconnectedNode struct {
	ComponentID string `json:"component_id"`
	Issue       string `json:"issue"`
}

// OrphanedQueue is a queue missing a writer or a reader.
type OrphanedQueue struct {
	QueueID string `json:"queue_id"`
	Issue   string `json:"issue"` // no_writers, no_readers
}

// NewFlowGraph builds the graph of a validated configuration. The stats
// queue, when set, counts as written by the runtime.
func NewFlowGraph(cfg *config.PipelineConfiguration) *FlowGraph {
	g := &FlowGraph{
		nodes:  make(map[string]*ComponentNode, len(cfg.Components)),
		queues: make(map[string]*QueueNode, len(cfg.Queues)),
	}

	for _, q := range cfg.Queues {
		g.queues[q.ID] = &QueueNode{ID: q.ID}
		g.qorder = append(g.qorder, q.ID)
	}
	if q, ok := g.queues[cfg.StatsQueueID]; ok {
		q.Writers = append(q.Writers, statsWriter)
	}

	for _, c := range cfg.Components {
		typ, _ := component.ParseType(c.Type)
		node := &ComponentNode{
			ID:         c.ID,
			Type:       typ,
			FromQueues: c.FromQueues,
			ToQueues:   c.ToQueues,
		}
		g.nodes[c.ID] = node
		g.order = append(g.order, c.ID)

		for _, qid := range c.ToQueues {
			if q, ok := g.queues[qid]; ok {
				q.Writers = append(q.Writers, c.ID)
			}
		}
		for _, qid := range c.FromQueues {
			if q, ok := g.queues[qid]; ok {
				q.Readers = append(q.Readers, c.ID)
			}
		}
	}

	for _, qid := range g.qorder {
		q := g.queues[qid]
		for _, w := range q.Writers {
			if w == statsWriter {
				continue
			}
			for _, r := range q.Readers {
				g.edges = append(g.edges, FlowEdge{From: w, To: r, Queue: qid})
			}
		}
	}
	return g
}

// statsWriter marks the runtime as the writer of the stats queue.
const statsWriter = "\x00stats"

// Edges returns the edges of the graph.
func (g *FlowGraph) Edges() []FlowEdge {
	out := make([]FlowEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// AnalyzeConnectivity performs graph connectivity analysis
func (g *FlowGraph) AnalyzeConnectivity() *FlowAnalysisResult {
	result := &FlowAnalysisResult{
		ConnectedComponents: g.findConnectedComponents(),
		ConnectedEdges:      g.Edges(),
		DisconnectedNodes:   []DisconnectedNode{},
		OrphanedQueues:      []OrphanedQueue{},
		ValidationStatus:    "healthy",
	}

	for _, qid := range g.qorder {
		q := g.queues[qid]
		switch {
		case len(q.Writers) == 0 && len(q.Readers) == 0:
			result.OrphanedQueues = append(result.OrphanedQueues, OrphanedQueue{QueueID: qid, Issue: "unused"})
		case len(q.Writers) == 0:
			result.OrphanedQueues = append(result.OrphanedQueues, OrphanedQueue{QueueID: qid, Issue: "no_writers"})
		case len(q.Readers) == 0:
			result.OrphanedQueues = append(result.OrphanedQueues, OrphanedQueue{QueueID: qid, Issue: "no_readers"})
		}
	}

	connected := make(map[string]bool, len(g.nodes))
	for _, e := range g.edges {
		connected[e.From] = true
		connected[e.To] = true
	}
	for _, id := range g.order {
		if !connected[id] {
			result.DisconnectedNodes = append(result.DisconnectedNodes, DisconnectedNode{
				ComponentID: id,
				Issue:       "Component has no connections",
			})
		}
	}

	if len(result.DisconnectedNodes) > 0 || len(result.OrphanedQueues) > 0 {
		result.ValidationStatus = "warnings"
	}
	return result
}

// findConnectedComponents uses DFS over the undirected graph
func (g *FlowGraph) findConnectedComponents() [][]string {
	adj := make(map[string][]string)
	for _, e := range g.edges {
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}

	visited := make(map[string]bool, len(g.nodes))
	clusters := [][]string{}
	for _, id := range g.order {
		if visited[id] {
			continue
		}
		var cluster []string
		g.dfs(id, adj, visited, &cluster)
		sort.Strings(cluster)
		clusters = append(clusters, cluster)
	}
	return clusters
}

func (g *FlowGraph) dfs(node string, adj map[string][]string, visited map[string]bool, cluster *[]string) {
	visited[node] = true
	*cluster = append(*cluster, node)
	for _, next := range adj[node] {
		if !visited[next] {
			g.dfs(next, adj, visited, cluster)
		}
	}
}

// StartOrder returns component ids in the order they are started: emitters,
// then operators with downstream operators first, then sources. Operators
// on a cycle start after the others, in declaration order.
func (g *FlowGraph) StartOrder() []string {
	var emitters, operators, sources []string
	for _, id := range g.order {
		switch n := g.nodes[id]; {
		case n.Type == component.TypeEmitter:
			emitters = append(emitters, id)
		case n.Type == component.TypeSource:
			sources = append(sources, id)
		default:
			operators = append(operators, id)
		}
	}

	order := make([]string, 0, len(g.order))
	order = append(order, emitters...)
	order = append(order, g.downstreamFirst(operators)...)
	order = append(order, sources...)
	return order
}

// downstreamFirst reverses a topological sort of the operator subgraph.
func (g *FlowGraph) downstreamFirst(operators []string) []string {
	isOperator := make(map[string]bool, len(operators))
	for _, id := range operators {
		isOperator[id] = true
	}

	indegree := make(map[string]int, len(operators))
	next := make(map[string][]string, len(operators))
	seen := make(map[FlowEdge]bool)
	for _, e := range g.edges {
		if !isOperator[e.From] || !isOperator[e.To] || e.From == e.To {
			continue
		}
		key := FlowEdge{From: e.From, To: e.To}
		if seen[key] {
			continue
		}
		seen[key] = true
		next[e.From] = append(next[e.From], e.To)
		indegree[e.To]++
	}

	var ready, topo []string
	for _, id := range operators {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	placed := make(map[string]bool, len(operators))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		topo = append(topo, id)
		placed[id] = true
		for _, to := range next[id] {
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}
	for i, j := 0, len(topo)-1; i < j; i, j = i+1, j-1 {
		topo[i], topo[j] = topo[j], topo[i]
	}
	for _, id := range operators {
		if !placed[id] {
			topo = append(topo, id)
		}
	}
	return topo
}

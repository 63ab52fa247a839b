package index

// LinkGraph is the directed graph induced by crawl records, restricted
// to URLs that are themselves in the corpus. Outlinks pointing outside
// the crawled set carry no rank information and are dropped, which is
// what makes dangling-node handling in PageRank well defined.
type LinkGraph struct {
	ids      map[string]int // URL -> node id
	urls     []string       // node id -> URL
	outEdges [][]int        // node id -> target node ids
	inEdges  [][]int        // node id -> source node ids
}

// NewLinkGraph allocates a graph for the given corpus URLs. Node ids
// follow the slice order.
func NewLinkGraph(urls []string) *LinkGraph {
	g := &LinkGraph{
		ids:      make(map[string]int, len(urls)),
		urls:     append([]string(nil), urls...),
		outEdges: make([][]int, len(urls)),
		inEdges:  make([][]int, len(urls)),
	}
	for i, u := range urls {
		g.ids[u] = i
	}
	return g
}

// AddOutlinks records the edges from fromURL, keeping only targets
// inside the corpus. Self-links and duplicate edges are dropped.
func (g *LinkGraph) AddOutlinks(fromURL string, outlinks []string) {
	from, ok := g.ids[fromURL]
	if !ok {
		return
	}
	seen := make(map[int]struct{}, len(outlinks))
	for _, link := range outlinks {
		to, inCorpus := g.ids[link]
		if !inCorpus || to == from {
			continue
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		g.outEdges[from] = append(g.outEdges[from], to)
		g.inEdges[to] = append(g.inEdges[to], from)
	}
}

// Size returns the node count.
func (g *LinkGraph) Size() int { return len(g.urls) }

// URL returns the URL for a node id.
func (g *LinkGraph) URL(id int) string { return g.urls[id] }

// OutDegree returns the number of in-corpus targets of node id.
func (g *LinkGraph) OutDegree(id int) int { return len(g.outEdges[id]) }

// Sources returns the node ids linking to id.
func (g *LinkGraph) Sources(id int) []int { return g.inEdges[id] }

// Targets returns the node ids linked from id.
func (g *LinkGraph) Targets(id int) []int { return g.outEdges[id] }

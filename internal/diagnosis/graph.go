package diagnosis

import (
	"fmt"
	"os"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// node is one vertex in the roots-at-leak graph: either the leak itself
// or one of the access-path roots that reached it at the moment it
// became unreachable.
type node struct {
	Label string
	IsLeak bool
}

func nodeHash(n node) string { return n.Label }

// WriteRootsGraph renders, for each diagnosis, an edge from every root in
// RootsAtLeak to the leak site itself — the shape a reader needs to see
// "what used to point here, and stopped" at a glance. Grounded on the
// teacher's WriteGraph (conftamer/graph.go): build one in-memory directed
// graph across every diagnosis, then draw it to a single .gv file.
func WriteRootsGraph(outfile string, diags []LeakDiagnosis) error {
	g := graph.New(nodeHash, graph.Directed())

	for _, d := range diags {
		leakLabel := fmt.Sprintf("%s:%d (%s)", d.File, d.Line, d.Kind)
		leakNode := node{Label: leakLabel, IsLeak: true}
		if err := addNode(g, leakNode); err != nil {
			return err
		}
		for _, root := range d.RootsAtLeak {
			rootNode := node{Label: root}
			if err := addNode(g, rootNode); err != nil {
				return err
			}
			if err := g.AddEdge(nodeHash(rootNode), nodeHash(leakNode)); err != nil && err != graph.ErrEdgeAlreadyExists {
				return fmt.Errorf("diagnosis: adding edge %s -> %s: %w", rootNode.Label, leakNode.Label, err)
			}
		}
	}

	file, err := os.Create(outfile)
	if err != nil {
		return fmt.Errorf("diagnosis: creating graph file: %w", err)
	}
	defer file.Close()

	return draw.DOT(g, file)
}

func addNode(g graph.Graph[string, node], n node) error {
	if err := g.AddVertex(n); err != nil && err != graph.ErrVertexAlreadyExists {
		return fmt.Errorf("diagnosis: adding vertex %s: %w", n.Label, err)
	}
	return nil
}

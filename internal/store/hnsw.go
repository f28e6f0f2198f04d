package store

import (
	"github.com/coder/hnsw"
)

// HNSWBackend wraps an approximate nearest-neighbor graph. It trades exact
// recall for sublinear search and is selected with the "hnsw" index backend
// setting. Distances are recomputed as squared L2 from the stored vectors so
// scores stay on the same scale as the flat backend.
type HNSWBackend struct {
	graph   *hnsw.Graph[int]
	vectors [][]float32
}

// NewHNSWBackend creates an empty HNSW backend with search parameters tuned
// for corpora in the tens of thousands of chunks.
func NewHNSWBackend() *HNSWBackend {
	g := hnsw.NewGraph[int]()
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 50
	g.Distance = hnsw.EuclideanDistance
	return &HNSWBackend{graph: g}
}

func (h *HNSWBackend) Name() string { return "hnsw" }

func (h *HNSWBackend) Add(vector []float32) int {
	position := len(h.vectors)
	h.vectors = append(h.vectors, vector)
	h.graph.Add(hnsw.MakeNode(position, vector))
	return position
}

func (h *HNSWBackend) Search(query []float32, k int) []Candidate {
	if k <= 0 || len(h.vectors) == 0 {
		return nil
	}

	neighbors := h.graph.Search(query, k)
	candidates := make([]Candidate, 0, len(neighbors))
	for _, node := range neighbors {
		candidates = append(candidates, Candidate{
			Position: node.Key,
			Distance: squaredL2(query, h.vectors[node.Key]),
		})
	}
	return candidates
}

func (h *HNSWBackend) Len() int { return len(h.vectors) }

func (h *HNSWBackend) Vector(position int) []float32 {
	if position < 0 || position >= len(h.vectors) {
		return nil
	}
	return h.vectors[position]
}

package store

import "sort"

// FlatBackend is an exact nearest-neighbor backend: a brute-force squared L2
// scan over all stored vectors. It is the default because exactness keeps
// scores reproducible; switch to HNSW only when the corpus outgrows it.
type FlatBackend struct {
	vectors [][]float32
}

// NewFlatBackend creates an empty flat backend.
func NewFlatBackend() *FlatBackend {
	return &FlatBackend{}
}

func (f *FlatBackend) Name() string { return "flat" }

func (f *FlatBackend) Add(vector []float32) int {
	f.vectors = append(f.vectors, vector)
	return len(f.vectors) - 1
}

func (f *FlatBackend) Search(query []float32, k int) []Candidate {
	if k <= 0 || len(f.vectors) == 0 {
		return nil
	}

	candidates := make([]Candidate, len(f.vectors))
	for i, vec := range f.vectors {
		candidates[i] = Candidate{Position: i, Distance: squaredL2(query, vec)}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Distance != candidates[b].Distance {
			return candidates[a].Distance < candidates[b].Distance
		}
		return candidates[a].Position < candidates[b].Position
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

func (f *FlatBackend) Len() int { return len(f.vectors) }

func (f *FlatBackend) Vector(position int) []float32 {
	if position < 0 || position >= len(f.vectors) {
		return nil
	}
	return f.vectors[position]
}

// squaredL2 computes the squared Euclidean distance between two vectors of
// equal length.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

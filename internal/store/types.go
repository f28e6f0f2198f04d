// Package store implements the persistent vector index. Vectors live in a
// pluggable search backend (exact flat scan by default, HNSW opt-in) while
// chunk metadata lives in a position-aligned record list. Both persist as a
// gob file pair written atomically, and deletes are soft until a rebuild
// compacts them away.
package store

import "encoding/gob"

func init() {
	// Metadata values may nest; top-level basics are handled by gob itself.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Record is the metadata half of an indexed chunk. Its position in the
// record list matches the vector's position in the backend. Deleted records
// stay in place until Rebuild compacts the index.
type Record struct {
	Metadata map[string]any
	Deleted  bool
}

// SearchResult is one retrieval hit. Score is 1/(1+d) over squared L2
// distance d, rounded to four decimals, so identical vectors score 1.0.
type SearchResult struct {
	Position int
	Score    float64
	Distance float64
	Metadata map[string]any
}

// Candidate is a raw nearest-neighbor hit from a backend: a vector position
// and its squared L2 distance to the query.
type Candidate struct {
	Position int
	Distance float64
}

// VectorBackend performs nearest-neighbor search over position-addressed
// vectors. Implementations are not required to be goroutine-safe; the Index
// serializes access.
type VectorBackend interface {
	// Name identifies the backend in stats and logs.
	Name() string

	// Add appends a vector and returns its position.
	Add(vector []float32) int

	// Search returns up to k candidates ordered by ascending squared L2
	// distance.
	Search(query []float32, k int) []Candidate

	// Len reports the number of stored vectors, deleted ones included.
	Len() int

	// Vector returns the stored vector at a position, for persistence and
	// rebuilds.
	Vector(position int) []float32
}

// Stats is a point-in-time summary of the index.
type Stats struct {
	TotalRecords   int            `json:"total_records"`
	ActiveRecords  int            `json:"active_records"`
	DeletedRecords int            `json:"deleted_records"`
	Dimensions     int            `json:"dimensions"`
	Backend        string         `json:"backend"`
	Collections    map[string]int `json:"collections"`
	SearchCount    uint64         `json:"search_count"`
}

// CollectionInfo summarizes one collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
}

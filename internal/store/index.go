package store

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/lentra-ai/lentra/internal/errors"
)

const (
	vectorsFile = "index.gob"
	metaFile    = "meta.gob"
	lockFile    = "index.lock"
)

// Index is the persistent vector index. All methods are safe for concurrent
// use. A file lock on the index directory guards against two processes
// writing the same index.
type Index struct {
	mu       sync.RWMutex
	dir      string
	backend  VectorBackend
	records  []Record
	dims     int
	lock     *flock.Flock
	searches atomic.Uint64
}

// vectorsSnapshot is the on-disk form of the vector half of the index.
type vectorsSnapshot struct {
	Backend    string
	Dimensions int
	Vectors    [][]float32
}

// Open creates or loads an index rooted at dir using the named backend
// ("flat" or "hnsw"). Missing or unreadable snapshot files start a fresh
// index rather than failing; losing a cache of embeddings is recoverable,
// refusing to start is not.
func Open(dir, backendName string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index at %s is locked by another process", dir)
	}

	idx := &Index{
		dir:     dir,
		backend: newBackend(backendName),
		lock:    lock,
	}

	if err := idx.load(backendName); err != nil {
		slog.Warn("index snapshot unreadable, starting fresh",
			slog.String("dir", dir),
			slog.Any("error", err))
		idx.backend = newBackend(backendName)
		idx.records = nil
		idx.dims = 0
	}

	slog.Info("index opened",
		slog.String("dir", dir),
		slog.String("backend", idx.backend.Name()),
		slog.Int("records", len(idx.records)))

	return idx, nil
}

func newBackend(name string) VectorBackend {
	if name == "hnsw" {
		return NewHNSWBackend()
	}
	return NewFlatBackend()
}

// Add appends vectors with their metadata and returns the positions assigned
// to them. All vectors must share the index's dimensionality, which is fixed
// by the first vector ever added.
func (i *Index) Add(vectors [][]float32, metadatas []map[string]any) ([]int, error) {
	if len(vectors) != len(metadatas) {
		return nil, errors.NewRAGError(errors.OpIndex,
			fmt.Sprintf("got %d vectors for %d metadata entries", len(vectors), len(metadatas)), nil)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for n, vec := range vectors {
		if len(vec) == 0 {
			return nil, errors.NewRAGError(errors.OpIndex, fmt.Sprintf("empty vector at position %d", n), nil)
		}
		if i.dims == 0 {
			i.dims = len(vec)
		}
		if len(vec) != i.dims {
			return nil, errors.NewRAGError(errors.OpIndex,
				fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vec), i.dims), nil).
				WithDetail("position", n)
		}
	}

	positions := make([]int, len(vectors))
	for n, vec := range vectors {
		positions[n] = i.backend.Add(vec)
		md := metadatas[n]
		if md == nil {
			md = map[string]any{}
		}
		i.records = append(i.records, Record{Metadata: md})
	}

	return positions, nil
}

// Search returns up to topK active records nearest to query, optionally
// restricted to a collection and filtered by a minimum score. The backend is
// over-queried threefold when post-filtering could starve the result set.
func (i *Index) Search(query []float32, topK int, collection string, threshold float64) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.records) == 0 {
		return []SearchResult{}, nil
	}
	if i.dims != 0 && len(query) != i.dims {
		return nil, errors.NewRAGError(errors.OpRetrieve,
			fmt.Sprintf("query dimension %d does not match index dimension %d", len(query), i.dims), nil)
	}

	i.searches.Add(1)

	fetchK := topK
	if collection != "" || i.deletedCountLocked() > 0 {
		fetchK = topK * 3
	}
	if fetchK > i.backend.Len() {
		fetchK = i.backend.Len()
	}

	results := make([]SearchResult, 0, topK)
	for _, cand := range i.backend.Search(query, fetchK) {
		rec := i.records[cand.Position]
		if rec.Deleted {
			continue
		}
		if collection != "" && metaString(rec.Metadata, "collection") != collection {
			continue
		}
		score := round4(1.0 / (1.0 + cand.Distance))
		if score < threshold {
			continue
		}
		results = append(results, SearchResult{
			Position: cand.Position,
			Score:    score,
			Distance: cand.Distance,
			Metadata: rec.Metadata,
		})
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// DeleteDocument soft-deletes every chunk of a document and reports how many
// records were affected. The vectors stay in the backend until Rebuild.
func (i *Index) DeleteDocument(documentID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	deleted := 0
	for n := range i.records {
		if i.records[n].Deleted {
			continue
		}
		if metaString(i.records[n].Metadata, "document_id") == documentID {
			i.records[n].Deleted = true
			deleted++
		}
	}

	if deleted > 0 {
		slog.Info("document deleted",
			slog.String("document_id", documentID),
			slog.Int("chunks", deleted))
	}
	return deleted
}

// ClearCollection soft-deletes every record in a collection and reports how
// many distinct documents were removed.
func (i *Index) ClearCollection(collection string) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	docs := map[string]struct{}{}
	for n := range i.records {
		if i.records[n].Deleted {
			continue
		}
		if metaString(i.records[n].Metadata, "collection") == collection {
			i.records[n].Deleted = true
			docs[metaString(i.records[n].Metadata, "document_id")] = struct{}{}
		}
	}
	return len(docs)
}

// Rebuild compacts the index: soft-deleted records are dropped and the
// surviving vectors are re-added to a fresh backend. Returns the number of
// records removed.
func (i *Index) Rebuild() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	fresh := newBackend(i.backend.Name())
	kept := make([]Record, 0, len(i.records))
	removed := 0

	for n, rec := range i.records {
		if rec.Deleted {
			removed++
			continue
		}
		fresh.Add(i.backend.Vector(n))
		kept = append(kept, rec)
	}

	i.backend = fresh
	i.records = kept
	if len(kept) == 0 {
		i.dims = 0
	}

	slog.Info("index rebuilt",
		slog.Int("removed", removed),
		slog.Int("remaining", len(kept)))
	return removed
}

// Save writes both snapshot files atomically (temp file plus rename), so a
// crash mid-write never leaves a torn snapshot. The write lock serializes
// concurrent savers; two writers sharing a temp file would interleave.
func (i *Index) Save() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	snap := vectorsSnapshot{
		Backend:    i.backend.Name(),
		Dimensions: i.dims,
		Vectors:    make([][]float32, i.backend.Len()),
	}
	for n := 0; n < i.backend.Len(); n++ {
		snap.Vectors[n] = i.backend.Vector(n)
	}

	if err := writeGob(filepath.Join(i.dir, vectorsFile), snap); err != nil {
		return errors.NewRAGError(errors.OpSave, "write vector snapshot", err)
	}
	if err := writeGob(filepath.Join(i.dir, metaFile), i.records); err != nil {
		return errors.NewRAGError(errors.OpSave, "write metadata snapshot", err)
	}

	slog.Debug("index saved", slog.Int("records", len(i.records)))
	return nil
}

// load reads the snapshot pair. Either file missing means a fresh index and
// is not an error; any decode failure is.
func (i *Index) load(backendName string) error {
	var snap vectorsSnapshot
	vErr := readGob(filepath.Join(i.dir, vectorsFile), &snap)
	var records []Record
	mErr := readGob(filepath.Join(i.dir, metaFile), &records)

	if os.IsNotExist(vErr) || os.IsNotExist(mErr) {
		return nil
	}
	if vErr != nil {
		return vErr
	}
	if mErr != nil {
		return mErr
	}
	if len(snap.Vectors) != len(records) {
		return fmt.Errorf("snapshot mismatch: %d vectors, %d records", len(snap.Vectors), len(records))
	}

	backend := newBackend(backendName)
	for _, vec := range snap.Vectors {
		backend.Add(vec)
	}

	i.backend = backend
	i.records = records
	i.dims = snap.Dimensions
	return nil
}

// Stats reports a snapshot of index state.
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s := Stats{
		TotalRecords: len(i.records),
		Dimensions:   i.dims,
		Backend:      i.backend.Name(),
		Collections:  map[string]int{},
		SearchCount:  i.searches.Load(),
	}
	for _, rec := range i.records {
		if rec.Deleted {
			s.DeletedRecords++
			continue
		}
		s.ActiveRecords++
		s.Collections[metaString(rec.Metadata, "collection")]++
	}
	return s
}

// Collections lists collections with their document and chunk counts.
func (i *Index) Collections() []CollectionInfo {
	i.mu.RLock()
	defer i.mu.RUnlock()

	type agg struct {
		docs   map[string]struct{}
		chunks int
	}
	byName := map[string]*agg{}
	for _, rec := range i.records {
		if rec.Deleted {
			continue
		}
		name := metaString(rec.Metadata, "collection")
		a := byName[name]
		if a == nil {
			a = &agg{docs: map[string]struct{}{}}
			byName[name] = a
		}
		a.docs[metaString(rec.Metadata, "document_id")] = struct{}{}
		a.chunks++
	}

	out := make([]CollectionInfo, 0, len(byName))
	for name, a := range byName {
		out = append(out, CollectionInfo{Name: name, Documents: len(a.docs), Chunks: a.chunks})
	}
	sortCollections(out)
	return out
}

// Collection returns the document and chunk counts of one collection. The
// second return reports whether the collection has any active records.
func (i *Index) Collection(name string) (CollectionInfo, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	info := CollectionInfo{Name: name}
	docs := map[string]struct{}{}
	for _, rec := range i.records {
		if rec.Deleted || metaString(rec.Metadata, "collection") != name {
			continue
		}
		docs[metaString(rec.Metadata, "document_id")] = struct{}{}
		info.Chunks++
	}
	info.Documents = len(docs)
	return info, info.Chunks > 0
}

// Documents lists indexed documents, optionally filtered by collection.
func (i *Index) Documents(collection string) []DocumentInfo {
	i.mu.RLock()
	defer i.mu.RUnlock()

	byID := map[string]*DocumentInfo{}
	var order []string
	for _, rec := range i.records {
		if rec.Deleted {
			continue
		}
		if collection != "" && metaString(rec.Metadata, "collection") != collection {
			continue
		}
		id := metaString(rec.Metadata, "document_id")
		info := byID[id]
		if info == nil {
			info = &DocumentInfo{
				DocumentID: id,
				Source:     metaString(rec.Metadata, "source"),
				Collection: metaString(rec.Metadata, "collection"),
			}
			byID[id] = info
			order = append(order, id)
		}
		info.Chunks++
	}

	out := make([]DocumentInfo, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// Close releases the directory lock. It does not save; callers decide when
// snapshots happen.
func (i *Index) Close() error {
	return i.lock.Unlock()
}

func (i *Index) deletedCountLocked() int {
	n := 0
	for _, rec := range i.records {
		if rec.Deleted {
			n++
		}
	}
	return n
}

func sortCollections(infos []CollectionInfo) {
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name < infos[b].Name })
}

func metaString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if s, ok := md[key].(string); ok {
		return s
	}
	return ""
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

func writeGob(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

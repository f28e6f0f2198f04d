// Package watch auto-indexes a directory: new or modified text documents
// are (re)indexed and removed files are deleted from the index.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lentra-ai/lentra/internal/rag"
)

// Indexer is the slice of the retrieval engine the watcher drives.
type Indexer interface {
	IndexDocument(ctx context.Context, content, filename, collection string, metadata map[string]any) (*rag.IndexResult, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

// watchedExtensions are the file types worth indexing.
var watchedExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
}

// debounceDelay coalesces the write bursts editors produce into one
// reindex.
const debounceDelay = 500 * time.Millisecond

// Watcher mirrors a directory into the index. Events are debounced per path
// and processed sequentially.
type Watcher struct {
	indexer    Indexer
	dir        string
	collection string

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	docIDs  map[string]string // path -> indexed document id
	indexed chan string       // emits paths after processing, for tests
}

// New creates a watcher over dir that indexes into collection.
func New(indexer Indexer, dir, collection string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		indexer:    indexer,
		dir:        dir,
		collection: collection,
		fsw:        fsw,
		pending:    map[string]*time.Timer{},
		docIDs:     map[string]string{},
		indexed:    make(chan string, 64),
	}, nil
}

// Run processes filesystem events until ctx is cancelled. Existing files in
// the directory are indexed on startup.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.indexExisting(ctx); err != nil {
		return err
	}

	slog.Info("watching directory",
		slog.String("dir", w.dir),
		slog.String("collection", w.collection))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) indexExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !watchable(path) {
			continue
		}
		w.indexFile(ctx, path)
	}
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !watchable(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		w.scheduleIndex(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.removeFile(ctx, event.Name)
	}
}

// scheduleIndex (re)arms the debounce timer for path.
func (w *Watcher) scheduleIndex(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.indexFile(ctx, path)
	})
}

func (w *Watcher) indexFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("read watched file failed",
			slog.String("path", path),
			slog.Any("error", err))
		return
	}
	if strings.TrimSpace(string(content)) == "" {
		return
	}

	// Re-writes replace the previous version of the document.
	w.mu.Lock()
	previous := w.docIDs[path]
	w.mu.Unlock()
	if previous != "" {
		if _, err := w.indexer.DeleteDocument(ctx, previous); err != nil {
			slog.Warn("replace previous document failed",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}

	result, err := w.indexer.IndexDocument(ctx, string(content), filepath.Base(path), w.collection, nil)
	if err != nil {
		slog.Warn("index watched file failed",
			slog.String("path", path),
			slog.Any("error", err))
		return
	}

	w.mu.Lock()
	w.docIDs[path] = result.DocumentID
	w.mu.Unlock()

	slog.Info("watched file indexed",
		slog.String("path", path),
		slog.String("document_id", result.DocumentID),
		slog.Int("chunks", result.Chunks))

	select {
	case w.indexed <- path:
	default:
	}
}

func (w *Watcher) removeFile(ctx context.Context, path string) {
	w.mu.Lock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
	docID := w.docIDs[path]
	delete(w.docIDs, path)
	w.mu.Unlock()

	if docID == "" {
		return
	}
	if _, err := w.indexer.DeleteDocument(ctx, docID); err != nil {
		slog.Warn("remove watched file from index failed",
			slog.String("path", path),
			slog.Any("error", err))
		return
	}
	slog.Info("watched file removed from index", slog.String("path", path))
}

// Indexed exposes processed paths for synchronization in tests.
func (w *Watcher) Indexed() <-chan string {
	return w.indexed
}

func watchable(path string) bool {
	_, ok := watchedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

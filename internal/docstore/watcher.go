package docstore

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watchable file extensions; everything else in the drop folder is ignored.
var watchExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Watcher ingests files dropped into a folder. New .txt and .md files are
// chunked into the document store and then moved to an ingested/ subdirectory
// so a restart never double-ingests them.
type Watcher struct {
	dir     string
	store   *Store
	userID  string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher over dir. Ingested documents are tagged with
// userID so they surface in that user's context.
func NewWatcher(dir string, store *Store, userID string) *Watcher {
	return &Watcher{
		dir:    dir,
		store:  store,
		userID: userID,
		done:   make(chan struct{}),
	}
}

// Start drains files already sitting in the folder, then begins watching for
// new ones. Call Stop to clean up.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, "ingested"), 0o700); err != nil {
		return err
	}

	w.drainExisting(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop(ctx)
	log.Printf("docstore: watching %s for documents", w.dir)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				w.processFile(ctx, evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("docstore: watcher error: %v", err)
		}
	}
}

func (w *Watcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.processFile(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	if !watchExtensions[strings.ToLower(filepath.Ext(name))] {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// file already consumed, or still being written
		return
	}

	result, err := w.store.AddDocument(ctx, name, string(data), map[string]interface{}{
		"user_id":  w.userID,
		"filename": name,
	})
	if err != nil {
		log.Printf("docstore: ingest %s failed: %v", name, err)
		return
	}
	log.Printf("docstore: ingested %s as %s (%d chunks)", name, result.DocID, result.Chunks)

	if err := os.Rename(path, filepath.Join(w.dir, "ingested", name)); err != nil {
		log.Printf("docstore: could not archive %s: %v", name, err)
	}
}

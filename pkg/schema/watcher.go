package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a ReloadableCatalog whenever its YAML file changes on
// disk. The parent directory is watched so atomic renames by editors and
// config management are seen. Changes are debounced and ignored when the
// content hash is unchanged. An invalid file keeps the previous catalog.
type Watcher struct {
	path     string
	catalog  *ReloadableCatalog
	debounce time.Duration

	mu       sync.Mutex
	lastHash string
}

func NewWatcher(path string, catalog *ReloadableCatalog, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{path: filepath.Clean(path), catalog: catalog, debounce: debounce}
}

// LoadInitial reads the file once and installs it. It is a configuration
// error for the file to be missing or invalid at startup.
func (w *Watcher) LoadInitial() error {
	changed, err := w.Reload()
	if err != nil {
		return err
	}
	if !changed {
		logger.Debug("[Schema] Catalog unchanged", "path", w.path)
	}
	return nil
}

// Reload reads the file and swaps the catalog if its content changed.
func (w *Watcher) Reload() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("read catalog: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	w.mu.Lock()
	defer w.mu.Unlock()
	if hash == w.lastHash {
		return false, nil
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return false, err
	}
	version, err := w.catalog.Swap(def)
	if err != nil {
		return false, err
	}
	w.lastHash = hash
	logger.Info("[Schema] Catalog loaded", "path", w.path, "version", version)
	return true, nil
}

// Run blocks until ctx is done, reloading on file events.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	logger.Info("[Schema] Watching catalog", "path", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := w.Reload(); err != nil {
				logger.Error("[Schema] Catalog reload failed, keeping previous version", "path", w.path, "err", err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Schema] Watcher error", "err", err)
		}
	}
}

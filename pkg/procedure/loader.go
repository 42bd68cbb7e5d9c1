package procedure

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Library loads and optionally hot-reloads procedure definitions from
// YAML files. It backs demo mode and the offline resolver.
type Library struct {
	dir string

	mu         sync.RWMutex
	procedures map[string]*Definition
}

// NewLibrary creates a library rooted at the given directory.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:        dir,
		procedures: make(map[string]*Definition),
	}
}

// LoadAll loads every .yaml and .yml file in the library directory.
func (l *Library) LoadAll() (map[string]*Definition, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read procedure dir %q: %w", l.dir, err)
	}

	result := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		def, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		result[def.ID] = def
	}

	l.mu.Lock()
	l.procedures = result
	l.mu.Unlock()

	return result, nil
}

// Get returns a loaded procedure by id.
func (l *Library) Get(id string) (*Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.procedures[id]
	return def, ok
}

// All returns all loaded procedures.
func (l *Library) All() map[string]*Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]*Definition, len(l.procedures))
	for k, v := range l.procedures {
		result[k] = v
	}
	return result
}

func (l *Library) loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// WatchAndReload watches the library directory and reloads on changes.
// Blocks until the done channel is closed.
func (l *Library) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ext := filepath.Ext(event.Name)
				if ext == ".yaml" || ext == ".yml" {
					l.LoadAll()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

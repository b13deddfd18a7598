package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/logging"
)

// Watcher reports changes to the settings files of a home directory:
// config.toml, auth.json, AGENTS.md and any extra file given to NewWatcher.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	onChange func(path string)
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher watches home and the directories of the extra files. Relative
// extra paths are resolved against home. onChange receives the cleaned path
// of the file that was written, created, removed or renamed.
func NewWatcher(home string, onChange func(path string), extra ...string) (*Watcher, error) {
	files := map[string]bool{}
	for _, path := range []string{ConfigPath(home), AuthPath(home), filepath.Join(home, AgentsFileName)} {
		files[filepath.Clean(path)] = true
	}
	for _, ref := range extra {
		if ref != "" {
			files[filepath.Clean(ResolvePath(home, ref))] = true
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch directories rather than files so replaced files keep being seen
	dirs := map[string]bool{}
	for file := range files {
		dir := filepath.Dir(file)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}

	return &Watcher{
		watcher:  w,
		files:    files,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins delivering changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	log := logging.Component("watcher")

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(ev.Name)
			if !w.files[name] {
				continue
			}
			log.Debug().Str("path", name).Str("op", ev.Op.String()).Msg("settings file changed")
			w.onChange(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("settings watcher error")
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}

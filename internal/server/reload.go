package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"omr-grader/internal/config"
	omrimage "omr-grader/internal/image"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the config file and the template image and swaps them
// into a running server when either is modified. A file that fails to load
// leaves the server on its previous config and template.
type Reloader struct {
	srv          *Server
	configPath   string
	templatePath string        // overrides the config's paths.template when set
	settle       time.Duration // quiet period after the last event before reloading
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	doneCh       chan struct{}

	configMod   time.Time
	templateMod time.Time
}

// NewReloader records the current modification times of both files as the
// baseline. templatePath may be empty to follow paths.template. settle must
// be positive.
func NewReloader(srv *Server, configPath, templatePath string, settle time.Duration) (*Reloader, error) {
	if settle <= 0 {
		return nil, fmt.Errorf("reload settle time must be positive, got %v", settle)
	}
	r := &Reloader{
		srv:          srv,
		configPath:   configPath,
		templatePath: templatePath,
		settle:       settle,
	}
	var err error
	if r.configMod, err = modTime(configPath); err != nil {
		return nil, err
	}
	if r.templateMod, err = modTime(r.effectiveTemplate(srv.Config())); err != nil {
		return nil, err
	}
	return r, nil
}

// Start watches the directories holding the config and template. Editors
// often save by renaming over the old file, so the directory is watched
// rather than the file itself.
func (r *Reloader) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dirs := map[string]bool{
		filepath.Dir(r.configPath):                        true,
		filepath.Dir(r.effectiveTemplate(r.srv.Config())): true,
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	r.watcher = w
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.watchLoop()
	return nil
}

// Stop stops watching and waits for the watch goroutine to exit.
func (r *Reloader) Stop() {
	if r.watcher == nil {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.watcher.Close()
	r.watcher = nil
}

func (r *Reloader) watchLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.settle)
	defer ticker.Stop()

	var lastEvent time.Time
	for {
		select {
		case <-r.stopCh:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && r.isWatched(ev.Name) {
				lastEvent = time.Now()
			}
		case <-ticker.C:
			if lastEvent.IsZero() || time.Since(lastEvent) < r.settle {
				continue
			}
			lastEvent = time.Time{}
			if _, err := r.CheckNow(); err != nil {
				r.srv.logger.Printf("reload: %v", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.srv.logger.Printf("reload: watch error: %v", err)
		}
	}
}

func (r *Reloader) isWatched(name string) bool {
	name = filepath.Clean(name)
	return name == filepath.Clean(r.configPath) ||
		name == filepath.Clean(r.effectiveTemplate(r.srv.Config()))
}

// CheckNow reloads whichever files changed since the last successful load.
// It reports whether anything was swapped in.
func (r *Reloader) CheckNow() (bool, error) {
	cfgMod, err := modTime(r.configPath)
	if err != nil {
		return false, err
	}

	cfg := r.srv.Config()
	configChanged := cfgMod.After(r.configMod)
	if configChanged {
		loaded, err := config.Load(r.configPath)
		if err != nil {
			return false, fmt.Errorf("keeping previous config: %w", err)
		}
		cfg = loaded
	}

	templatePath := r.effectiveTemplate(cfg)
	tmplMod, err := modTime(templatePath)
	if err != nil {
		return false, err
	}
	templateChanged := tmplMod.After(r.templateMod) || templatePath != r.srv.TemplatePath()

	if !configChanged && !templateChanged {
		return false, nil
	}

	if templateChanged {
		tmpl, err := omrimage.LoadMat(templatePath)
		if err != nil {
			return false, fmt.Errorf("keeping previous template: %w", err)
		}
		r.srv.Swap(cfg, &tmpl, templatePath)
		r.templateMod = tmplMod
		r.srv.logger.Printf("reload: template %s", templatePath)
	} else {
		r.srv.Swap(cfg, nil, "")
	}
	if configChanged {
		r.configMod = cfgMod
		r.srv.logger.Printf("reload: config %s", r.configPath)
	}
	return true, nil
}

func (r *Reloader) effectiveTemplate(cfg *config.Config) string {
	if r.templatePath != "" {
		return r.templatePath
	}
	return cfg.Paths.Template
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}

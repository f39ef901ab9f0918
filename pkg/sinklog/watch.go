package sinklog

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// DefaultDebounce is how long the watcher waits after the last change event
// before reloading
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc is told about every reload attempt
type ReloadFunc func(fc *FileConfig, err error)

// WatchOption configures a Watcher
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a reload
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// OnReload registers fn to run after each reload attempt
func OnReload(fn ReloadFunc) WatchOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher reapplies the threshold and isolated levels of a configuration
// file to a running logger whenever the file changes. Sinks are not rebuilt.
type Watcher struct {
	path     string
	logger   *Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc

	stop chan struct{}
	done chan struct{}
}

// WatchConfig starts watching path on behalf of l. The file's directory is
// watched rather than the file so editors that replace the file on save are
// still seen.
func WatchConfig(path string, l *Logger, opts ...WatchOption) (*Watcher, error) {
	if _, err := detectFormat(path); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating watcher")
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrapf(err, "watching %s", dir)
	}

	w := &Watcher{
		path:     path,
		logger:   l,
		fsw:      fsw,
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.run()
	return w, nil
}

// Close stops the watcher and waits for it to exit
func (w *Watcher) Close() error {
	select {
	case <-w.stop:
		return nil
	default:
	}
	close(w.stop)
	<-w.done
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.done)

	name := filepath.Base(w.path)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.report(types.NewLogError(types.ErrInvalidConfig, "watch", w.path, "", err))

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	fc, err := LoadConfig(w.path)
	if err == nil {
		err = w.apply(fc)
	}
	if err != nil {
		var le *types.LogError
		if !errors.As(err, &le) {
			le = types.NewLogError(types.ErrInvalidConfig, "reload", w.path, "", err)
		}
		w.logger.report(le)
	}
	if w.onReload != nil {
		w.onReload(fc, err)
	}
}

func (w *Watcher) apply(fc *FileConfig) error {
	level, err := types.ParseSeverity(fc.Level)
	if err != nil {
		return err
	}
	isolated, err := types.ParseMask(fc.IsolatedLevels)
	if err != nil {
		return err
	}
	if err := w.logger.SetLevel(level); err != nil {
		return err
	}
	w.logger.SetIsolatedLevels(isolated)
	return nil
}

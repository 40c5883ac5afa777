package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/tessera/pkg/core"
)

// WatchDebounce is the window within which changes of one key are merged.
const WatchDebounce = 50 * time.Millisecond

// Watch implements core.Watchable with fsnotify. Changes made by this
// process and by other programs are both reported. The channel is closed
// once ctx is done.
func (b *Bucket) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := b.addDirs(watcher, b.Path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	out := make(chan core.Event, 64)
	w := &watchLoop{
		bucket:   b,
		pattern:  pattern,
		watcher:  watcher,
		out:      out,
		debounce: newDebouncer(WatchDebounce),
	}
	b.setWatchers(1)

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		b.reportError(fmt.Errorf("watcher: %w", err))
	}))
	return out, nil
}

type watchLoop struct {
	bucket   *Bucket
	pattern  string
	watcher  *fsnotify.Watcher
	out      chan core.Event
	debounce *debouncer
}

func (w *watchLoop) run(ctx context.Context) error {
	err := w.loop(ctx)

	// Pending timers may still emit; out is closed only after they finish.
	w.debounce.stop()
	_ = w.watcher.Close()
	w.bucket.setWatchers(-1)
	close(w.out)
	return err
}

func (w *watchLoop) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.bucket.reportError(err)
		}
	}
}

func (w *watchLoop) handle(ctx context.Context, event fsnotify.Event) {
	w.bucket.logger.Debug("fs event", "name", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.bucket.addDirs(w.watcher, event.Name); err != nil {
				w.bucket.reportError(err)
			}
			return
		}
	}

	key, ok := w.bucket.keyOf(event.Name)
	if !ok {
		return
	}
	if w.pattern != "" && !matchKey(w.pattern, key) {
		return
	}

	var typ core.EventType
	switch {
	case event.Has(fsnotify.Create):
		typ = core.EventCreate
	case event.Has(fsnotify.Write):
		typ = core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		typ = core.EventDelete
	default:
		return
	}

	w.debounce.add(core.Event{Type: typ, Key: key, Timestamp: time.Now().Unix()}, func(ev core.Event) {
		w.bucket.recordEvent()
		select {
		case w.out <- ev:
		case <-ctx.Done():
		}
	})
}

// addDirs watches root and every non-hidden directory below it.
func (b *Bucket) addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != b.Path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (b *Bucket) reportError(err error) {
	if b.config.ErrorHandler != nil {
		b.config.ErrorHandler(err)
		return
	}
	b.logger.Error("fs bucket", "error", err)
}

// debouncer merges the events of a key raised within its delay into one.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]core.Event
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]core.Event),
	}
}

func (d *debouncer) add(ev core.Event, emit func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	// A write right after a create is still a creation.
	if prev, ok := d.pending[ev.Key]; ok && prev.Type == core.EventCreate && ev.Type == core.EventModify {
		ev.Type = core.EventCreate
	}
	d.pending[ev.Key] = ev
	if _, scheduled := d.timers[ev.Key]; scheduled {
		return
	}

	key := ev.Key
	d.wg.Add(1)
	d.timers[key] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		latest := d.pending[key]
		delete(d.pending, key)
		delete(d.timers, key)
		d.mu.Unlock()
		emit(latest)
	})
}

// stop drops pending events and waits for in-flight emissions.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

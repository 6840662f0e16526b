package registry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rileyhilliard/rdpmon/internal/errors"
)

// reloadDelay lets a burst of writes to the registry file settle before it
// is re-read.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the registry whenever its file changes on disk, until ctx
// ends. The directory is watched rather than the file because saves
// replace the file by renaming over it.
func (r *Registry) Watch(ctx context.Context) error {
	fs, ok := r.store.(interface{ Path() string })
	if !ok {
		return errors.New(errors.ErrRegistry, "Registry store has no file to watch", "")
	}
	path := fs.Path()
	dir, name := filepath.Dir(path), filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't watch the server registry for changes",
			"Edits made elsewhere are still picked up at the next refresh.")
	}
	defer w.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't create registry directory",
			"Check permissions on "+dir)
	}
	if err := w.Add(dir); err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistry,
			"Couldn't watch "+dir+" for registry changes",
			"Edits made elsewhere are still picked up at the next refresh.")
	}
	r.log.Debug("watching %s for registry changes", path)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}
			settle = time.After(reloadDelay)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("registry watcher: %v", err)

		case <-settle:
			settle = nil
			if _, err := r.Reload(); err != nil {
				r.log.Warn("registry %s changed but couldn't be reloaded, keeping the current roster: %v", path, err)
			}
		}
	}
}

// Package watch re-validates an externally edited patient JSON file whenever
// it changes on disk, reporting each outcome through a callback. It backs
// the edit-and-recheck loop: fix the file in any editor, see immediately
// whether the record now passes the validation gate.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ssomangili/medextract/internal/schema"
)

// debounce coalesces the write bursts editors produce for a single save.
const debounce = 200 * time.Millisecond

// Watch validates path now and again after every change, calling onChange
// with the outcome each time. It blocks until ctx is done or the watcher
// fails.
func Watch(ctx context.Context, path string, onChange func(*schema.PatientRecord, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that save via
	// rename-and-replace drop the watch on the inode.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	onChange(check(path))

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			onChange(check(path))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		}
	}
}

func check(path string) (*schema.PatientRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return schema.Validate(data)
}

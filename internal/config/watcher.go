/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/sapcc/go-bits/logg"
)

// Watcher watches the configuration file for changes. The view schema is
// immutable after load, so the process restarts (via its supervisor) instead
// of reloading in place.
type Watcher struct {
	backend *fsnotify.Watcher
	path    string
}

// NewWatcher initializes a Watcher on the given configuration file.
func NewWatcher(path string) (*Watcher, error) {
	backend, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cannot initialize filesystem watcher: %w", err)
	}
	err = backend.Add(path)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("cannot setup filesystem watcher on %s: %w", path, err)
	}
	return &Watcher{backend: backend, path: path}, nil
}

// WaitForChange blocks until the configuration file is written, removed or
// renamed, or until the context expires. It reports whether a change was
// observed.
func (w *Watcher) WaitForChange(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-w.backend.Events:
			if !ok {
				return false
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				logg.Info("configuration file %s changed (%s)", w.path, event.Op)
				return true
			}
		case err, ok := <-w.backend.Errors:
			if !ok {
				return false
			}
			logg.Error("error while watching %s: %s", w.path, err.Error())
		}
	}
}

// Close cleans up the watcher backend.
func (w *Watcher) Close() error {
	return w.backend.Close()
}

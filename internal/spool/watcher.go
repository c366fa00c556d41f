/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package spool

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the spool directory for new event files. This wraps an
// fsnotify.Watcher with a filter for the events that matter to us.
type Watcher struct {
	Backend *fsnotify.Watcher
	dir     string
}

// NewWatcher initializes a new Watcher.
func NewWatcher(dir string) (*Watcher, error) {
	backend, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cannot initialize filesystem watcher: %w", err)
	}
	err = backend.Add(dir)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("cannot setup filesystem watcher on %s: %w", dir, err)
	}
	return &Watcher{backend, dir}, nil
}

// IsRelevant returns whether the event announces a new or updated event
// file. Removals (including our own) are not interesting.
func (w *Watcher) IsRelevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return filepath.Dir(ev.Name) == filepath.Clean(w.dir) && isEventFileName(filepath.Base(ev.Name))
}

// Close cleans up the watcher backend.
func (w *Watcher) Close() error {
	err := w.Backend.Close()
	if err != nil {
		return fmt.Errorf("cannot cleanup filesystem watcher: %w", err)
	}
	w.Backend = nil
	return nil
}

/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package spool delivers change events to the sync engine. The change log
// drops one JSON file per event into the spool directory; files are
// processed in the lexical order of their names.
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
)

const (
	eventFileSuffix = ".json"
	failedDirName   = "failed"
)

// Handler processes a single event.
type Handler func(ctx context.Context, ev core.Event) error

// Spool processes the event files in a directory.
type Spool struct {
	Dir     string
	Handler Handler
	//How long to wait before retrying an event that failed transiently.
	RetryInterval time.Duration
}

func isEventFileName(name string) bool {
	return strings.HasSuffix(name, eventFileSuffix) && !strings.HasPrefix(name, ".")
}

// ReadEventFile reads and validates a single event file.
func ReadEventFile(path string) (core.Event, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return core.Event{}, err
	}
	var ev core.Event
	err = json.Unmarshal(buf, &ev)
	if err != nil {
		return core.Event{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	err = ev.Validate()
	if err != nil {
		return core.Event{}, fmt.Errorf("invalid event in %s: %w", path, err)
	}
	return ev, nil
}

// PendingFiles lists the event files that are waiting for processing, in
// processing order.
func (s *Spool) PendingFiles() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isEventFileName(entry.Name()) {
			result = append(result, entry.Name())
		}
	}
	slices.Sort(result)
	return result, nil
}

// ProcessPending handles all pending event files. Successfully processed
// files are removed. Files that fail permanently are moved into the "failed"
// subdirectory, and processing continues with the next file. When an event
// fails transiently, its file is left in place and the error is returned, so
// that no later event overtakes it.
func (s *Spool) ProcessPending(ctx context.Context) error {
	names, err := s.PendingFiles()
	if err != nil {
		return fmt.Errorf("cannot list spool directory: %w", err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(s.Dir, name)
		ev, err := ReadEventFile(path)
		if err == nil {
			err = s.Handler(ctx, ev)
		}

		switch {
		case err == nil:
			err = os.Remove(path)
			if err != nil {
				return err
			}
		case core.IsTransient(err):
			return fmt.Errorf("while processing %s: %w", name, err)
		default:
			logg.Error("while processing %s: %s", name, err.Error())
			err = s.moveToFailed(name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Spool) moveToFailed(name string) error {
	failedDir := filepath.Join(s.Dir, failedDirName)
	err := os.MkdirAll(failedDir, 0700)
	if err != nil {
		return err
	}
	err = os.Rename(filepath.Join(s.Dir, name), filepath.Join(failedDir, name))
	if err != nil {
		return fmt.Errorf("cannot move %s out of the way: %w", name, err)
	}
	logg.Info("moved %s into %s", name, failedDir)
	return nil
}

// Run processes pending event files and then watches for new ones until
// `ctx` expires. Transient failures are retried after RetryInterval.
func (s *Spool) Run(ctx context.Context) error {
	watcher, err := NewWatcher(s.Dir)
	if err != nil {
		return err
	}
	retryInterval := s.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}

	for {
		var retry <-chan time.Time
		err := s.ProcessPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if !core.IsTransient(err) {
				watcher.Close()
				return err
			}
			logg.Error("%s (will retry in %s)", err.Error(), retryInterval)
			retry = time.After(retryInterval)
		}

	WAIT:
		for {
			select {
			case <-ctx.Done():
				return watcher.Close()
			case err := <-watcher.Backend.Errors:
				watcher.Close()
				return fmt.Errorf("error while watching %s for changes: %w", s.Dir, err)
			case ev := <-watcher.Backend.Events:
				if !watcher.IsRelevant(ev) {
					continue
				}
				//wait for whatever is writing the file to complete
				time.Sleep(25 * time.Millisecond)
				//a file arriving during a retry wait must not overtake the failed one
				if retry == nil {
					break WAIT
				}
			case <-retry:
				break WAIT
			}
		}
	}
	return watcher.Close()
}

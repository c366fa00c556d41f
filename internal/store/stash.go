/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package store persists the state that the sync engine needs to carry across
// events, most notably the snapshots stashed between the two halves of a
// rename.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
)

const stashSuffix = ".stash"

// FileStash implements core.Stash by storing one CBOR file per key in a
// directory.
type FileStash struct {
	dir   string
	mutex sync.Mutex
	//This contains the known contents of each stash file, to avoid pointless
	//rewrites when the same snapshot is stashed twice.
	diskState map[string][]byte
}

// persistedSnapshot is what gets written into a stash file.
type persistedSnapshot struct {
	SchemaVersion uint          `cbor:"1,keyasint"`
	Key           string        `cbor:"2,keyasint"`
	Snapshot      core.Snapshot `cbor:"3,keyasint"`
}

// NewFileStash initializes a FileStash. The directory is created if
// necessary.
func NewFileStash(dir string) (*FileStash, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, fmt.Errorf("cannot create stash directory: %w", err)
	}
	return &FileStash{dir: dir, diskState: make(map[string][]byte)}, nil
}

func (s *FileStash) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+stashSuffix)
}

// Stash implements the core.Stash interface.
func (s *FileStash) Stash(ctx context.Context, key string, snapshot core.Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	buf, err := cbor.Marshal(persistedSnapshot{SchemaVersion: 1, Key: key, Snapshot: snapshot})
	if err != nil {
		return fmt.Errorf("cannot encode snapshot for %q: %w", key, err)
	}
	if bytes.Equal(buf, s.diskState[key]) {
		//avoid pointless writes
		return nil
	}

	path := s.path(key)
	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%d", filepath.Base(path), os.Getpid()))
	err = os.WriteFile(tmpPath, buf, 0600)
	if err != nil {
		return err
	}
	err = os.Rename(tmpPath, path)
	if err != nil {
		return err
	}
	s.diskState[key] = buf
	logg.Debug("stashed snapshot under %q", key)
	return nil
}

// Unstash implements the core.Stash interface.
func (s *FileStash) Unstash(ctx context.Context, key string) (core.Snapshot, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	path := s.path(key)
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ps persistedSnapshot
	err = cbor.Unmarshal(buf, &ps)
	if err != nil {
		return nil, false, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if ps.SchemaVersion != 1 {
		return nil, false, fmt.Errorf("found stash file %s with schema version %d, but only schema version 1 is understood", path, ps.SchemaVersion)
	}
	if ps.Key != key {
		return nil, false, fmt.Errorf("stash file %s belongs to key %q instead of %q", path, ps.Key, key)
	}

	err = os.Remove(path)
	if err != nil {
		return nil, false, err
	}
	delete(s.diskState, key)
	logg.Debug("unstashed snapshot under %q", key)
	return ps.Snapshot, true, nil
}

// Keys lists the keys of all currently stashed snapshots in sorted order.
// A long list of stashed snapshots indicates renames that never completed.
func (s *FileStash) Keys() ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), stashSuffix)
		if !ok || entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		key, err := url.PathUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("unexpected file in stash directory: %s", entry.Name())
		}
		result = append(result, key)
	}
	slices.Sort(result)
	return result, nil
}

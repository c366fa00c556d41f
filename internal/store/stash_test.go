/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/test"
)

func TestStashRoundtrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stash")
	s, err := NewFileStash(dir)
	test.ExpectNoError(t, err)

	//nothing stashed yet
	_, ok, err := s.Unstash(ctx, "user-1234")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "ok", ok, false)

	snapshot := core.Snapshot{
		"entryDN":   {"uid=jane,cn=users,dc=example,dc=org"},
		"entryUUID": {"1234"},
		"mail":      {"jane@example.org", "jd@example.org"},
	}
	test.ExpectNoError(t, s.Stash(ctx, "user-1234", snapshot))
	test.ExpectNoError(t, s.Stash(ctx, "group/with/slashes", core.Snapshot{"cn": {"staff"}}))

	keys, err := s.Keys()
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "keys", keys, []string{"group/with/slashes", "user-1234"})

	info, err := os.Stat(s.path("user-1234"))
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "file mode", info.Mode().Perm(), os.FileMode(0600))

	//a second FileStash on the same directory sees the same state
	s2, err := NewFileStash(dir)
	test.ExpectNoError(t, err)
	actual, ok, err := s2.Unstash(ctx, "user-1234")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "ok", ok, true)
	assert.DeepEqual(t, "snapshot", actual, snapshot)

	//unstashing removes the entry
	_, ok, err = s2.Unstash(ctx, "user-1234")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "ok", ok, false)
	keys, err = s2.Keys()
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "keys", keys, []string{"group/with/slashes"})
}

func TestStashRejectsForeignFiles(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStash(t.TempDir())
	test.ExpectNoError(t, err)

	test.ExpectNoError(t, os.WriteFile(s.path("user-1"), []byte("garbage"), 0600))
	_, _, err = s.Unstash(ctx, "user-1")
	if err == nil {
		t.Error("expected Unstash to fail on a malformed file, but got no error")
	}
}

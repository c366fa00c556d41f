/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package journal

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sapcc/go-bits/assert"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/syncer"
	"github.com/majewsky/dirsync/internal/test"
)

// databaseDouble records the arguments of all Exec calls.
type databaseDouble struct {
	execArgs [][]any
	execErr  error
}

func (d *databaseDouble) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execArgs = append(d.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), d.execErr
}

func (d *databaseDouble) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestWrapRecordsOutcome(t *testing.T) {
	db := &databaseDouble{}
	now := time.Unix(1700000000, 0).UTC()
	j := &Journal{db: db, now: func() time.Time { return now }}

	handle := j.Wrap(func(ctx context.Context, ev core.Event) (syncer.Outcome, error) {
		if ev.DN == "uid=john,dc=example,dc=org" {
			return syncer.Outcome{Transition: core.TransitionCreate}, core.Errorf(core.ErrLimitReached, "no more licenses")
		}
		return syncer.Outcome{Transition: core.TransitionCreate, RemoteID: "12345"}, nil
	})

	outcome, err := handle(context.Background(), core.Event{Kind: core.KindUser, DN: "uid=jane,dc=example,dc=org", Command: core.CommandAdd})
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "outcome", outcome, syncer.Outcome{Transition: core.TransitionCreate, RemoteID: "12345"})

	_, err = handle(context.Background(), core.Event{Kind: core.KindUser, DN: "uid=john,dc=example,dc=org", Command: core.CommandAdd})
	assert.DeepEqual(t, "error kind", core.KindOf(err), core.ErrLimitReached)

	assert.DeepEqual(t, "recorded rows", db.execArgs, [][]any{
		{now, "user", "uid=jane,dc=example,dc=org", "add", "create", "12345", ""},
		{now, "user", "uid=john,dc=example,dc=org", "add", "create", "", err.Error()},
	})
}

func TestWrapIgnoresJournalFailure(t *testing.T) {
	db := &databaseDouble{execErr: errors.New("connection refused")}
	j := &Journal{db: db, now: time.Now}
	handle := j.Wrap(func(ctx context.Context, ev core.Event) (syncer.Outcome, error) {
		return syncer.Outcome{Transition: core.TransitionDelete}, nil
	})
	outcome, err := handle(context.Background(), core.Event{Kind: core.KindGroup, DN: "cn=staff", Command: core.CommandDelete})
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "transition", outcome.Transition, core.TransitionDelete)
}

// This test needs a real database. It is skipped unless
// DIRSYNC_TEST_JOURNAL_DSN is set.
func TestJournalRoundtrip(t *testing.T) {
	dsn := os.Getenv("DIRSYNC_TEST_JOURNAL_DSN")
	if dsn == "" {
		t.Skip("DIRSYNC_TEST_JOURNAL_DSN is not set")
	}
	ctx := context.Background()
	j, err := Open(ctx, dsn)
	test.ExpectNoError(t, err)
	defer j.Close()

	dn := "uid=roundtrip-" + time.Now().Format("150405.000000") + ",dc=example,dc=org"
	entry := Entry{
		RecordedAt: time.Now().UTC().Truncate(time.Second),
		Kind:       core.KindUser,
		DN:         dn,
		Command:    core.CommandModify,
		Transition: core.TransitionModify,
		RemoteID:   "12345",
	}
	test.ExpectNoError(t, j.Record(ctx, entry))

	entries, err := j.Recent(ctx, dn, 10)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "entry count", len(entries), 1)
	assert.DeepEqual(t, "remote ID", entries[0].RemoteID, "12345")
	assert.DeepEqual(t, "time", entries[0].RecordedAt.Equal(entry.RecordedAt), true)
}

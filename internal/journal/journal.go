/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package journal records every processed event in a Postgres table, so that
// operators can find out what happened to a particular directory entry.
package journal

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/syncer"
)

//go:embed schema.sql
var schemaSQL string

// Entry is a row in the journal.
type Entry struct {
	RecordedAt time.Time       `db:"recorded_at" json:"recorded_at"`
	Kind       core.EntryKind  `db:"kind" json:"kind"`
	DN         string          `db:"dn" json:"dn"`
	Command    core.Command    `db:"command" json:"command"`
	Transition core.Transition `db:"transition" json:"transition"`
	RemoteID   string          `db:"remote_id" json:"remote_id,omitempty"`
	Error      string          `db:"error" json:"error,omitempty"`
}

// database is the subset of *pgxpool.Pool that we use.
type database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Journal writes into the journal table.
type Journal struct {
	db    database
	close func()
	now   func() time.Time
}

// Open connects to the database and creates the journal table if necessary.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to journal database: %w", err)
	}
	_, err = pool.Exec(ctx, schemaSQL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot create journal table: %w", err)
	}
	return &Journal{db: pool, close: pool.Close, now: time.Now}, nil
}

// Close releases the database connections.
func (j *Journal) Close() {
	if j.close != nil {
		j.close()
	}
}

// Record inserts an entry into the journal. If RecordedAt is not set, the
// current time is used.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.now()
	}
	_, err := j.db.Exec(ctx,
		`INSERT INTO dirsync_journal (recorded_at, kind, dn, command, transition, remote_id, error) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.RecordedAt, string(e.Kind), e.DN, string(e.Command), string(e.Transition), e.RemoteID, e.Error,
	)
	if err != nil {
		return fmt.Errorf("cannot write journal entry for %s: %w", e.DN, err)
	}
	return nil
}

// Recent returns the most recent journal entries, newest first. If dn is not
// empty, only entries for that DN are returned.
func (j *Journal) Recent(ctx context.Context, dn string, limit int) ([]Entry, error) {
	rows, err := j.db.Query(ctx,
		`SELECT recorded_at, kind, dn, command, transition, remote_id, error FROM dirsync_journal
		  WHERE $1 = '' OR dn = $1 ORDER BY id DESC LIMIT $2`,
		dn, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("cannot read journal: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Entry])
}

// Wrap returns a handler that calls the given handler and records the
// result in the journal. Failures to write the journal are logged, but do not
// fail the event.
func (j *Journal) Wrap(handle syncer.HandlerFunc) syncer.HandlerFunc {
	return func(ctx context.Context, ev core.Event) (syncer.Outcome, error) {
		outcome, err := handle(ctx, ev)
		entry := Entry{
			Kind:       ev.Kind,
			DN:         ev.DN,
			Command:    ev.Command,
			Transition: outcome.Transition,
			RemoteID:   outcome.RemoteID,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		jerr := j.Record(ctx, entry)
		if jerr != nil {
			logg.Error(jerr.Error())
		}
		return outcome, err
	}
}

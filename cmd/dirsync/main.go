/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"

	"github.com/majewsky/dirsync/internal/api"
	"github.com/majewsky/dirsync/internal/config"
	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/journal"
	"github.com/majewsky/dirsync/internal/spool"
	"github.com/majewsky/dirsync/internal/syncer"
)

func main() {
	env, errs := config.ReadEnvironment()
	errs.LogFatalIfError()
	logg.ShowDebug = env.Bool("DIRSYNC_DEBUG")

	file := must.Return(config.LoadFile(env["DIRSYNC_CONFIG_PATH"]))
	cfg, errs := file.Compile(env)
	errs.LogFatalIfError()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc := must.Return(config.Connect(ctx, env, cfg))
	handle := syncer.HandlerFunc(svc.Orchestrator.Handle)

	var j *journal.Journal
	if dsn := env["DIRSYNC_JOURNAL_DSN"]; dsn != "" {
		j = must.Return(journal.Open(ctx, dsn))
		defer j.Close()
		handle = j.Wrap(handle)
	}
	//spool and API may deliver events at the same time
	handle = syncer.Serialized(handle)

	sp := &spool.Spool{
		Dir: env["DIRSYNC_SPOOL_DIR"],
		Handler: func(ctx context.Context, ev core.Event) error {
			outcome, err := handle(ctx, ev)
			if err == nil {
				logg.Info("processed %s event for %s %s: %s", ev.Command, ev.Kind, ev.DN, outcome.Transition)
			}
			return err
		},
		RetryInterval: env.RetryInterval(),
	}
	must.Succeed(os.MkdirAll(sp.Dir, 0700))
	go func() {
		must.Succeed(sp.Run(ctx))
	}()

	handler := api.API{
		Handle:         handle,
		Remote:         svc.Remote,
		PendingEvents:  sp.PendingFiles,
		PendingRenames: svc.Stash.Keys,
		Journal:        j,
	}.HTTPHandler()
	server := &http.Server{
		Addr:              env["DIRSYNC_API_LISTEN"],
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		must.Succeed(server.Shutdown(shutdownCtx))
	}()

	logg.Info("listening on %s", server.Addr)
	err := server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		logg.Fatal(err.Error())
	}
}

/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/spf13/pflag"

	"github.com/majewsky/dirsync/internal/config"
	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/spool"
	"github.com/majewsky/dirsync/internal/syncer"
)

const usage = `Usage: dirsync-ctl <command> [options]

Commands:
  clean --kind users|groups   remove all links to remote objects from the local directory
  check                       check whether the remote directory accepts our credentials
  process FILE...             process the given event files synchronously
  pending                     list queued events and incomplete renames
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	env, errs := config.ReadEnvironment()
	errs.LogFatalIfError()
	logg.ShowDebug = env.Bool("DIRSYNC_DEBUG")
	ctx := context.Background()

	var ok bool
	switch command {
	case "clean":
		ok = runClean(ctx, env, args)
	case "check":
		ok = runCheck(ctx, env, args)
	case "process":
		ok = runProcess(ctx, env, args)
	case "pending":
		ok = runPending(env, args)
	case "help", "--help", "-h":
		fmt.Print(usage)
		ok = true
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

func parseFlags(fs *pflag.FlagSet, args []string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of dirsync-ctl %s:\n%s", fs.Name(), fs.FlagUsages())
	}
	err := fs.Parse(args)
	if err != nil {
		os.Exit(2)
	}
}

func loadConfig(env config.Environment) config.Config {
	file := must.Return(config.LoadFile(env["DIRSYNC_CONFIG_PATH"]))
	cfg, errs := file.Compile(env)
	errs.LogFatalIfError()
	return cfg
}

func runClean(ctx context.Context, env config.Environment, args []string) bool {
	fs := pflag.NewFlagSet("clean", pflag.ContinueOnError)
	kind := fs.String("kind", "", `which entries to clean ("users" or "groups")`)
	parseFlags(fs, args)

	var entryKind core.EntryKind
	switch *kind {
	case "users":
		entryKind = core.KindUser
	case "groups":
		entryKind = core.KindGroup
	default:
		fs.Usage()
		os.Exit(2)
	}

	local := must.Return(config.ConnectLDAP(env, loadConfig(env).Store))
	count, err := local.Clean(ctx, entryKind)
	if err != nil {
		logg.Error("cleanup failed after %d entries: %s", count, err.Error())
		return false
	}
	fmt.Printf("removed links to remote objects from %d %s\n", count, *kind)
	return true
}

func runCheck(ctx context.Context, env config.Environment, args []string) bool {
	parseFlags(pflag.NewFlagSet("check", pflag.ContinueOnError), args)

	remote := must.Return(config.ConnectGoogle(ctx, env))
	state := syncer.CheckConnection(ctx, remote)
	switch {
	case state.Connected:
		fmt.Println("connected to remote directory")
	case state.WaitingForAuthorization:
		fmt.Println("waiting for authorization: " + state.Message)
	default:
		fmt.Println("not connected: " + state.Message)
	}
	return state.Connected
}

func runProcess(ctx context.Context, env config.Environment, args []string) bool {
	fs := pflag.NewFlagSet("process", pflag.ContinueOnError)
	parseFlags(fs, args)
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	svc := must.Return(config.Connect(ctx, env, loadConfig(env)))
	ok := true
	for _, path := range fs.Args() {
		ev, err := spool.ReadEventFile(path)
		if err != nil {
			logg.Error(err.Error())
			ok = false
			continue
		}
		outcome, err := svc.Orchestrator.Handle(ctx, ev)
		if err != nil {
			logg.Error("while processing %s: %s", path, err.Error())
			fmt.Printf("%s: %s\n", path, core.UserMessage(err))
			ok = false
			continue
		}
		if outcome.RemoteID == "" {
			fmt.Printf("%s: %s\n", path, outcome.Transition)
		} else {
			fmt.Printf("%s: %s (remote ID %s)\n", path, outcome.Transition, outcome.RemoteID)
		}
	}
	return ok
}

func runPending(env config.Environment, args []string) bool {
	parseFlags(pflag.NewFlagSet("pending", pflag.ContinueOnError), args)

	sp := spool.Spool{Dir: env["DIRSYNC_SPOOL_DIR"]}
	files := must.Return(sp.PendingFiles())
	stash := must.Return(config.OpenStash(env))
	keys := must.Return(stash.Keys())

	fmt.Printf("%d queued events\n", len(files))
	for _, name := range files {
		fmt.Println("  " + name)
	}
	fmt.Printf("%d incomplete renames\n", len(keys))
	for _, key := range keys {
		fmt.Println("  " + key)
	}
	return true
}

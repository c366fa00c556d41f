/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"context"
	"path/filepath"

	"github.com/majewsky/dirsync/internal/gdirectory"
	"github.com/majewsky/dirsync/internal/ldap"
	"github.com/majewsky/dirsync/internal/store"
	"github.com/majewsky/dirsync/internal/syncer"
)

// ConnectLDAP connects to the LDAP server and builds the LocalStore on top of
// this connection.
func ConnectLDAP(env Environment, opts ldap.StoreOptions) (*ldap.Store, error) {
	conn, err := ldap.Connect(ldap.ConnectionOptions{
		URL:      env["DIRSYNC_LDAP_URL"],
		BaseDN:   env["DIRSYNC_LDAP_BASE_DN"],
		BindDN:   env["DIRSYNC_LDAP_BIND_DN"],
		Password: env["DIRSYNC_LDAP_BIND_PASSWORD"],
	})
	if err != nil {
		return nil, err
	}
	return ldap.NewStore(conn, opts), nil
}

// ConnectGoogle builds the client for the remote directory.
func ConnectGoogle(ctx context.Context, env Environment) (*gdirectory.Client, error) {
	return gdirectory.NewClient(ctx, env["DIRSYNC_GOOGLE_CREDENTIALS_PATH"], env["DIRSYNC_GOOGLE_ADMIN_EMAIL"])
}

// OpenStash opens the stash inside the state directory.
func OpenStash(env Environment) (*store.FileStash, error) {
	return store.NewFileStash(filepath.Join(env["DIRSYNC_STATE_DIR"], "stash"))
}

// Services contains everything that is needed to process events.
type Services struct {
	Local        *ldap.Store
	Remote       *gdirectory.Client
	Stash        *store.FileStash
	Orchestrator *syncer.Orchestrator
}

// Connect sets up all collaborators of the sync engine.
func Connect(ctx context.Context, env Environment, cfg Config) (*Services, error) {
	local, err := ConnectLDAP(env, cfg.Store)
	if err != nil {
		return nil, err
	}
	remote, err := ConnectGoogle(ctx, env)
	if err != nil {
		return nil, err
	}
	stash, err := OpenStash(env)
	if err != nil {
		return nil, err
	}
	return &Services{
		Local:  local,
		Remote: remote,
		Stash:  stash,
		Orchestrator: &syncer.Orchestrator{
			Remote: remote,
			Local:  local,
			Stash:  stash,
			Users:  cfg.Users,
			Groups: cfg.Groups,
		},
	}, nil
}

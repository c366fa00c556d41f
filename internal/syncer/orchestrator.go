/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package syncer contains the sync orchestrator, which turns change events
// from the local directory into calls to the remote directory.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/resource"
)

// Orchestrator processes change events. It holds all configuration and
// collaborators that are needed for this, and is immutable after
// construction. Events must be processed one at a time.
type Orchestrator struct {
	Remote core.RemoteDirectory
	Local  core.LocalStore
	Stash  core.Stash
	Users  UserConfig
	Groups GroupConfig
}

// ObjectConfig contains the parts of the configuration that are shared
// between users and groups.
type ObjectConfig struct {
	Template  *resource.Template
	Mapping   resource.PropertyMap
	Validator resource.Validator
	//The LDAP attribute that holds the remote ID. It is read from snapshots
	//to avoid a roundtrip to the LocalStore (or when the entry is already
	//gone from the LocalStore).
	RemoteIDAttribute string
}

// UserConfig configures the sync of users.
type UserConfig struct {
	ObjectConfig
	//The flag attribute that enables syncing for a user.
	EnabledAttribute string
}

// GroupConfig configures the sync of groups.
type GroupConfig struct {
	ObjectConfig
	//If false, group events are ignored.
	Enabled bool
	//The LDAP attribute listing the member DNs of a group.
	MemberAttribute string
}

// Outcome describes what Orchestrator.Handle did.
type Outcome struct {
	Transition core.Transition
	//The remote ID of the object after processing, if any.
	RemoteID string
}

// HandlerFunc is the signature of Orchestrator.Handle. It allows to decorate
// event processing (e.g. with journaling).
type HandlerFunc func(ctx context.Context, ev core.Event) (Outcome, error)

// Serialized wraps a handler such that concurrent callers take turns.
func Serialized(handle HandlerFunc) HandlerFunc {
	var mutex sync.Mutex
	return func(ctx context.Context, ev core.Event) (Outcome, error) {
		mutex.Lock()
		defer mutex.Unlock()
		return handle(ctx, ev)
	}
}

// WatchedUserAttributes returns the attributes whose change is relevant for
// the sync of users.
func (o *Orchestrator) WatchedUserAttributes() []string {
	result := []string{o.Users.EnabledAttribute, "mailPrimaryAddress"}
	for _, attr := range o.Users.Mapping.Attributes() {
		if attr != o.Users.EnabledAttribute && attr != "mailPrimaryAddress" {
			result = append(result, attr)
		}
	}
	return result
}

// WatchedGroupAttributes returns the attributes whose change is relevant for
// the sync of groups.
func (o *Orchestrator) WatchedGroupAttributes() []string {
	return []string{"cn", "description", o.Groups.MemberAttribute, "mailPrimaryAddress"}
}

// Handle processes a single change event. Errors are of type *core.Error
// where the failure could be classified. No retries are attempted.
func (o *Orchestrator) Handle(ctx context.Context, ev core.Event) (Outcome, error) {
	err := ev.Validate()
	if err != nil {
		return Outcome{}, core.Errorf(core.ErrConfiguration, "malformed event: %w", err)
	}

	switch ev.Command {
	case core.CommandRenameSave:
		//first half of a rename: the old state must survive until the second half
		err := o.Stash.Stash(ctx, ev.StashKey(), ev.Old)
		if err != nil {
			return Outcome{}, fmt.Errorf("cannot stash old state of %s: %w", ev.DN, err)
		}
		logg.Debug("stashed old state of %s %s until rename completes", ev.Kind, ev.DN)
		return Outcome{Transition: core.TransitionReplayMarker}, nil
	case core.CommandRenameReplay, core.CommandAdd:
		old, found, err := o.Stash.Unstash(ctx, ev.StashKey())
		if err != nil {
			return Outcome{}, fmt.Errorf("cannot unstash old state of %s: %w", ev.DN, err)
		}
		if found {
			logg.Debug("using stashed old state for renamed %s %s", ev.Kind, ev.DN)
			ev.Old = old
		}
	}

	switch ev.Kind {
	case core.KindUser:
		return o.handleUser(ctx, ev)
	case core.KindGroup:
		if !o.Groups.Enabled {
			logg.Debug("ignoring event for group %s: group sync is disabled", ev.DN)
			return Outcome{Transition: core.TransitionNoOp}, nil
		}
		return o.handleGroup(ctx, ev)
	default:
		panic("unreachable")
	}
}

// remoteID finds the remote ID of a local entry, first in the given
// snapshots, then in the LocalStore. An entry that does not exist in the
// LocalStore (anymore) has no remote ID.
func (o *Orchestrator) remoteID(ctx context.Context, kind core.EntryKind, cfg ObjectConfig, dn string, snapshots ...core.Snapshot) (string, error) {
	for _, s := range snapshots {
		if id := s.First(cfg.RemoteIDAttribute); id != "" {
			return id, nil
		}
	}
	ref, err := o.Local.GetRemoteRef(ctx, kind, dn)
	if core.IsKind(err, core.ErrNotFound) {
		return "", nil
	}
	return ref.RemoteID, err
}

// storeRemoteRef records the remote object in the LocalStore. The cached
// document is only written if not nil.
func (o *Orchestrator) storeRemoteRef(ctx context.Context, kind core.EntryKind, dn, remoteID string, doc core.Document) error {
	err := o.Local.SetRemoteRef(ctx, kind, dn, remoteID)
	if err == nil && doc != nil {
		err = o.Local.SetRemoteData(ctx, kind, dn, doc)
	}
	if err != nil {
		return fmt.Errorf("cannot record remote ID %q for %s: %w", remoteID, dn, err)
	}
	return nil
}

func remoteIDOf(rt core.ResourceType, doc core.Document) (string, error) {
	id, ok := doc.GetString("id")
	if !ok || id == "" {
		return "", core.NewError(core.ErrTransportFailure, "parse response for", string(rt), "",
			fmt.Errorf("response did not contain an ID"))
	}
	return id, nil
}

// conflictingKey returns the key of the object that a failed Create collided
// with. The remote directory may have rewritten the address in the document,
// so the key reported by the error takes precedence.
func conflictingKey(err error, doc core.Document, field string) string {
	var e *core.Error
	if errors.As(err, &e) && e.Key != "" {
		return e.Key
	}
	key, _ := doc.GetString(field)
	return key
}

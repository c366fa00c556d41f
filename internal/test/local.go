/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/majewsky/dirsync/internal/core"
)

// LocalEntry is an entry in a LocalStoreDouble.
type LocalEntry struct {
	Kind     core.EntryKind //empty for entries that are neither users nor groups
	UUID     string
	Enabled  bool
	RemoteID string
	//Data is the cached remote document. DataCleared is set when a nil
	//document was written.
	Data        core.Document
	DataCleared bool
	Members     []string //only for groups
}

// LocalStoreDouble is an in-memory implementation of the core.LocalStore
// interface.
type LocalStoreDouble struct {
	Entries map[string]*LocalEntry //by DN
}

// NewLocalStoreDouble builds an empty LocalStoreDouble.
func NewLocalStoreDouble() *LocalStoreDouble {
	return &LocalStoreDouble{Entries: make(map[string]*LocalEntry)}
}

func (d *LocalStoreDouble) get(op, dn string) (*LocalEntry, error) {
	entry, exists := d.Entries[dn]
	if !exists {
		return nil, core.NewError(core.ErrNotFound, op, "entry", dn, errors.New("no such object"))
	}
	return entry, nil
}

func (d *LocalStoreDouble) member(dn string, entry *LocalEntry) core.Member {
	return core.Member{
		RemoteObjectRef: core.RemoteObjectRef{Kind: entry.Kind, LocalID: dn, RemoteID: entry.RemoteID},
		Enabled:         entry.Enabled,
	}
}

// GetRemoteRef implements the core.LocalStore interface.
func (d *LocalStoreDouble) GetRemoteRef(ctx context.Context, kind core.EntryKind, dn string) (core.RemoteObjectRef, error) {
	entry, err := d.get("read", dn)
	if err != nil {
		return core.RemoteObjectRef{}, err
	}
	return core.RemoteObjectRef{Kind: kind, LocalID: dn, RemoteID: entry.RemoteID}, nil
}

// SetRemoteRef implements the core.LocalStore interface.
func (d *LocalStoreDouble) SetRemoteRef(ctx context.Context, kind core.EntryKind, dn, remoteID string) error {
	entry, err := d.get("update", dn)
	if err != nil {
		return err
	}
	entry.RemoteID = remoteID
	return nil
}

// SetRemoteData implements the core.LocalStore interface.
func (d *LocalStoreDouble) SetRemoteData(ctx context.Context, kind core.EntryKind, dn string, doc core.Document) error {
	entry, err := d.get("update", dn)
	if err != nil {
		return err
	}
	entry.Data = doc.Clone()
	entry.DataCleared = doc == nil
	return nil
}

// ResolveMember implements the core.LocalStore interface.
func (d *LocalStoreDouble) ResolveMember(ctx context.Context, dn string) (core.Member, error) {
	entry, err := d.get("resolve", dn)
	if err != nil {
		return core.Member{}, err
	}
	if entry.Kind == "" {
		return core.Member{}, core.Errorf(core.ErrClassificationAmbiguity, "%s is neither a user nor a group", dn)
	}
	return d.member(dn, entry), nil
}

// FindByExternalID implements the core.LocalStore interface. The keys
// "entryUUID" and "entryDN" are understood.
func (d *LocalStoreDouble) FindByExternalID(ctx context.Context, kind core.EntryKind, key, value string) (core.RemoteObjectRef, error) {
	for _, dn := range d.sortedDNs() {
		entry := d.Entries[dn]
		if entry.Kind != kind {
			continue
		}
		if (key == "entryUUID" && entry.UUID == value) || (key == "entryDN" && dn == value) {
			return core.RemoteObjectRef{Kind: kind, LocalID: dn, RemoteID: entry.RemoteID}, nil
		}
	}
	return core.RemoteObjectRef{}, core.NewError(core.ErrNotFound, "find", string(kind), value, errors.New("no such object"))
}

// ListGroupMembers implements the core.LocalStore interface. Members that
// do not exist are skipped.
func (d *LocalStoreDouble) ListGroupMembers(ctx context.Context, groupDN string) ([]core.Member, error) {
	group, err := d.get("read", groupDN)
	if err != nil {
		return nil, err
	}
	var result []core.Member
	for _, dn := range group.Members {
		if entry, exists := d.Entries[dn]; exists && entry.Kind != "" {
			result = append(result, d.member(dn, entry))
		}
	}
	return result, nil
}

// GroupsOfMember implements the core.LocalStore interface.
func (d *LocalStoreDouble) GroupsOfMember(ctx context.Context, memberDN string) ([]core.RemoteObjectRef, error) {
	var result []core.RemoteObjectRef
	for _, dn := range d.sortedDNs() {
		entry := d.Entries[dn]
		if entry.Kind == core.KindGroup && slices.Contains(entry.Members, memberDN) {
			result = append(result, core.RemoteObjectRef{Kind: core.KindGroup, LocalID: dn, RemoteID: entry.RemoteID})
		}
	}
	return result, nil
}

func (d *LocalStoreDouble) sortedDNs() []string {
	result := make([]string, 0, len(d.Entries))
	for dn := range d.Entries {
		result = append(result, dn)
	}
	sort.Strings(result)
	return result
}

// StashDouble is an in-memory implementation of the core.Stash interface.
type StashDouble map[string]core.Snapshot

// Stash implements the core.Stash interface.
func (d StashDouble) Stash(ctx context.Context, key string, snapshot core.Snapshot) error {
	d[key] = snapshot.Clone()
	return nil
}

// Unstash implements the core.Stash interface.
func (d StashDouble) Unstash(ctx context.Context, key string) (core.Snapshot, bool, error) {
	snapshot, exists := d[key]
	delete(d, key)
	return snapshot, exists, nil
}

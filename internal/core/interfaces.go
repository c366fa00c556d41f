/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

import (
	"context"
	"iter"
)

// ResourceType identifies a collection in the remote directory.
type ResourceType string

const (
	ResourceUsers  ResourceType = "users"
	ResourceGroups ResourceType = "groups"
)

// ListOptions restricts a RemoteDirectory.List call.
type ListOptions struct {
	//A query in the remote directory's search syntax, e.g.
	//"externalId=<value>". Empty means "everything".
	Query string
	//The continuation token from a previous ListPage. Empty means "from the
	//start".
	PageToken string
	//If zero, the server's default page size is used.
	MaxResults int64
}

// ListPage is one page of results from RemoteDirectory.List.
type ListPage struct {
	Items []Document
	//Empty on the last page.
	NextPageToken string
}

// RemoteDirectory is the cloud directory that entries are synced into.
// In tests, this interface's real implementation can be swapped for a double.
//
// Objects are addressed by key, which is either the remote ID or the primary
// email address of the object. All errors returned are of type *Error.
type RemoteDirectory interface {
	Create(ctx context.Context, rt ResourceType, doc Document) (Document, error)
	Get(ctx context.Context, rt ResourceType, key string) (Document, error)
	Patch(ctx context.Context, rt ResourceType, key string, doc Document) (Document, error)
	Delete(ctx context.Context, rt ResourceType, key string) error
	List(ctx context.Context, rt ResourceType, opts ListOptions) (ListPage, error)

	ListMembers(ctx context.Context, groupKey string) ([]Document, error)
	AddMember(ctx context.Context, groupKey, memberKey, role string) (Document, error)
	RemoveMember(ctx context.Context, groupKey, memberKey string) error

	//The primary domain of the directory account, used for fallback email
	//addresses.
	PrimaryDomain(ctx context.Context) (string, error)
}

// IterateRemote lists all objects matching the query, fetching further pages
// lazily while the caller keeps consuming.
func IterateRemote(ctx context.Context, dir RemoteDirectory, rt ResourceType, query string) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		opts := ListOptions{Query: query}
		for {
			page, err := dir.List(ctx, rt, opts)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, doc := range page.Items {
				if !yield(doc, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			opts.PageToken = page.NextPageToken
		}
	}
}

// FirstRemote returns the first object matching the query, or nil if there
// is none.
func FirstRemote(ctx context.Context, dir RemoteDirectory, rt ResourceType, query string) (Document, error) {
	for doc, err := range IterateRemote(ctx, dir, rt, query) {
		return doc, err
	}
	return nil, nil
}

// RemoteObjectRef links a local entry to its remote counterpart.
type RemoteObjectRef struct {
	Kind     EntryKind
	LocalID  string //the DN of the local entry
	RemoteID string //empty if the entry has no remote counterpart
}

// IsSynced returns whether the local entry has a remote counterpart.
func (r RemoteObjectRef) IsSynced() bool {
	return r.RemoteID != ""
}

// Member is a local entry referenced by a group membership.
type Member struct {
	RemoteObjectRef
	//Only meaningful for users: whether the user is enabled for syncing.
	Enabled bool
}

// IsEligible returns whether this member can be enrolled into a remote group:
// it must be a synced, enabled user.
func (m Member) IsEligible() bool {
	return m.Kind == KindUser && m.Enabled && m.IsSynced()
}

// LocalStore is the local directory mirror that remembers which remote
// object belongs to which local entry. All errors returned are of type
// *Error. Operations on entries that do not exist yield ErrNotFound.
type LocalStore interface {
	GetRemoteRef(ctx context.Context, kind EntryKind, localID string) (RemoteObjectRef, error)
	//An empty remoteID clears the reference.
	SetRemoteRef(ctx context.Context, kind EntryKind, localID, remoteID string) error
	//Caches the last known remote document. A nil document is stored as an
	//explicit null.
	SetRemoteData(ctx context.Context, kind EntryKind, localID string, doc Document) error

	//Classifies a member identifier (as found in a group's member list) as
	//user or group. Yields ErrClassificationAmbiguity if the entry is neither.
	ResolveMember(ctx context.Context, memberID string) (Member, error)
	//Finds the entry whose attribute `key` has the given value.
	FindByExternalID(ctx context.Context, kind EntryKind, key, value string) (RemoteObjectRef, error)
	//Lists all current members of the given local group.
	ListGroupMembers(ctx context.Context, groupID string) ([]Member, error)
	//Lists all local groups that have the given entry as a member.
	GroupsOfMember(ctx context.Context, memberID string) ([]RemoteObjectRef, error)
}

// Stash holds snapshots across the two halves of a rename.
type Stash interface {
	Stash(ctx context.Context, key string, snapshot Snapshot) error
	//Returns (nil, false, nil) if nothing is stashed under the key. A
	//successful Unstash removes the entry.
	Unstash(ctx context.Context, key string) (Snapshot, bool, error)
}

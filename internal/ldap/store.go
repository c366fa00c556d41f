/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package ldap implements the local side of the sync: it reads and writes the
// attributes in the local directory that link entries to their remote
// counterparts.
package ldap

import (
	"context"
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
)

// StoreOptions configures the LDAP schema that a Store works with.
type StoreOptions struct {
	RemoteIDAttribute   string //e.g. "univentionGoogleAppsObjectID"
	RemoteDataAttribute string //e.g. "univentionGoogleAppsData"
	EnabledAttribute    string //e.g. "univentionGoogleAppsEnabled"
	MemberAttribute     string //e.g. "uniqueMember"
	UserObjectClasses   []string
	GroupObjectClasses  []string
}

// Store implements core.LocalStore on top of an LDAP connection.
type Store struct {
	conn Connection
	opts StoreOptions
}

// NewStore builds a Store.
func NewStore(conn Connection, opts StoreOptions) *Store {
	return &Store{conn, opts}
}

func (s *Store) readEntry(ctx context.Context, dn string, attrs []string) (*goldap.Entry, error) {
	entries, err := s.search(ctx, "read", dn, goldap.ScopeBaseObject, "(objectClass=*)", attrs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, core.NewError(core.ErrNotFound, "read", "LDAP object", dn, nil)
	}
	return entries[0], nil
}

func (s *Store) search(ctx context.Context, op, baseDN string, scope int, filter string, attrs []string) ([]*goldap.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := goldap.NewSearchRequest(baseDN, scope, goldap.NeverDerefAliases, 0, 0, false, filter, attrs, nil)
	entries, err := s.conn.Search(*req)
	return entries, classifyError(op, baseDN, err)
}

// modify executes the request. Errors with one of the ignoredCodes are
// swallowed.
func (s *Store) modify(ctx context.Context, req goldap.ModifyRequest, ignoredCodes ...uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.conn.Modify(req)
	if err != nil && goldap.IsErrorAnyOf(err, ignoredCodes...) {
		return nil
	}
	return classifyError("update", req.DN, err)
}

func (s *Store) objectClassFilter(kind core.EntryKind) string {
	classes := s.opts.UserObjectClasses
	if kind == core.KindGroup {
		classes = s.opts.GroupObjectClasses
	}
	return objectClassFilter(classes)
}

func objectClassFilter(classes []string) string {
	parts := make([]string, len(classes))
	for idx, class := range classes {
		parts[idx] = fmt.Sprintf("(objectClass=%s)", goldap.EscapeFilter(class))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(|" + strings.Join(parts, "") + ")"
}

func (s *Store) classify(entry *goldap.Entry) core.EntryKind {
	has := func(classes []string) bool {
		for _, value := range entry.GetAttributeValues("objectClass") {
			for _, class := range classes {
				if strings.EqualFold(value, class) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has(s.opts.UserObjectClasses):
		return core.KindUser
	case has(s.opts.GroupObjectClasses):
		return core.KindGroup
	default:
		return ""
	}
}

// GetRemoteRef implements the core.LocalStore interface.
func (s *Store) GetRemoteRef(ctx context.Context, kind core.EntryKind, dn string) (core.RemoteObjectRef, error) {
	entry, err := s.readEntry(ctx, dn, []string{s.opts.RemoteIDAttribute})
	if err != nil {
		return core.RemoteObjectRef{}, err
	}
	return core.RemoteObjectRef{
		Kind:     kind,
		LocalID:  dn,
		RemoteID: entry.GetAttributeValue(s.opts.RemoteIDAttribute),
	}, nil
}

// SetRemoteRef implements the core.LocalStore interface.
func (s *Store) SetRemoteRef(ctx context.Context, kind core.EntryKind, dn, remoteID string) error {
	req := goldap.ModifyRequest{DN: dn}
	if remoteID == "" {
		req.Delete(s.opts.RemoteIDAttribute, nil)
	} else {
		req.Replace(s.opts.RemoteIDAttribute, []string{remoteID})
	}
	if remoteID == "" {
		//if the attribute is not there, there is nothing to clear
		return s.modify(ctx, req, goldap.LDAPResultNoSuchAttribute)
	}
	return s.modify(ctx, req)
}

// SetRemoteData implements the core.LocalStore interface.
func (s *Store) SetRemoteData(ctx context.Context, kind core.EntryKind, dn string, doc core.Document) error {
	value, err := EncodeRemoteData(doc)
	if err != nil {
		return err
	}
	req := goldap.ModifyRequest{DN: dn}
	req.Replace(s.opts.RemoteDataAttribute, []string{value})
	return s.modify(ctx, req)
}

// ResolveMember implements the core.LocalStore interface.
func (s *Store) ResolveMember(ctx context.Context, dn string) (core.Member, error) {
	attrs := []string{"objectClass", s.opts.EnabledAttribute, s.opts.RemoteIDAttribute}
	entry, err := s.readEntry(ctx, dn, attrs)
	if err != nil {
		return core.Member{}, err
	}
	return s.memberFromEntry(entry)
}

func (s *Store) memberFromEntry(entry *goldap.Entry) (core.Member, error) {
	kind := s.classify(entry)
	if kind == "" {
		return core.Member{}, core.Errorf(core.ErrClassificationAmbiguity,
			"%s is neither a user nor a group (objectClass = %v)", entry.DN, entry.GetAttributeValues("objectClass"))
	}
	snapshot := core.Snapshot{s.opts.EnabledAttribute: entry.GetAttributeValues(s.opts.EnabledAttribute)}
	return core.Member{
		RemoteObjectRef: core.RemoteObjectRef{
			Kind:     kind,
			LocalID:  entry.DN,
			RemoteID: entry.GetAttributeValue(s.opts.RemoteIDAttribute),
		},
		Enabled: kind == core.KindUser && snapshot.IsEnabled(s.opts.EnabledAttribute),
	}, nil
}

// FindByExternalID implements the core.LocalStore interface.
func (s *Store) FindByExternalID(ctx context.Context, kind core.EntryKind, key, value string) (core.RemoteObjectRef, error) {
	attrs := []string{"objectClass", s.opts.RemoteIDAttribute}
	var entries []*goldap.Entry
	if key == "entryDN" {
		entry, err := s.readEntry(ctx, value, attrs)
		if err != nil {
			return core.RemoteObjectRef{}, err
		}
		entries = []*goldap.Entry{entry}
	} else {
		filter := fmt.Sprintf("(&%s(%s=%s))", s.objectClassFilter(kind), key, goldap.EscapeFilter(value))
		var err error
		entries, err = s.search(ctx, "search", s.conn.BaseDN(), goldap.ScopeWholeSubtree, filter, attrs)
		if err != nil {
			return core.RemoteObjectRef{}, err
		}
	}

	for _, entry := range entries {
		if s.classify(entry) == kind {
			return core.RemoteObjectRef{
				Kind:     kind,
				LocalID:  entry.DN,
				RemoteID: entry.GetAttributeValue(s.opts.RemoteIDAttribute),
			}, nil
		}
	}
	return core.RemoteObjectRef{}, core.NewError(core.ErrNotFound, "find", string(kind), key+"="+value, nil)
}

// ListGroupMembers implements the core.LocalStore interface. Members that do
// not exist or cannot be classified are skipped.
func (s *Store) ListGroupMembers(ctx context.Context, groupDN string) ([]core.Member, error) {
	entry, err := s.readEntry(ctx, groupDN, []string{s.opts.MemberAttribute})
	if err != nil {
		return nil, err
	}

	var result []core.Member
	for _, memberDN := range entry.GetAttributeValues(s.opts.MemberAttribute) {
		m, err := s.ResolveMember(ctx, memberDN)
		switch {
		case core.IsKind(err, core.ErrNotFound), core.IsKind(err, core.ErrClassificationAmbiguity):
			logg.Debug("skipping member %s of %s: %s", memberDN, groupDN, err.Error())
		case err != nil:
			return nil, err
		default:
			result = append(result, m)
		}
	}
	return result, nil
}

// GroupsOfMember implements the core.LocalStore interface.
func (s *Store) GroupsOfMember(ctx context.Context, memberDN string) ([]core.RemoteObjectRef, error) {
	filter := fmt.Sprintf("(&%s(%s=%s))", s.objectClassFilter(core.KindGroup), s.opts.MemberAttribute, goldap.EscapeFilter(memberDN))
	entries, err := s.search(ctx, "search", s.conn.BaseDN(), goldap.ScopeWholeSubtree, filter, []string{s.opts.RemoteIDAttribute})
	if err != nil {
		return nil, err
	}
	result := make([]core.RemoteObjectRef, len(entries))
	for idx, entry := range entries {
		result[idx] = core.RemoteObjectRef{
			Kind:     core.KindGroup,
			LocalID:  entry.DN,
			RemoteID: entry.GetAttributeValue(s.opts.RemoteIDAttribute),
		}
	}
	return result, nil
}

// Clean removes the links to remote objects from all local entries of the
// given kind. The remote ID is removed and the cached data is overwritten with
// null. Returns the number of entries that were cleaned.
func (s *Store) Clean(ctx context.Context, kind core.EntryKind) (int, error) {
	filter := fmt.Sprintf("(&%s(|(%s=*)(%s=*)))",
		s.objectClassFilter(kind), s.opts.RemoteIDAttribute, s.opts.RemoteDataAttribute)
	entries, err := s.search(ctx, "search", s.conn.BaseDN(), goldap.ScopeWholeSubtree, filter, []string{s.opts.RemoteIDAttribute})
	if err != nil {
		return 0, err
	}
	nullValue, err := EncodeRemoteData(nil)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		req := goldap.ModifyRequest{DN: entry.DN}
		if entry.GetAttributeValue(s.opts.RemoteIDAttribute) != "" {
			req.Delete(s.opts.RemoteIDAttribute, nil)
		}
		req.Replace(s.opts.RemoteDataAttribute, []string{nullValue})
		err := s.modify(ctx, req)
		if err != nil {
			return 0, err
		}
		logg.Info("removed link to remote object from %s", entry.DN)
	}
	return len(entries), nil
}

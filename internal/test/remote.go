/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/majewsky/dirsync/internal/core"
)

// RemoteDirectoryDouble is an in-memory implementation of the
// core.RemoteDirectory interface. All calls are recorded in Calls, in a
// notation resembling the respective HTTP requests.
type RemoteDirectoryDouble struct {
	Domain   string
	Objects  map[core.ResourceType]map[string]core.Document //by ID
	Members  map[string][]string                            //group ID -> member IDs
	Calls    []string
	PageSize int

	//The document from the most recent Create or Patch call.
	LastPayload core.Document

	failures map[string]error
	nextID   int
}

// NewRemoteDirectoryDouble builds an empty RemoteDirectoryDouble.
func NewRemoteDirectoryDouble() *RemoteDirectoryDouble {
	return &RemoteDirectoryDouble{
		Domain: "example.org",
		Objects: map[core.ResourceType]map[string]core.Document{
			core.ResourceUsers:  {},
			core.ResourceGroups: {},
		},
		Members:  make(map[string][]string),
		PageSize: 100,
		failures: make(map[string]error),
	}
}

// FailNext makes the next call with the given notation (as in Calls) fail
// with the given error.
func (d *RemoteDirectoryDouble) FailNext(call string, err error) {
	d.failures[call] = err
}

// ResetCalls clears the call log.
func (d *RemoteDirectoryDouble) ResetCalls() {
	d.Calls = nil
}

// AddObject inserts an object without recording a call, and returns its ID.
func (d *RemoteDirectoryDouble) AddObject(rt core.ResourceType, doc core.Document) string {
	d.nextID++
	id := fmt.Sprintf("%s-%d", strings.TrimSuffix(string(rt), "s"), d.nextID)
	doc = doc.Clone()
	doc["id"] = core.String(id)
	d.Objects[rt][id] = doc
	return id
}

func (d *RemoteDirectoryDouble) record(call string) error {
	d.Calls = append(d.Calls, call)
	err := d.failures[call]
	delete(d.failures, call)
	return err
}

func (d *RemoteDirectoryDouble) find(rt core.ResourceType, key string) (string, core.Document) {
	if doc, exists := d.Objects[rt][key]; exists {
		return key, doc
	}
	emailField := "email"
	if rt == core.ResourceUsers {
		emailField = "primaryEmail"
	}
	for id, doc := range d.Objects[rt] {
		if email, _ := doc.GetString(emailField); email != "" && strings.EqualFold(email, key) {
			return id, doc
		}
	}
	return "", nil
}

func notFound(op string, rt core.ResourceType, key string) error {
	return core.NewError(core.ErrNotFound, op, string(rt), key, errors.New("404 Resource Not Found"))
}

// Create implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) Create(ctx context.Context, rt core.ResourceType, doc core.Document) (core.Document, error) {
	err := d.record("POST " + string(rt))
	if err != nil {
		return nil, err
	}
	d.LastPayload = doc.Clone()
	for _, field := range []string{"primaryEmail", "email"} {
		if email, ok := doc.GetString(field); ok {
			if id, _ := d.find(rt, email); id != "" {
				return nil, core.NewError(core.ErrConflict, "create", string(rt), email, errors.New("409 Entity already exists"))
			}
		}
	}
	id := d.AddObject(rt, doc)
	return d.Objects[rt][id].Clone(), nil
}

// Get implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) Get(ctx context.Context, rt core.ResourceType, key string) (core.Document, error) {
	err := d.record("GET " + string(rt) + "/" + key)
	if err != nil {
		return nil, err
	}
	id, doc := d.find(rt, key)
	if id == "" {
		return nil, notFound("get", rt, key)
	}
	return doc.Clone(), nil
}

// Patch implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) Patch(ctx context.Context, rt core.ResourceType, key string, patch core.Document) (core.Document, error) {
	err := d.record("PATCH " + string(rt) + "/" + key)
	if err != nil {
		return nil, err
	}
	d.LastPayload = patch.Clone()
	id, doc := d.find(rt, key)
	if id == "" {
		return nil, notFound("patch", rt, key)
	}
	for field, value := range patch {
		if _, isNull := value.(core.Null); isNull {
			delete(doc, field)
		} else {
			doc[field] = core.CloneValue(value)
		}
	}
	return doc.Clone(), nil
}

// Delete implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) Delete(ctx context.Context, rt core.ResourceType, key string) error {
	err := d.record("DELETE " + string(rt) + "/" + key)
	if err != nil {
		return err
	}
	id, _ := d.find(rt, key)
	if id == "" {
		return notFound("delete", rt, key)
	}
	delete(d.Objects[rt], id)
	if rt == core.ResourceGroups {
		delete(d.Members, id)
	} else {
		for groupID, memberIDs := range d.Members {
			d.Members[groupID] = slices.DeleteFunc(memberIDs, func(m string) bool { return m == id })
		}
	}
	return nil
}

// List implements the core.RemoteDirectory interface. Only queries of the
// form "externalId=<value>" are understood.
func (d *RemoteDirectoryDouble) List(ctx context.Context, rt core.ResourceType, opts core.ListOptions) (core.ListPage, error) {
	err := d.record(fmt.Sprintf("GET %s?query=%s&pageToken=%s", rt, opts.Query, opts.PageToken))
	if err != nil {
		return core.ListPage{}, err
	}

	var matches []core.Document
	for _, id := range sortedIDs(d.Objects[rt]) {
		doc := d.Objects[rt][id]
		if value, isExternalIDQuery := strings.CutPrefix(opts.Query, "externalId="); isExternalIDQuery {
			if !hasExternalID(doc, value) {
				continue
			}
		}
		matches = append(matches, doc.Clone())
	}

	offset := 0
	if opts.PageToken != "" {
		offset, err = strconv.Atoi(opts.PageToken)
		if err != nil {
			return core.ListPage{}, fmt.Errorf("invalid page token: %q", opts.PageToken)
		}
	}
	end := min(offset+d.PageSize, len(matches))
	page := core.ListPage{Items: matches[offset:end]}
	if end < len(matches) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func hasExternalID(doc core.Document, value string) bool {
	ids, _ := doc["externalIds"].(core.Sequence)
	for _, entry := range ids {
		m, _ := entry.(core.Mapping)
		if v, _ := m.GetString("value"); v == value {
			return true
		}
	}
	return false
}

// ListMembers implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) ListMembers(ctx context.Context, groupKey string) ([]core.Document, error) {
	err := d.record("GET groups/" + groupKey + "/members")
	if err != nil {
		return nil, err
	}
	id, _ := d.find(core.ResourceGroups, groupKey)
	if id == "" {
		return nil, notFound("list members of", core.ResourceGroups, groupKey)
	}
	result := []core.Document{}
	for _, memberID := range d.Members[id] {
		result = append(result, core.Document{"id": core.String(memberID), "role": core.String("MEMBER")})
	}
	return result, nil
}

// AddMember implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) AddMember(ctx context.Context, groupKey, memberKey, role string) (core.Document, error) {
	err := d.record("POST groups/" + groupKey + "/members/" + memberKey)
	if err != nil {
		return nil, err
	}
	id, _ := d.find(core.ResourceGroups, groupKey)
	if id == "" {
		return nil, notFound("add member to", core.ResourceGroups, groupKey)
	}
	if slices.Contains(d.Members[id], memberKey) {
		return nil, core.NewError(core.ErrConflict, "add member to", "groups", groupKey, errors.New("409 Member already exists"))
	}
	d.Members[id] = append(d.Members[id], memberKey)
	return core.Document{"id": core.String(memberKey), "role": core.String(role)}, nil
}

// RemoveMember implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) RemoveMember(ctx context.Context, groupKey, memberKey string) error {
	err := d.record("DELETE groups/" + groupKey + "/members/" + memberKey)
	if err != nil {
		return err
	}
	id, _ := d.find(core.ResourceGroups, groupKey)
	if id == "" || !slices.Contains(d.Members[id], memberKey) {
		return notFound("remove member from", core.ResourceGroups, groupKey)
	}
	d.Members[id] = slices.DeleteFunc(d.Members[id], func(m string) bool { return m == memberKey })
	return nil
}

// PrimaryDomain implements the core.RemoteDirectory interface.
func (d *RemoteDirectoryDouble) PrimaryDomain(ctx context.Context) (string, error) {
	return d.Domain, nil
}

func sortedIDs(m map[string]core.Document) []string {
	result := make([]string, 0, len(m))
	for id := range m {
		result = append(result, id)
	}
	slices.Sort(result)
	return result
}
